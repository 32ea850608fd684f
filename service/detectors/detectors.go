/*
 * @module service/detectors
 * @description 内置质量检测项集合，覆盖统计、规则、NLP 与模型三类实现
 * @architecture 业务服务层 - 检测项实现
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 各文件 init() 向 engine.Default 注册检测项
 * @rules 检测项无副作用；全部阈值来自规则版本参数，不得硬编码
 * @dependencies surveyqc-service/service/engine
 * @refs service/engine/registry.go
 */

package detectors

import (
	"context"
	"math"
	"sort"

	"surveyqc-service/service/engine"
)

// runFunc 检测项执行函数
type runFunc func(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error)

// builtinCheck 内置检测项的通用骨架
type builtinCheck struct {
	id            string
	category      string
	kind          string
	severity      string
	description   string
	partitionable bool
	run           runFunc
}

func (c *builtinCheck) ID() string              { return c.id }
func (c *builtinCheck) Category() string        { return c.category }
func (c *builtinCheck) Kind() string            { return c.kind }
func (c *builtinCheck) DefaultSeverity() string { return c.severity }
func (c *builtinCheck) Description() string     { return c.description }
func (c *builtinCheck) Partitionable() bool     { return c.partitionable }

func (c *builtinCheck) Run(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	return c.run(ctx, rc, params)
}

func register(c *builtinCheck) {
	engine.Default.Register(c)
}

// cancelled 长循环中的协作式取消检查
func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// percentileNearestRank 最近秩百分位数，p 取 [0,100]
func percentileNearestRank(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
