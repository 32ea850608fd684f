/*
 * @module service/engine/check
 * @description 质量检测项接口与运行上下文定义
 * @architecture 业务服务层 - 检测引擎核心抽象
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 检测项注册 -> 调度器按固定参数执行 -> 产出问题列表或状态错误
 * @rules 检测项必须无副作用；参数非法返回 ErrMisconfigured；样本不足返回 ErrInsufficientData
 * @dependencies spf13/cast
 * @refs service/engine/scheduler.go, service/detectors
 */

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cast"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/models"
	"surveyqc-service/service/nlp"
)

// 检测项执行状态
const (
	StatusCompleted        = "completed"
	StatusMisconfigured    = "misconfigured"
	StatusFailed           = "failed"
	StatusTimeout          = "timeout"
	StatusInsufficientData = "insufficient_data"
)

var (
	// ErrMisconfigured 检测项参数非法
	ErrMisconfigured = errors.New("check misconfigured")
	// ErrInsufficientData 数据集样本不足，检测项无法产出可靠结果
	ErrInsufficientData = errors.New("insufficient data for check")
)

// Params 检测项参数，来自当前激活的规则版本
type Params map[string]interface{}

// Float 读取浮点参数，缺失时返回默认值
func (p Params) Float(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return cast.ToFloat64(v)
	}
	return def
}

// Int 读取整型参数，缺失时返回默认值
func (p Params) Int(key string, def int) int {
	if v, ok := p[key]; ok {
		return cast.ToInt(v)
	}
	return def
}

// String 读取字符串参数，缺失时返回默认值
func (p Params) String(key string, def string) string {
	if v, ok := p[key]; ok {
		return cast.ToString(v)
	}
	return def
}

// Bool 读取布尔参数，缺失时返回默认值
func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key]; ok {
		return cast.ToBool(v)
	}
	return def
}

// StringSlice 读取字符串数组参数
func (p Params) StringSlice(key string) []string {
	if v, ok := p[key]; ok {
		return cast.ToStringSlice(v)
	}
	return nil
}

// FloatRange 读取浮点参数并校验区间，越界返回 ErrMisconfigured
func (p Params) FloatRange(key string, def, min, max float64) (float64, error) {
	v := p.Float(key, def)
	if v < min || v > max {
		return 0, fmt.Errorf("%w: %s=%v 超出区间 [%v, %v]", ErrMisconfigured, key, v, min, max)
	}
	return v, nil
}

// Finding 检测项产出的单条问题，尚未绑定运行与版本信息
type Finding struct {
	RecordIndex int
	Field       string
	Severity    string
	Confidence  float64
	Explanation string
	Details     models.JSONB
}

// RunContext 单次检测运行的共享上下文
type RunContext struct {
	Dataset *dataset.Dataset
	NLP     *nlp.Engine
	Models  map[string]*models.ModelVersion // 按模型族固定的版本
}

// ModelFor 返回运行固定的指定模型族版本
func (rc *RunContext) ModelFor(family string) (*models.ModelVersion, error) {
	v, ok := rc.Models[family]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: 运行未固定模型族 %s", ErrMisconfigured, family)
	}
	return v, nil
}

// Check 质量检测项
type Check interface {
	// ID 检测项唯一标识
	ID() string
	// Category 检测类别
	Category() string
	// Kind 实现方式：statistical / ml / nlp
	Kind() string
	// DefaultSeverity 默认严重级别
	DefaultSeverity() string
	// Description 检测项说明
	Description() string
	// Partitionable 是否可按记录分片并行执行
	Partitionable() bool
	// Run 在数据集上执行检测，返回发现的问题
	Run(ctx context.Context, rc *RunContext, params Params) ([]Finding, error)
}
