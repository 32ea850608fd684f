/*
 * @module service/mldetect/pattern
 * @description 序列模式模型，对有序响应向量检测满意化/敷衍作答模式
 * @architecture 业务服务层 - 模型实现
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 响应序列离散化 -> 转移可疑度累计 -> 模式分数
 * @rules 推断无状态，批内记录之间无跨记录记忆
 * @dependencies math, github.com/spf13/cast
 * @refs service/mldetect/ensemble.go, service/detectors/mlchecks.go
 */

package mldetect

import (
	"fmt"
	"math"

	"surveyqc-service/service/models"

	"github.com/spf13/cast"
)

// patternBuckets 响应值离散桶数
const patternBuckets = 5

// SequenceModel 序列模式模型
// Transitions[a][b] 为从桶a转移到桶b的可疑度权重
type SequenceModel struct {
	Transitions [][]float64
}

// DefaultSequenceModel 初始转移权重：原地重复最可疑，小幅跳动次之
func DefaultSequenceModel() *SequenceModel {
	transitions := make([][]float64, patternBuckets)
	for i := range transitions {
		transitions[i] = make([]float64, patternBuckets)
		for j := range transitions[i] {
			switch {
			case i == j:
				transitions[i][j] = 0.9
			case abs(i-j) == 1:
				transitions[i][j] = 0.35
			default:
				transitions[i][j] = 0.1
			}
		}
	}
	return &SequenceModel{Transitions: transitions}
}

// SequenceFromArtifact 从模型版本制品恢复
func SequenceFromArtifact(artifact models.JSONB) (*SequenceModel, error) {
	raw, err := cast.ToSliceE(artifact["transitions"])
	if err != nil || len(raw) != patternBuckets {
		return nil, fmt.Errorf("制品缺少有效的转移矩阵")
	}
	model := &SequenceModel{Transitions: make([][]float64, patternBuckets)}
	for i, rowRaw := range raw {
		row, err := cast.ToFloat64SliceE(rowRaw)
		if err != nil || len(row) != patternBuckets {
			return nil, fmt.Errorf("转移矩阵第 %d 行格式错误", i)
		}
		model.Transitions[i] = row
	}
	return model, nil
}

// Artifact 序列化为模型版本制品
func (m *SequenceModel) Artifact() models.JSONB {
	rows := make([]interface{}, len(m.Transitions))
	for i, row := range m.Transitions {
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		rows[i] = values
	}
	return models.JSONB{"transitions": rows}
}

// Score 计算有序响应序列的满意化分数 [0,1]
// 序列过短（少于3项）无法形成模式，返回0
func (m *SequenceModel) Score(sequence []float64) float64 {
	if len(sequence) < 3 {
		return 0
	}

	buckets := discretize(sequence)
	sum := 0.0
	transitions := 0
	for i := 1; i < len(buckets); i++ {
		sum += m.Transitions[buckets[i-1]][buckets[i]]
		transitions++
	}
	base := sum / float64(transitions)

	// 周期2交替（ABAB...）额外加权
	alternating := true
	for i := 2; i < len(buckets); i++ {
		if buckets[i] != buckets[i-2] {
			alternating = false
			break
		}
	}
	if alternating && buckets[0] != buckets[1] {
		base = math.Min(1.0, base+0.3)
	}
	return base
}

// Reweight 根据审核反馈调整转移可疑度，返回新模型（原模型不变）
// 确认的序列上调其观测转移的权重，驳回的序列下调，权重保持在 [0.05, 1]
func (m *SequenceModel) Reweight(sequences []LabeledSequence, rate float64) *SequenceModel {
	next := &SequenceModel{Transitions: make([][]float64, len(m.Transitions))}
	for i, row := range m.Transitions {
		next.Transitions[i] = append([]float64(nil), row...)
	}

	for _, s := range sequences {
		if len(s.Values) < 3 {
			continue
		}
		delta := rate
		if s.Label <= 0.5 {
			delta = -rate
		}
		buckets := discretize(s.Values)
		for i := 1; i < len(buckets); i++ {
			w := next.Transitions[buckets[i-1]][buckets[i]] + delta
			w = math.Max(0.05, math.Min(1.0, w))
			next.Transitions[buckets[i-1]][buckets[i]] = w
		}
	}
	return next
}

// discretize 把响应值归一化到 [0,1] 后映射为离散桶
func discretize(sequence []float64) []int {
	min, max := sequence[0], sequence[0]
	for _, v := range sequence {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	buckets := make([]int, len(sequence))
	if max == min {
		// 全部相同，落在同一桶
		return buckets
	}
	for i, v := range sequence {
		b := int((v - min) / (max - min) * float64(patternBuckets))
		if b >= patternBuckets {
			b = patternBuckets - 1
		}
		buckets[i] = b
	}
	return buckets
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
