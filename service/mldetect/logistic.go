/*
 * @module service/mldetect/logistic
 * @description 机器人行为逻辑回归分类器，输出经校准的概率
 * @architecture 业务服务层 - 模型实现
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 模型版本制品 -> 权重恢复 -> 特征评分 -> 校准概率
 * @rules 权重来自固定模型版本，推断无状态
 * @dependencies math, github.com/spf13/cast
 * @refs service/mldetect/registry.go, service/detectors/mlchecks.go
 */

package mldetect

import (
	"fmt"
	"math"

	"surveyqc-service/service/models"

	"github.com/spf13/cast"
)

// LogisticModel 逻辑回归模型（带Platt校准参数）
type LogisticModel struct {
	Weights []float64
	Bias    float64
	CalibA  float64
	CalibB  float64
}

// DefaultLogisticModel 初始权重：重复度、低熵和高IP频率指向机器人
func DefaultLogisticModel() *LogisticModel {
	weights := make([]float64, NumFeatures)
	weights[FeatCharDiversity] = -1.2
	weights[FeatTokenEntropy] = -0.8
	weights[FeatRepetitionRatio] = 2.4
	weights[FeatSpecialCharRatio] = 1.1
	weights[FeatDigitRatio] = 0.6
	weights[FeatTimingStddev] = -0.5
	weights[FeatIPFrequency] = 2.8
	return &LogisticModel{Weights: weights, Bias: -1.0, CalibA: 1.0, CalibB: 0.0}
}

// LogisticFromArtifact 从模型版本制品恢复
func LogisticFromArtifact(artifact models.JSONB) (*LogisticModel, error) {
	weights, err := cast.ToFloat64SliceE(artifact["weights"])
	if err != nil {
		return nil, fmt.Errorf("制品缺少有效的权重: %w", err)
	}
	if len(weights) != NumFeatures {
		return nil, fmt.Errorf("权重维度 %d 与特征维度 %d 不符", len(weights), NumFeatures)
	}
	m := &LogisticModel{
		Weights: weights,
		Bias:    cast.ToFloat64(artifact["bias"]),
		CalibA:  cast.ToFloat64(artifact["calib_a"]),
		CalibB:  cast.ToFloat64(artifact["calib_b"]),
	}
	if m.CalibA == 0 {
		m.CalibA = 1.0
	}
	return m, nil
}

// Artifact 序列化为模型版本制品
func (m *LogisticModel) Artifact() models.JSONB {
	weights := make([]interface{}, len(m.Weights))
	for i, w := range m.Weights {
		weights[i] = w
	}
	return models.JSONB{
		"weights": weights,
		"bias":    m.Bias,
		"calib_a": m.CalibA,
		"calib_b": m.CalibB,
	}
}

// Score 计算校准后的机器人概率 [0,1]
func (m *LogisticModel) Score(features []float64) float64 {
	margin := m.Bias
	for i, w := range m.Weights {
		if i < len(features) {
			margin += w * features[i]
		}
	}
	return sigmoid(m.CalibA*margin + m.CalibB)
}

// Train 小批量梯度下降增量训练，返回训练后的新模型（原模型不变）
func (m *LogisticModel) Train(samples []LabeledVector, learningRate float64, epochs int) *LogisticModel {
	next := &LogisticModel{
		Weights: append([]float64(nil), m.Weights...),
		Bias:    m.Bias,
		CalibA:  m.CalibA,
		CalibB:  m.CalibB,
	}
	if len(samples) == 0 {
		return next
	}

	for epoch := 0; epoch < epochs; epoch++ {
		for _, sample := range samples {
			margin := next.Bias
			for i, w := range next.Weights {
				if i < len(sample.Features) {
					margin += w * sample.Features[i]
				}
			}
			predicted := sigmoid(margin)
			gradient := predicted - sample.Label
			for i := range next.Weights {
				if i < len(sample.Features) {
					next.Weights[i] -= learningRate * gradient * sample.Features[i]
				}
			}
			next.Bias -= learningRate * gradient
		}
	}
	return next
}

// LabeledVector 带标签的特征向量，标签来自审核确认的问题
type LabeledVector struct {
	Features []float64
	Label    float64 // 1=确认异常(approved), 0=误报(rejected)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
