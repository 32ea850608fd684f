/*
 * @module service/mldetect/adapt
 * @description 模型增量适应，从已审核问题反馈训练并发布新版本
 * @architecture 业务服务层 - 模型适应
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 收集审核反馈 -> 在现有权重上增量训练 -> 发布新版本（不覆盖旧版本）
 * @rules 适应永远发布新版本；反馈不足时跳过并返回哨兵错误；运行中的检测不受影响
 * @dependencies spf13/cast
 * @refs service/mldetect/registry.go, service/mldetect/logistic.go, service/mldetect/pattern.go, service/mldetect/anomaly.go
 */

package mldetect

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"surveyqc-service/service/models"
)

const (
	// minFeedbackSamples 触发适应所需的最小反馈样本数
	minFeedbackSamples = 10

	adaptLearningRate = 0.05
	adaptEpochs       = 50
)

// ErrInsufficientFeedback 反馈样本不足，无法适应
var ErrInsufficientFeedback = errors.New("insufficient feedback samples for adaptation")

// Adapter 基于审核反馈的模型适应器
type Adapter struct {
	registry *Registry
}

// NewAdapter 创建适应器
func NewAdapter(registry *Registry) *Adapter {
	return &Adapter{registry: registry}
}

// AdaptBotClassifier 用已审核的特征样本增量训练机器人分类器并发布新版本
// 确认的问题作为正样本，驳回的问题作为负样本
func (a *Adapter) AdaptBotClassifier(samples []LabeledVector, author string) (*models.ModelVersion, error) {
	if len(samples) < minFeedbackSamples {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientFeedback, len(samples), minFeedbackSamples)
	}

	current, err := a.registry.Active(models.ModelFamilyBotClassifier)
	if err != nil {
		return nil, err
	}
	base, err := LogisticFromArtifact(current.Artifact)
	if err != nil {
		return nil, fmt.Errorf("解析当前模型失败: %w", err)
	}

	trained := base.Train(samples, adaptLearningRate, adaptEpochs)

	artifact := trained.Artifact()
	// 树桩森林随版本制品携带，适应只更新逻辑回归部分
	if stumps, ok := current.Artifact["stumps"]; ok {
		artifact["stumps"] = stumps
	}

	positives := 0
	for _, s := range samples {
		if s.Label > 0.5 {
			positives++
		}
	}
	metrics := models.JSONB{
		"samples":      len(samples),
		"positives":    positives,
		"base_version": current.VersionNumber,
	}
	return a.registry.Publish(models.ModelFamilyBotClassifier, artifact, metrics, current.Seed, author)
}

// LabeledSequence 审核标注的有序响应序列
type LabeledSequence struct {
	Values []float64
	Label  float64 // 1=确认的满意化作答(approved), 0=误报(rejected)
}

// AdaptSequenceModel 用已审核的响应序列调整转移可疑度并发布新版本
// 短于3项的序列无法形成转移，不计入反馈样本
func (a *Adapter) AdaptSequenceModel(sequences []LabeledSequence, author string) (*models.ModelVersion, error) {
	usable := make([]LabeledSequence, 0, len(sequences))
	for _, s := range sequences {
		if len(s.Values) >= 3 {
			usable = append(usable, s)
		}
	}
	if len(usable) < minFeedbackSamples {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientFeedback, len(usable), minFeedbackSamples)
	}

	current, err := a.registry.Active(models.ModelFamilyPattern)
	if err != nil {
		return nil, err
	}
	base, err := SequenceFromArtifact(current.Artifact)
	if err != nil {
		return nil, fmt.Errorf("解析当前模型失败: %w", err)
	}

	trained := base.Reweight(usable, adaptLearningRate)

	positives := 0
	for _, s := range usable {
		if s.Label > 0.5 {
			positives++
		}
	}
	metrics := models.JSONB{
		"samples":      len(usable),
		"positives":    positives,
		"base_version": current.VersionNumber,
	}
	return a.registry.Publish(models.ModelFamilyPattern, trained.Artifact(), metrics, current.Seed, author)
}

// AdaptAnomalyDetector 用反馈数据集的特征样本重新拟合异常检测器并发布新版本
// 新版本制品带有训练分数分布校准，检测时作为异常分数下限的默认值
func (a *Adapter) AdaptAnomalyDetector(samples [][]float64, author string) (*models.ModelVersion, error) {
	current, err := a.registry.Active(models.ModelFamilyAnomaly)
	if err != nil {
		return nil, err
	}
	forest := AnomalyFromArtifact(current.Artifact)
	if err := forest.Fit(samples); err != nil {
		if errors.Is(err, ErrInsufficientSamples) {
			return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientFeedback, len(samples), forest.MinFoldSize)
		}
		return nil, err
	}

	scores := make([]float64, len(samples))
	sum := 0.0
	for i, features := range samples {
		scores[i] = forest.Score(features)
		sum += scores[i]
	}
	sort.Float64s(scores)
	mean := sum / float64(len(scores))
	p90 := scores[rankIndex(len(scores), 0.9)]

	artifact := forest.Artifact()
	artifact["calibration"] = map[string]interface{}{
		"score_mean": mean,
		"score_p90":  p90,
		"score_max":  scores[len(scores)-1],
	}
	metrics := models.JSONB{
		"samples":      len(samples),
		"score_mean":   mean,
		"score_p90":    p90,
		"base_version": current.VersionNumber,
	}
	return a.registry.Publish(models.ModelFamilyAnomaly, artifact, metrics, forest.Seed, author)
}

// rankIndex 最近秩法分位索引
func rankIndex(n int, q float64) int {
	idx := int(math.Ceil(q*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}
