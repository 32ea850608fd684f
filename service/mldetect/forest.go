/*
 * @module service/mldetect/forest
 * @description 树桩森林分类器，集成投票的树模型成员
 * @architecture 业务服务层 - 模型实现
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 模型版本制品 -> 树桩恢复 -> 特征评分
 * @rules 树桩阈值来自固定模型版本，推断无状态
 * @dependencies github.com/spf13/cast
 * @refs service/mldetect/ensemble.go
 */

package mldetect

import (
	"fmt"

	"surveyqc-service/service/models"

	"github.com/spf13/cast"
)

// Stump 单特征决策树桩
type Stump struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	LowScore  float64 `json:"low_score"`  // 特征值 <= 阈值时的分数
	HighScore float64 `json:"high_score"` // 特征值 > 阈值时的分数
}

// StumpForest 树桩森林，分数为各树桩输出均值
type StumpForest struct {
	Stumps []Stump
}

// DefaultStumpForest 初始树桩：低多样性、高重复和高IP频率指向机器人
func DefaultStumpForest() *StumpForest {
	return &StumpForest{Stumps: []Stump{
		{Feature: FeatCharDiversity, Threshold: 0.25, LowScore: 0.85, HighScore: 0.2},
		{Feature: FeatRepetitionRatio, Threshold: 0.5, LowScore: 0.2, HighScore: 0.9},
		{Feature: FeatTokenEntropy, Threshold: 1.0, LowScore: 0.8, HighScore: 0.25},
		{Feature: FeatIPFrequency, Threshold: 0.1, LowScore: 0.2, HighScore: 0.85},
		{Feature: FeatTimingStddev, Threshold: 1.0, LowScore: 0.7, HighScore: 0.3},
	}}
}

// DefaultBotClassifierArtifact 机器人分类器初始制品
// 逻辑回归权重与树桩森林在同一版本制品中携带，推理两者都从固定版本加载
func DefaultBotClassifierArtifact() models.JSONB {
	artifact := DefaultLogisticModel().Artifact()
	artifact["stumps"] = DefaultStumpForest().Artifact()["stumps"]
	return artifact
}

// ForestFromArtifact 从模型版本制品恢复
func ForestFromArtifact(artifact models.JSONB) (*StumpForest, error) {
	raw, err := cast.ToSliceE(artifact["stumps"])
	if err != nil {
		return nil, fmt.Errorf("制品缺少有效的树桩定义: %w", err)
	}
	forest := &StumpForest{}
	for _, item := range raw {
		stump, err := cast.ToStringMapE(item)
		if err != nil {
			return nil, fmt.Errorf("树桩定义格式错误: %w", err)
		}
		forest.Stumps = append(forest.Stumps, Stump{
			Feature:   cast.ToInt(stump["feature"]),
			Threshold: cast.ToFloat64(stump["threshold"]),
			LowScore:  cast.ToFloat64(stump["low_score"]),
			HighScore: cast.ToFloat64(stump["high_score"]),
		})
	}
	if len(forest.Stumps) == 0 {
		return nil, fmt.Errorf("制品不包含任何树桩")
	}
	return forest, nil
}

// Artifact 序列化为模型版本制品
func (f *StumpForest) Artifact() models.JSONB {
	stumps := make([]interface{}, len(f.Stumps))
	for i, s := range f.Stumps {
		stumps[i] = map[string]interface{}{
			"feature":    s.Feature,
			"threshold":  s.Threshold,
			"low_score":  s.LowScore,
			"high_score": s.HighScore,
		}
	}
	return models.JSONB{"stumps": stumps}
}

// Score 树桩投票均值 [0,1]
func (f *StumpForest) Score(features []float64) float64 {
	if len(f.Stumps) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range f.Stumps {
		value := 0.0
		if s.Feature < len(features) {
			value = features[s.Feature]
		}
		if value > s.Threshold {
			sum += s.HighScore
		} else {
			sum += s.LowScore
		}
	}
	return sum / float64(len(f.Stumps))
}
