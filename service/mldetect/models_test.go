/*
 * @module service/mldetect/models_test
 * @description 检测模型单元测试：逻辑回归、隔离森林、序列模型和集成
 * @architecture 测试层 - 纯函数测试，无外部依赖
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 模型构建 -> 评分 -> 输出验证
 * @rules 固定种子下评分结果必须确定，样本不足时拒绝评分
 * @dependencies testing, testify
 * @refs logistic.go, anomaly.go, pattern.go, ensemble.go
 */

package mldetect

import (
	"testing"

	"surveyqc-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogisticModelRoundTrip(t *testing.T) {
	model := DefaultLogisticModel()
	restored, err := LogisticFromArtifact(model.Artifact())
	require.NoError(t, err)

	features := make([]float64, NumFeatures)
	features[FeatRepetitionRatio] = 0.9
	features[FeatIPFrequency] = 0.8
	assert.InDelta(t, model.Score(features), restored.Score(features), 1e-9)
}

func TestLogisticFromArtifactRejectsBadWeights(t *testing.T) {
	_, err := LogisticFromArtifact(models.JSONB{"weights": []interface{}{1.0, 2.0}})
	assert.Error(t, err)

	_, err = LogisticFromArtifact(models.JSONB{})
	assert.Error(t, err)
}

func TestLogisticTrainReturnsNewModel(t *testing.T) {
	base := DefaultLogisticModel()
	baseWeights := append([]float64(nil), base.Weights...)

	samples := []LabeledVector{
		{Features: make([]float64, NumFeatures), Label: 0},
	}
	samples[0].Features[FeatRepetitionRatio] = 1.0

	trained := base.Train(samples, 0.1, 20)

	// 原模型不可变，训练返回新模型
	assert.Equal(t, baseWeights, base.Weights)
	assert.NotEqual(t, base.Weights, trained.Weights)
}

func TestLogisticScoreSeparatesBotLikeVectors(t *testing.T) {
	model := DefaultLogisticModel()

	human := make([]float64, NumFeatures)
	human[FeatCharDiversity] = 0.8
	human[FeatTokenEntropy] = 0.9
	human[FeatTimingStddev] = 0.7

	bot := make([]float64, NumFeatures)
	bot[FeatRepetitionRatio] = 0.95
	bot[FeatIPFrequency] = 0.9

	assert.Greater(t, model.Score(bot), model.Score(human))
}

func TestIsolationForestDeterminism(t *testing.T) {
	matrix := make([][]float64, 50)
	for i := range matrix {
		matrix[i] = []float64{float64(i % 7), float64(i % 3), 0.5}
	}
	matrix[49] = []float64{100, -40, 9}

	scoreWith := func() float64 {
		forest := AnomalyFromArtifact(DefaultAnomalyArtifact())
		require.NoError(t, forest.Fit(matrix))
		return forest.Score(matrix[49])
	}

	first := scoreWith()
	second := scoreWith()

	// 固定种子下两次训练评分完全一致
	assert.Equal(t, first, second)

	// 离群点分数应高于正常点
	forest := AnomalyFromArtifact(DefaultAnomalyArtifact())
	require.NoError(t, forest.Fit(matrix))
	assert.Greater(t, forest.Score(matrix[49]), forest.Score(matrix[10]))
}

func TestIsolationForestInsufficientSamples(t *testing.T) {
	forest := AnomalyFromArtifact(DefaultAnomalyArtifact())
	err := forest.Fit([][]float64{{1, 2}, {3, 4}})
	assert.ErrorIs(t, err, ErrInsufficientSamples)
}

func TestSequenceModelScoring(t *testing.T) {
	model := DefaultSequenceModel()

	t.Run("原地重复最可疑", func(t *testing.T) {
		flat := model.Score([]float64{3, 3, 3, 3, 3, 3, 3, 3})
		varied := model.Score([]float64{1, 4, 2, 5, 3, 1, 5, 2})
		assert.Greater(t, flat, varied)
	})

	t.Run("周期交替额外加权", func(t *testing.T) {
		alternating := model.Score([]float64{1, 5, 1, 5, 1, 5, 1, 5})
		varied := model.Score([]float64{1, 4, 2, 5, 3, 1, 5, 2})
		assert.Greater(t, alternating, varied)
	})

	t.Run("序列过短返回0", func(t *testing.T) {
		assert.Equal(t, 0.0, model.Score([]float64{1, 2}))
	})
}

func TestSequenceModelRoundTrip(t *testing.T) {
	model := DefaultSequenceModel()
	restored, err := SequenceFromArtifact(model.Artifact())
	require.NoError(t, err)

	seq := []float64{2, 2, 2, 4, 4, 2, 2, 2}
	assert.InDelta(t, model.Score(seq), restored.Score(seq), 1e-9)
}

func TestEnsembleCombine(t *testing.T) {
	result := Combine([]MemberScore{
		{Name: "logistic", Weight: 0.5, Score: 0.8},
		{Name: "forest", Weight: 0.3, Score: 0.6},
		{Name: "sequence", Weight: 0.2, Score: 0.4},
	})

	assert.InDelta(t, 0.66, result.Score, 1e-9)
	assert.Contains(t, result.Explain(), "logistic=0.800")
	assert.Contains(t, result.Explain(), "权重0.50")
}

func TestEnsembleCombineEmpty(t *testing.T) {
	result := Combine(nil)
	assert.Equal(t, 0.0, result.Score)
	assert.Equal(t, "", result.Explain())
}
