/*
 * @module service/mldetect/registry_test
 * @description 模型版本注册表与适应流程单元测试
 * @architecture 测试层 - 使用内存SQLite数据库
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 发布版本 -> 查询激活版本 -> 反馈适应 -> 验证新版本
 * @rules 版本发布后不可变，适应永远追加新版本
 * @dependencies testing, testify, testutil
 * @refs registry.go, adapt.go
 */

package mldetect

import (
	"testing"

	"surveyqc-service/service/models"
	"surveyqc-service/testutil"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *testutil.TestDB) {
	tdb := testutil.NewTestDB()
	t.Cleanup(tdb.Close)

	registry, err := NewRegistry(tdb.DB)
	require.NoError(t, err)
	return registry, tdb
}

func TestRegistryPublishAndActive(t *testing.T) {
	registry, _ := newTestRegistry(t)

	v1, err := registry.Publish(models.ModelFamilyBotClassifier,
		DefaultLogisticModel().Artifact(), models.JSONB{}, 42, "system")
	require.NoError(t, err)
	assert.Equal(t, 1, v1.VersionNumber)

	v2, err := registry.Publish(models.ModelFamilyBotClassifier,
		DefaultLogisticModel().Artifact(), models.JSONB{"samples": 20}, 42, "analyst01")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)

	active, err := registry.Active(models.ModelFamilyBotClassifier)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)

	got, err := registry.Get(models.ModelFamilyBotClassifier, 1)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, got.ID)

	assert.Len(t, registry.Versions(models.ModelFamilyBotClassifier), 2)
}

func TestRegistryUnknownFamily(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.Active("nonexistent")
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = registry.Get(models.ModelFamilyBotClassifier, 99)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestRegistryReloadsFromDatabase(t *testing.T) {
	registry, tdb := newTestRegistry(t)

	_, err := registry.Publish(models.ModelFamilyPattern,
		DefaultSequenceModel().Artifact(), models.JSONB{}, 42, "system")
	require.NoError(t, err)

	// 新注册表从数据库恢复谱系
	reloaded, err := NewRegistry(tdb.DB)
	require.NoError(t, err)

	active, err := reloaded.Active(models.ModelFamilyPattern)
	require.NoError(t, err)
	assert.Equal(t, 1, active.VersionNumber)
}

func TestAdaptBotClassifier(t *testing.T) {
	registry, _ := newTestRegistry(t)

	base, err := registry.Publish(models.ModelFamilyBotClassifier,
		DefaultBotClassifierArtifact(), models.JSONB{}, 42, "system")
	require.NoError(t, err)

	samples := make([]LabeledVector, 12)
	for i := range samples {
		features := make([]float64, NumFeatures)
		if i%2 == 0 {
			features[FeatRepetitionRatio] = 0.9
			samples[i] = LabeledVector{Features: features, Label: 1}
		} else {
			features[FeatCharDiversity] = 0.8
			samples[i] = LabeledVector{Features: features, Label: 0}
		}
	}

	adapter := NewAdapter(registry)
	adapted, err := adapter.AdaptBotClassifier(samples, "analyst01")
	require.NoError(t, err)

	// 适应发布新版本，旧版本保持不变
	assert.Equal(t, 2, adapted.VersionNumber)
	assert.Equal(t, "analyst01", adapted.CreatedBy)
	assert.Equal(t, 12, adapted.TrainingMetrics["samples"])
	assert.Equal(t, 6, adapted.TrainingMetrics["positives"])

	original, err := registry.Get(models.ModelFamilyBotClassifier, 1)
	require.NoError(t, err)
	assert.Equal(t, base.Artifact, original.Artifact)
	assert.NotEqual(t, original.Artifact, adapted.Artifact)

	// 树桩森林随新版本制品携带，适应后仍可恢复
	forest, err := ForestFromArtifact(adapted.Artifact)
	require.NoError(t, err)
	assert.Len(t, forest.Stumps, len(DefaultStumpForest().Stumps))
}

func TestAdaptBotClassifierInsufficientFeedback(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.Publish(models.ModelFamilyBotClassifier,
		DefaultLogisticModel().Artifact(), models.JSONB{}, 42, "system")
	require.NoError(t, err)

	adapter := NewAdapter(registry)
	_, err = adapter.AdaptBotClassifier(make([]LabeledVector, 3), "analyst01")
	assert.ErrorIs(t, err, ErrInsufficientFeedback)

	// 样本不足时不发布新版本
	assert.Len(t, registry.Versions(models.ModelFamilyBotClassifier), 1)
}

func TestAdaptAnomalyDetector(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.Publish(models.ModelFamilyAnomaly,
		DefaultAnomalyArtifact(), models.JSONB{}, 42, "system")
	require.NoError(t, err)

	matrix := make([][]float64, 30)
	for i := range matrix {
		matrix[i] = []float64{float64(i), float64(i % 5)}
	}

	adapter := NewAdapter(registry)
	adapted, err := adapter.AdaptAnomalyDetector(matrix, "analyst01")
	require.NoError(t, err)
	assert.Equal(t, 2, adapted.VersionNumber)

	// 适应后的版本携带播种版本没有的分数校准
	assert.Contains(t, adapted.Artifact, "calibration")
	assert.NotEqual(t, DefaultAnomalyArtifact(), adapted.Artifact)
	assert.Equal(t, 30, adapted.TrainingMetrics["samples"])
	assert.Greater(t, cast.ToFloat64(adapted.TrainingMetrics["score_mean"]), 0.0)

	floor := CalibratedScoreFloor(adapted.Artifact, 0.5)
	assert.Greater(t, floor, 0.0)
	assert.NotEqual(t, 0.5, floor)

	_, err = adapter.AdaptAnomalyDetector(matrix[:2], "analyst01")
	assert.ErrorIs(t, err, ErrInsufficientFeedback)
}

func TestCalibratedScoreFloorFallback(t *testing.T) {
	assert.Equal(t, 0.5, CalibratedScoreFloor(DefaultAnomalyArtifact(), 0.5))
}

func TestAdaptSequenceModel(t *testing.T) {
	registry, _ := newTestRegistry(t)

	base, err := registry.Publish(models.ModelFamilyPattern,
		DefaultSequenceModel().Artifact(), models.JSONB{}, 42, "system")
	require.NoError(t, err)

	// 确认的平直序列上调原地转移，驳回的递增序列下调相邻转移
	sequences := make([]LabeledSequence, 0, 12)
	for i := 0; i < 6; i++ {
		sequences = append(sequences, LabeledSequence{Values: []float64{3, 3, 3, 3, 3}, Label: 1})
		sequences = append(sequences, LabeledSequence{Values: []float64{1, 2, 3, 4, 5}, Label: 0})
	}

	adapter := NewAdapter(registry)
	adapted, err := adapter.AdaptSequenceModel(sequences, "analyst01")
	require.NoError(t, err)
	assert.Equal(t, 2, adapted.VersionNumber)
	assert.Equal(t, 12, adapted.TrainingMetrics["samples"])
	assert.Equal(t, 6, adapted.TrainingMetrics["positives"])

	model, err := SequenceFromArtifact(adapted.Artifact)
	require.NoError(t, err)
	baseModel, err := SequenceFromArtifact(base.Artifact)
	require.NoError(t, err)
	assert.Greater(t, model.Transitions[0][0], baseModel.Transitions[0][0])
	assert.Less(t, model.Transitions[0][1], baseModel.Transitions[0][1])
}

func TestAdaptSequenceModelInsufficientFeedback(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.Publish(models.ModelFamilyPattern,
		DefaultSequenceModel().Artifact(), models.JSONB{}, 42, "system")
	require.NoError(t, err)

	// 短于3项的序列不计入反馈样本
	sequences := make([]LabeledSequence, 12)
	for i := range sequences {
		sequences[i] = LabeledSequence{Values: []float64{3, 3}, Label: 1}
	}

	adapter := NewAdapter(registry)
	_, err = adapter.AdaptSequenceModel(sequences, "analyst01")
	assert.ErrorIs(t, err, ErrInsufficientFeedback)
	assert.Len(t, registry.Versions(models.ModelFamilyPattern), 1)
}
