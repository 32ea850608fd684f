/*
 * @module service/detection_service_test
 * @description 检测编排服务的反馈适应流程单元测试
 * @architecture 测试层 - 使用内存SQLite数据库
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 登记数据集 -> 写入已审核问题 -> 反馈适应 -> 验证各模型族新版本
 * @rules 适应永远发布新版本，反馈不足的模型族跳过
 * @dependencies testing, testify, testutil
 * @refs detection_service.go, service/mldetect/adapt.go
 */

package service

import (
	"fmt"
	"testing"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/engine"
	"surveyqc-service/service/event"
	"surveyqc-service/service/mldetect"
	"surveyqc-service/service/models"
	"surveyqc-service/service/scoring"
	"surveyqc-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFeedbackFixture(t *testing.T) (*DetectionService, *mldetect.Registry, *testutil.TestDB) {
	tdb := testutil.NewTestDB()
	t.Cleanup(tdb.Close)

	registry, err := mldetect.NewRegistry(tdb.DB)
	require.NoError(t, err)
	seeds := []struct {
		family   string
		artifact models.JSONB
	}{
		{models.ModelFamilyBotClassifier, mldetect.DefaultBotClassifierArtifact()},
		{models.ModelFamilyPattern, mldetect.DefaultSequenceModel().Artifact()},
		{models.ModelFamilyAnomaly, mldetect.DefaultAnomalyArtifact()},
	}
	for _, s := range seeds {
		_, err := registry.Publish(s.family, s.artifact, models.JSONB{}, 42, "system")
		require.NoError(t, err)
	}

	fields := make(map[string]dataset.FieldType)
	for i := 1; i <= 5; i++ {
		fields[fmt.Sprintf("q%02d", i)] = dataset.FieldNumeric
	}
	rows := make([]map[string]interface{}, 12)
	for i := range rows {
		row := make(map[string]interface{})
		for j := 1; j <= 5; j++ {
			row[fmt.Sprintf("q%02d", j)] = 1 + (i+j)%5
		}
		rows[i] = row
	}
	ds, err := dataset.New("feedback-ds", &dataset.Schema{Fields: fields}, rows)
	require.NoError(t, err)
	store := dataset.NewStore()
	store.Register(ds)

	svc := NewDetectionService(tdb.DB, store, engine.Default, nil, registry,
		scoring.NewService(tdb.DB, scoring.DefaultWeights()), event.NewService(tdb.DB))
	return svc, registry, tdb
}

func seedReviewedIssues(t *testing.T, tdb *testutil.TestDB, checkID string, count int) {
	for i := 0; i < count; i++ {
		status := models.IssueStatusApproved
		if i%2 == 1 {
			status = models.IssueStatusRejected
		}
		issue := &models.Issue{
			RunID:         "run-feedback",
			DatasetRef:    "feedback-ds",
			RecordIndex:   i,
			CheckID:       checkID,
			Category:      models.CheckCategoryBehavioral,
			RuleVersionID: "rv-1",
			Severity:      models.SeverityMedium,
			Confidence:    0.8,
			Status:        status,
		}
		require.NoError(t, tdb.DB.Create(issue).Error)
	}
}

func TestAdaptFromFeedbackPublishesPerFamily(t *testing.T) {
	svc, registry, tdb := newFeedbackFixture(t)

	seedReviewedIssues(t, tdb, "bot_detection", 12)
	seedReviewedIssues(t, tdb, "pattern_detection", 12)
	seedReviewedIssues(t, tdb, "anomaly_detection", 2)

	versions, err := svc.AdaptFromFeedback("analyst01")
	require.NoError(t, err)
	require.Len(t, versions, 3)

	families := make(map[string]int)
	for _, v := range versions {
		families[v.Family] = v.VersionNumber
	}
	assert.Equal(t, 2, families[models.ModelFamilyBotClassifier])
	assert.Equal(t, 2, families[models.ModelFamilyPattern])
	assert.Equal(t, 2, families[models.ModelFamilyAnomaly])

	// 异常检测器的新版本带有播种版本没有的分数校准
	adapted, err := registry.Active(models.ModelFamilyAnomaly)
	require.NoError(t, err)
	assert.Contains(t, adapted.Artifact, "calibration")
}

func TestAdaptFromFeedbackSkipsFamiliesWithoutFeedback(t *testing.T) {
	svc, registry, tdb := newFeedbackFixture(t)

	// 只有机器人检测有足够反馈，其余模型族跳过且不发布新版本
	seedReviewedIssues(t, tdb, "bot_detection", 12)

	versions, err := svc.AdaptFromFeedback("analyst01")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, models.ModelFamilyBotClassifier, versions[0].Family)

	assert.Len(t, registry.Versions(models.ModelFamilyPattern), 1)
	assert.Len(t, registry.Versions(models.ModelFamilyAnomaly), 1)
}

func TestAdaptFromFeedbackInsufficientEverywhere(t *testing.T) {
	svc, _, _ := newFeedbackFixture(t)

	_, err := svc.AdaptFromFeedback("analyst01")
	assert.ErrorIs(t, err, mldetect.ErrInsufficientFeedback)
}
