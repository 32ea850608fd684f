/*
 * @module service/scoring/scorecard_test
 * @description 质量计分卡单元测试
 * @architecture 测试层
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 问题集合 -> 纯投影计分 -> 验证幂等与排除规则
 * @rules 仅rejected问题不计分，同一问题集合计算结果恒等
 * @dependencies testing, testify
 * @refs scorecard.go
 */

package scoring

import (
	"testing"

	"surveyqc-service/service/models"
	"surveyqc-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePenalties(t *testing.T) {
	issues := []models.Issue{
		{RecordIndex: 0, Severity: models.SeverityHigh, Category: models.CheckCategoryDuplicate, Confidence: 1.0, Status: models.IssueStatusOpen},
		{RecordIndex: 0, Severity: models.SeverityLow, Category: models.CheckCategoryPattern, Confidence: 0.5, Status: models.IssueStatusApproved},
		{RecordIndex: 2, Severity: models.SeverityCritical, Category: models.CheckCategoryBehavioral, Confidence: 1.0, Status: models.IssueStatusResolved},
	}

	card := Compute("survey-1", 3, issues, DefaultWeights())

	// 记录0：10×1.0 + 2×0.5 = 11 罚分
	assert.InDelta(t, 89, card.RecordScores[0].Score, 1e-9)
	assert.Equal(t, 2, card.RecordScores[0].IssueCount)
	// 记录1：无问题
	assert.InDelta(t, 100, card.RecordScores[1].Score, 1e-9)
	// 记录2：20×1.0 = 20 罚分
	assert.InDelta(t, 80, card.RecordScores[2].Score, 1e-9)

	assert.InDelta(t, (89+100+80)/3.0, card.DatasetScore, 1e-9)
	assert.Equal(t, 3, card.TotalIssues)
}

func TestComputeExcludesRejected(t *testing.T) {
	issues := []models.Issue{
		{RecordIndex: 0, Severity: models.SeverityCritical, Category: models.CheckCategoryDuplicate, Confidence: 1.0, Status: models.IssueStatusRejected},
	}

	card := Compute("survey-2", 1, issues, DefaultWeights())

	assert.InDelta(t, 100, card.RecordScores[0].Score, 1e-9)
	assert.Equal(t, 0, card.TotalIssues)
}

func TestComputeIdempotent(t *testing.T) {
	issues := []models.Issue{
		{RecordIndex: 1, Severity: models.SeverityMedium, Category: models.CheckCategorySentiment, Confidence: 0.7, Status: models.IssueStatusOpen},
		{RecordIndex: 3, Severity: models.SeverityHigh, Category: models.CheckCategoryDuplicate, Confidence: 0.9, Status: models.IssueStatusOpen},
	}

	first := Compute("survey-3", 5, issues, DefaultWeights())
	second := Compute("survey-3", 5, issues, DefaultWeights())

	assert.Equal(t, first.DatasetScore, second.DatasetScore)
	assert.Equal(t, first.RecordScores, second.RecordScores)
	assert.Equal(t, first.P25, second.P25)
	assert.Equal(t, first.P50, second.P50)
	assert.Equal(t, first.P75, second.P75)
}

func TestComputeClampsAtZero(t *testing.T) {
	var issues []models.Issue
	for i := 0; i < 10; i++ {
		issues = append(issues, models.Issue{
			RecordIndex: 0,
			Severity:    models.SeverityCritical,
			Category:    models.CheckCategoryBehavioral,
			Confidence:  1.0,
			Status:      models.IssueStatusOpen,
		})
	}

	card := Compute("survey-4", 1, issues, DefaultWeights())
	assert.Equal(t, 0.0, card.RecordScores[0].Score)
}

func TestComputeDatasetLevelIssues(t *testing.T) {
	issues := []models.Issue{
		{RecordIndex: -1, Severity: models.SeverityLow, Category: models.CheckCategoryPattern, Confidence: 1.0, Status: models.IssueStatusOpen},
	}

	card := Compute("survey-5", 2, issues, DefaultWeights())

	// 数据集级问题计入总数但不罚到单条记录
	assert.Equal(t, 1, card.TotalIssues)
	assert.InDelta(t, 100, card.RecordScores[0].Score, 1e-9)
	assert.InDelta(t, 100, card.RecordScores[1].Score, 1e-9)
}

func TestComputeEmptyDataset(t *testing.T) {
	card := Compute("survey-6", 0, nil, DefaultWeights())
	assert.Equal(t, 100.0, card.DatasetScore)
	assert.Empty(t, card.RecordScores)
}

func TestComputePercentiles(t *testing.T) {
	issues := []models.Issue{
		{RecordIndex: 0, Severity: models.SeverityCritical, Category: models.CheckCategoryDuplicate, Confidence: 1.0, Status: models.IssueStatusOpen},
		{RecordIndex: 1, Severity: models.SeverityHigh, Category: models.CheckCategoryDuplicate, Confidence: 1.0, Status: models.IssueStatusOpen},
	}

	card := Compute("survey-7", 4, issues, DefaultWeights())

	// 分数排序后为 [80, 90, 100, 100]，最近秩分位
	assert.InDelta(t, 80, card.P25, 1e-9)
	assert.InDelta(t, 90, card.P50, 1e-9)
	assert.InDelta(t, 100, card.P75, 1e-9)
}

func TestScoringServiceForRun(t *testing.T) {
	tdb := testutil.NewTestDB()
	t.Cleanup(tdb.Close)
	factory := testutil.NewTestDataFactory(tdb.DB)

	run := factory.CreateDetectionRun("survey-8")
	factory.CreateIssue(run.ID, "survey-8", 0, func(i *models.Issue) {
		i.Severity = models.SeverityHigh
		i.Confidence = 1.0
	})
	factory.CreateIssue(run.ID, "survey-8", 1, func(i *models.Issue) {
		i.Status = models.IssueStatusRejected
	})

	svc := NewService(tdb.DB, DefaultWeights())
	card, err := svc.ForRun(run.ID, 2)
	require.NoError(t, err)

	assert.Equal(t, run.ID, card.RunID)
	assert.Equal(t, "survey-8", card.DatasetRef)
	assert.Equal(t, 1, card.TotalIssues)
	assert.InDelta(t, 90, card.RecordScores[0].Score, 1e-9)
	assert.InDelta(t, 100, card.RecordScores[1].Score, 1e-9)
}
