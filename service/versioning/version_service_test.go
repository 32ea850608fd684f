/*
 * @module service/versioning/version_service_test
 * @description 规则版本服务单元测试
 * @architecture 测试层 - 使用内存SQLite数据库
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 提议 -> 激活 -> 回滚 -> 审计验证
 * @rules 版本只追加，激活校验谱系，回滚目标为上次激活事件的来源版本
 * @dependencies testing, testify, testutil
 * @refs version_service.go
 */

package versioning

import (
	"testing"

	"surveyqc-service/service/models"
	"surveyqc-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *testutil.TestDataFactory) {
	tdb := testutil.NewTestDB()
	t.Cleanup(tdb.Close)
	return NewService(tdb.DB), testutil.NewTestDataFactory(tdb.DB)
}

func TestProposeIncrementsVersionNumber(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateCheckDefinition("straightliners")

	v2, err := svc.Propose("straightliners", models.JSONB{"max_variance": 0.2}, "analyst01", "放宽方差阈值")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)

	v3, err := svc.Propose("straightliners", models.JSONB{"max_variance": 0.05}, "analyst01", "")
	require.NoError(t, err)
	assert.Equal(t, 3, v3.VersionNumber)

	// 提议不改变当前激活版本
	active, err := svc.GetActive("straightliners")
	require.NoError(t, err)
	assert.Equal(t, 1, active.VersionNumber)

	history, err := svc.History("straightliners")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestProposeUnknownCheck(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Propose("ghost", models.JSONB{}, "analyst01", "")
	assert.ErrorIs(t, err, ErrCheckNotFound)
}

func TestActivateAndAudit(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateCheckDefinition("speeders")

	v2, err := svc.Propose("speeders", models.JSONB{"min_seconds": 60}, "analyst01", "")
	require.NoError(t, err)

	require.NoError(t, svc.Activate("speeders", v2.ID, "analyst01"))

	active, err := svc.GetActive("speeders")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)

	events, err := svc.Audit("speeders")
	require.NoError(t, err)
	require.Len(t, events, 2) // 初始激活 + 本次激活

	last := events[len(events)-1]
	assert.Equal(t, "activate", last.Action)
	assert.Equal(t, v2.ID, last.ToVersionID)
	assert.NotEmpty(t, last.FromVersionID)
	// 参数差异记录新增的键
	assert.Contains(t, last.ParamsDiff, "min_seconds")
}

func TestActivateRejectsCrossLineageVersion(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateCheckDefinition("speeders")
	factory.CreateCheckDefinition("outliers")

	foreign, err := svc.Propose("outliers", models.JSONB{"z_threshold": 2.5}, "analyst01", "")
	require.NoError(t, err)

	err = svc.Activate("speeders", foreign.ID, "analyst01")
	assert.ErrorIs(t, err, ErrVersionConflict)

	err = svc.Activate("speeders", "nonexistent-version", "analyst01")
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestRollback(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateCheckDefinition("speeders")

	v1, err := svc.GetActive("speeders")
	require.NoError(t, err)

	v2, err := svc.Propose("speeders", models.JSONB{"min_seconds": 60}, "analyst01", "")
	require.NoError(t, err)
	require.NoError(t, svc.Activate("speeders", v2.ID, "analyst01"))

	rolled, err := svc.Rollback("speeders", "analyst02")
	require.NoError(t, err)
	assert.Equal(t, v1.ID, rolled.ID)

	active, err := svc.GetActive("speeders")
	require.NoError(t, err)
	assert.Equal(t, v1.ID, active.ID)

	// 回滚本身也写入审计事件
	events, err := svc.Audit("speeders")
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, "rollback", last.Action)
	assert.Equal(t, v2.ID, last.FromVersionID)
	assert.Equal(t, v1.ID, last.ToVersionID)
}

func TestRollbackAtLineageOrigin(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateCheckDefinition("speeders")

	// 初始版本的激活事件没有来源版本，无法再回滚
	_, err := svc.Rollback("speeders", "analyst01")
	assert.ErrorIs(t, err, ErrNoPriorVersion)
}

func TestSetEnabled(t *testing.T) {
	svc, factory := newTestService(t)
	factory.CreateCheckDefinition("speeders")

	require.NoError(t, svc.SetEnabled("speeders", false))

	def, err := svc.GetCheck("speeders")
	require.NoError(t, err)
	assert.False(t, def.IsEnabled)

	assert.ErrorIs(t, svc.SetEnabled("ghost", true), ErrCheckNotFound)
}

func TestParamsDiff(t *testing.T) {
	diff := paramsDiff(
		models.JSONB{"kept": 1, "changed": 0.5, "removed": "x"},
		models.JSONB{"kept": 1, "changed": 0.9, "added": true},
	)

	assert.NotContains(t, diff, "kept")
	assert.Equal(t, map[string]interface{}{"from": 0.5, "to": 0.9}, diff["changed"])
	assert.Equal(t, map[string]interface{}{"added": true}, diff["added"])
	assert.Equal(t, map[string]interface{}{"removed": "x"}, diff["removed"])
}
