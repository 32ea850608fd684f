/*
 * @module service/detectors/behavior_test
 * @description 作答行为检测单元测试
 * @architecture 测试层
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 构造数据集 -> 执行检测 -> 验证问题产出
 * @rules 直线作答按题组方差判定，过快作答区分绝对下限与分位数下限
 * @dependencies testing, testify
 * @refs behavior.go
 */

package detectors

import (
	"context"
	"fmt"
	"testing"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/engine"
	"surveyqc-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func behaviorSchema() *dataset.Schema {
	fields := map[string]dataset.FieldType{
		"started_at": dataset.FieldDatetime,
		"ended_at":   dataset.FieldDatetime,
	}
	for i := 1; i <= 10; i++ {
		fields[fmt.Sprintf("q%02d", i)] = dataset.FieldNumeric
	}
	return &dataset.Schema{Fields: fields}
}

func batteryRow(values []int, durationSeconds int) map[string]interface{} {
	row := map[string]interface{}{
		"started_at": "2024-06-01 10:00:00",
		"ended_at":   fmt.Sprintf("2024-06-01 10:%02d:%02d", durationSeconds/60, durationSeconds%60),
	}
	for i, v := range values {
		row[fmt.Sprintf("q%02d", i+1)] = v
	}
	return row
}

func TestStraightliners(t *testing.T) {
	rows := []map[string]interface{}{
		batteryRow([]int{3, 3, 3, 3, 3, 3, 3, 3, 3, 3}, 300), // 直线作答
		batteryRow([]int{1, 4, 2, 5, 3, 1, 5, 2, 4, 3}, 300), // 正常变化
		batteryRow([]int{4, 4, 4, 4, 4, 4, 4, 4, 4, 5}, 300), // 方差0.09，低于阈值
	}
	ds, err := dataset.New("straight-test", behaviorSchema(), rows)
	require.NoError(t, err)
	rc := &engine.RunContext{Dataset: ds}

	findings, err := runStraightliners(context.Background(), rc, engine.Params{"max_variance": 0.1})
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, 0, findings[0].RecordIndex)
	assert.Equal(t, 2, findings[1].RecordIndex)
	assert.Greater(t, findings[0].Confidence, findings[1].Confidence)
}

func TestStraightlinersSkipsShortBatteries(t *testing.T) {
	rows := []map[string]interface{}{
		batteryRow([]int{3, 3, 3}, 300), // 仅3道题，低于 min_items
	}
	ds, err := dataset.New("straight-short", behaviorSchema(), rows)
	require.NoError(t, err)

	findings, err := runStraightliners(context.Background(), &engine.RunContext{Dataset: ds}, engine.Params{})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestStraightlinersUnknownBatteryField(t *testing.T) {
	ds, err := dataset.New("straight-bad", behaviorSchema(), []map[string]interface{}{
		batteryRow([]int{1, 2, 3, 4, 5, 1, 2, 3, 4, 5}, 300),
	})
	require.NoError(t, err)

	_, err = runStraightliners(context.Background(), &engine.RunContext{Dataset: ds},
		engine.Params{"battery_fields": []interface{}{"nonexistent"}})
	assert.ErrorIs(t, err, engine.ErrMisconfigured)
}

func TestSpeeders(t *testing.T) {
	varied := []int{1, 4, 2, 5, 3, 1, 5, 2, 4, 3}
	rows := []map[string]interface{}{
		batteryRow(varied, 10), // 低于绝对下限30秒
		batteryRow(varied, 300),
		batteryRow(varied, 320),
		batteryRow(varied, 340),
		batteryRow(varied, 360),
	}
	ds, err := dataset.New("speeder-test", behaviorSchema(), rows)
	require.NoError(t, err)

	findings, err := runSpeeders(context.Background(), &engine.RunContext{Dataset: ds},
		engine.Params{"min_seconds": 30})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 0, findings[0].RecordIndex)
	// 绝对下限命中用检测项默认严重级别（留空由调度器填充）
	assert.Equal(t, "", findings[0].Severity)
}

func TestSpeedersInsufficientData(t *testing.T) {
	ds, err := dataset.New("speeder-small", behaviorSchema(), []map[string]interface{}{
		batteryRow([]int{1, 2, 3, 4, 5, 1, 2, 3, 4, 5}, 300),
	})
	require.NoError(t, err)

	_, err = runSpeeders(context.Background(), &engine.RunContext{Dataset: ds}, engine.Params{})
	assert.ErrorIs(t, err, engine.ErrInsufficientData)
}

func TestResponsePatterns(t *testing.T) {
	rows := []map[string]interface{}{
		batteryRow([]int{1, 5, 1, 5, 1, 5, 1, 5, 1, 5}, 300), // ABAB 交替
		batteryRow([]int{1, 4, 2, 5, 3, 1, 5, 2, 4, 3}, 300),
	}
	ds, err := dataset.New("pattern-test", behaviorSchema(), rows)
	require.NoError(t, err)

	findings, err := runResponsePatterns(context.Background(), &engine.RunContext{Dataset: ds}, engine.Params{})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 0, findings[0].RecordIndex)
	assert.Equal(t, 1.0, findings[0].Confidence)
}

func TestResponseTime(t *testing.T) {
	varied := []int{1, 4, 2, 5, 3, 1, 5, 2, 4, 3}
	rows := []map[string]interface{}{
		batteryRow(varied, 300),
		batteryRow(varied, 310),
		batteryRow(varied, 320),
		batteryRow(varied, 3200), // 中位数的10倍
	}
	ds, err := dataset.New("rt-test", behaviorSchema(), rows)
	require.NoError(t, err)

	findings, err := runResponseTime(context.Background(), &engine.RunContext{Dataset: ds},
		engine.Params{"max_median_multiple": 5})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 3, findings[0].RecordIndex)
}

func TestSpeedersPercentileFloor(t *testing.T) {
	varied := []int{1, 4, 2, 5, 3, 1, 5, 2, 4, 3}
	rows := make([]map[string]interface{}, 0, 21)
	rows = append(rows, batteryRow(varied, 40)) // 高于绝对下限但低于P5
	for i := 0; i < 20; i++ {
		rows = append(rows, batteryRow(varied, 300+i*10))
	}
	ds, err := dataset.New("speeder-floor", behaviorSchema(), rows)
	require.NoError(t, err)

	findings, err := runSpeeders(context.Background(), &engine.RunContext{Dataset: ds},
		engine.Params{"min_seconds": 30, "floor_percentile": 5})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 0, findings[0].RecordIndex)
	// 分位数下限命中降为中等严重级别
	assert.Equal(t, models.SeverityMedium, findings[0].Severity)
}
