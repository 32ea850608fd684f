/*
 * @module service/detectors/consistency_test
 * @description 逻辑一致性检测单元测试
 * @architecture 测试层
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 数据化规则 -> 逐记录求值 -> 验证违例产出
 * @rules 规则为数据化 if/then 结构，非法规则返回配置错误
 * @dependencies testing, testify
 * @refs consistency.go
 */

package detectors

import (
	"context"
	"testing"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func consistencyTestContext(t *testing.T, rows []map[string]interface{}) *engine.RunContext {
	schema := &dataset.Schema{Fields: map[string]dataset.FieldType{
		"has_car":    dataset.FieldCategorical,
		"car_brand":  dataset.FieldText,
		"age":        dataset.FieldNumeric,
		"start_age":  dataset.FieldNumeric,
		"end_age":    dataset.FieldNumeric,
		"employment": dataset.FieldCategorical,
	}}
	ds, err := dataset.New("consistency-test", schema, rows)
	require.NoError(t, err)
	return &engine.RunContext{Dataset: ds}
}

func TestLogicalConsistency(t *testing.T) {
	rc := consistencyTestContext(t, []map[string]interface{}{
		{"has_car": "yes", "car_brand": "Toyota"},
		{"has_car": "yes", "car_brand": ""}, // 违例：有车但未填品牌
		{"has_car": "no", "car_brand": ""},
	})

	params := engine.Params{
		"rules": []interface{}{
			map[string]interface{}{
				"name": "car_brand_required",
				"if":   map[string]interface{}{"field": "has_car", "operator": "eq", "value": "yes"},
				"then": map[string]interface{}{"field": "car_brand", "operator": "not_empty"},
			},
		},
	}

	findings, err := runLogicalConsistency(context.Background(), rc, params)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 1, findings[0].RecordIndex)
	assert.Equal(t, "car_brand", findings[0].Field)
	assert.Equal(t, 1.0, findings[0].Confidence)
}

func TestLogicalConsistencyNumericOperators(t *testing.T) {
	rc := consistencyTestContext(t, []map[string]interface{}{
		{"age": 15, "employment": "full_time"}, // 违例：未成年全职
		{"age": 30, "employment": "full_time"},
		{"age": 12, "employment": "student"},
	})

	params := engine.Params{
		"rules": []interface{}{
			map[string]interface{}{
				"name": "minor_employment",
				"if":   map[string]interface{}{"field": "age", "operator": "lt", "value": 18},
				"then": map[string]interface{}{"field": "employment", "operator": "in", "values": []interface{}{"student", "none"}},
			},
		},
	}

	findings, err := runLogicalConsistency(context.Background(), rc, params)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 0, findings[0].RecordIndex)
}

func TestLogicalConsistencyRejectsBadRules(t *testing.T) {
	rc := consistencyTestContext(t, nil)

	testCases := []struct {
		name   string
		params engine.Params
	}{
		{"规则缺失", engine.Params{}},
		{"操作符非法", engine.Params{"rules": []interface{}{
			map[string]interface{}{
				"if":   map[string]interface{}{"field": "age", "operator": "matches", "value": 1},
				"then": map[string]interface{}{"field": "age", "operator": "eq", "value": 1},
			},
		}}},
		{"字段不在模式中", engine.Params{"rules": []interface{}{
			map[string]interface{}{
				"if":   map[string]interface{}{"field": "ghost", "operator": "eq", "value": 1},
				"then": map[string]interface{}{"field": "age", "operator": "eq", "value": 1},
			},
		}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runLogicalConsistency(context.Background(), rc, tc.params)
			assert.ErrorIs(t, err, engine.ErrMisconfigured)
		})
	}
}

func TestCrossValidation(t *testing.T) {
	rc := consistencyTestContext(t, []map[string]interface{}{
		{"start_age": 20, "end_age": 25},
		{"start_age": 30, "end_age": 22}, // 违例：起始大于结束
		{"start_age": nil, "end_age": 40},
	})

	params := engine.Params{
		"pairs": []interface{}{
			map[string]interface{}{"left": "start_age", "relation": "lte", "right": "end_age"},
		},
	}

	findings, err := runCrossValidation(context.Background(), rc, params)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 1, findings[0].RecordIndex)
	assert.Equal(t, "start_age", findings[0].Field)
}

func TestCrossValidationRejectsUnknownRelation(t *testing.T) {
	rc := consistencyTestContext(t, nil)

	_, err := runCrossValidation(context.Background(), rc, engine.Params{
		"pairs": []interface{}{
			map[string]interface{}{"left": "start_age", "relation": "approx", "right": "end_age"},
		},
	})
	assert.ErrorIs(t, err, engine.ErrMisconfigured)
}
