/*
 * @module service/dataset/dataset_test
 * @description 数据集模型单元测试
 * @architecture 测试层 - 纯函数测试，无外部依赖
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 输入参数 -> 函数调用 -> 输出验证
 * @rules 确保数据集加载校验、字段类型查询和值转换的正确性
 * @dependencies testing, testify
 * @refs dataset.go, record.go
 */

package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	return &Schema{Fields: map[string]FieldType{
		"respondent_id": FieldIdentifier,
		"email":         FieldIdentifier,
		"age":           FieldNumeric,
		"satisfaction":  FieldNumeric,
		"region":        FieldCategorical,
		"comment":       FieldText,
		"submitted_at":  FieldDatetime,
	}}
}

func TestNewDataset(t *testing.T) {
	schema := testSchema()

	t.Run("正常加载", func(t *testing.T) {
		ds, err := New("survey-1", schema, []map[string]interface{}{
			{"respondent_id": "r1", "age": 30, "comment": "不错"},
			{"respondent_id": "r2", "age": 45},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, ds.Len())
		assert.Equal(t, "survey-1", ds.Ref)
		assert.Equal(t, 0, ds.Record(0).Index)
		assert.Equal(t, 1, ds.Record(1).Index)
	})

	t.Run("缺少字段模式", func(t *testing.T) {
		_, err := New("survey-2", nil, nil)
		assert.Error(t, err)

		_, err = New("survey-2", &Schema{Fields: map[string]FieldType{}}, nil)
		assert.Error(t, err)
	})

	t.Run("记录字段不在模式中", func(t *testing.T) {
		_, err := New("survey-3", schema, []map[string]interface{}{
			{"respondent_id": "r1", "unknown_field": "x"},
		})
		assert.Error(t, err)
	})

	t.Run("空数据集合法", func(t *testing.T) {
		ds, err := New("survey-4", schema, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, ds.Len())
	})
}

func TestSchemaFieldQueries(t *testing.T) {
	schema := testSchema()

	assert.Equal(t, []string{"age", "satisfaction"}, schema.NumericFields())
	assert.Equal(t, []string{"email", "respondent_id"}, schema.IdentifierFields())
	assert.Equal(t, []string{"comment"}, schema.TextFields())
	assert.Equal(t, []string{"region"}, schema.CategoricalFields())
	assert.Equal(t, []string{"submitted_at"}, schema.DatetimeFields())
	assert.Len(t, schema.FieldNames(), 7)
	assert.True(t, schema.Has("age"))
	assert.False(t, schema.Has("gender"))
}

func TestAsFloat(t *testing.T) {
	testCases := []struct {
		name     string
		input    interface{}
		expected float64
		ok       bool
	}{
		{"整数", 42, 42, true},
		{"浮点数", 3.14, 3.14, true},
		{"数字字符串", "7.5", 7.5, true},
		{"nil值", nil, 0, false},
		{"非数字字符串", "abc", 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, ok := AsFloat(tc.input)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.InDelta(t, tc.expected, f, 1e-9)
			}
		})
	}
}

func TestAsTime(t *testing.T) {
	t.Run("RFC3339格式", func(t *testing.T) {
		ts, ok := AsTime("2024-06-01T10:30:00Z")
		require.True(t, ok)
		assert.Equal(t, 2024, ts.Year())
	})

	t.Run("日期格式", func(t *testing.T) {
		_, ok := AsTime("2024-06-01")
		assert.True(t, ok)
	})

	t.Run("time.Time原值", func(t *testing.T) {
		now := time.Now()
		ts, ok := AsTime(now)
		require.True(t, ok)
		assert.Equal(t, now, ts)
	})

	t.Run("无法解析", func(t *testing.T) {
		_, ok := AsTime("not-a-time")
		assert.False(t, ok)

		_, ok = AsTime(nil)
		assert.False(t, ok)
	})
}

func TestIsMissing(t *testing.T) {
	assert.True(t, IsMissing(nil))
	assert.True(t, IsMissing(""))
	assert.False(t, IsMissing("x"))
	assert.False(t, IsMissing(0))
}

func TestRecordFillRate(t *testing.T) {
	schema := testSchema()
	ds, err := New("survey-5", schema, []map[string]interface{}{
		{"respondent_id": "r1", "age": 30, "comment": "很好", "region": "north"},
		{"respondent_id": "r2"},
	})
	require.NoError(t, err)

	// 7个字段中填了4个
	assert.InDelta(t, 4.0/7.0, ds.Record(0).FillRate(schema), 1e-9)
	assert.InDelta(t, 1.0/7.0, ds.Record(1).FillRate(schema), 1e-9)
}

func TestStore(t *testing.T) {
	store := NewStore()
	schema := testSchema()

	ds, err := New("survey-6", schema, nil)
	require.NoError(t, err)
	store.Register(ds)

	got, err := store.Get("survey-6")
	require.NoError(t, err)
	assert.Equal(t, "survey-6", got.Ref)

	_, err = store.Get("missing")
	assert.Error(t, err)

	assert.Contains(t, store.List(), "survey-6")
}
