/*
 * @module service/detectors/duplicates_test
 * @description 重复检测单元测试
 * @architecture 测试层
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 构造数据集 -> 执行检测 -> 验证规范记录与问题产出
 * @rules 重复簇首见记录为规范记录且不产出问题
 * @dependencies testing, testify
 * @refs duplicates.go
 */

package detectors

import (
	"context"
	"fmt"
	"testing"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func duplicateTestContext(t *testing.T) *engine.RunContext {
	schema := &dataset.Schema{Fields: map[string]dataset.FieldType{
		"email":   dataset.FieldIdentifier,
		"comment": dataset.FieldText,
		"rating":  dataset.FieldNumeric,
	}}

	rows := make([]map[string]interface{}, 100)
	for i := range rows {
		rows[i] = map[string]interface{}{
			"email":   fmt.Sprintf("user%d@example.com", i),
			"comment": fmt.Sprintf("unique answer number %d about topic %d", i, i*7),
			"rating":  i % 5,
		}
	}
	// 序号 3、47、81 为同一邮箱的重复提交
	for _, idx := range []int{47, 81} {
		rows[idx]["email"] = rows[3]["email"]
	}

	ds, err := dataset.New("dup-test", schema, rows)
	require.NoError(t, err)
	return &engine.RunContext{Dataset: ds}
}

func TestExactDuplicates(t *testing.T) {
	rc := duplicateTestContext(t)

	findings, err := runExactDuplicates(context.Background(), rc, engine.Params{})
	require.NoError(t, err)
	require.Len(t, findings, 2)

	// 首见记录3为规范记录，不产出问题；47和81各产出一条
	indices := []int{findings[0].RecordIndex, findings[1].RecordIndex}
	assert.ElementsMatch(t, []int{47, 81}, indices)

	for _, f := range findings {
		assert.Equal(t, 1.0, f.Confidence)
		assert.Equal(t, 3, f.Details["canonical_index"])
		assert.Equal(t, 3, f.Details["cluster_size"])
	}
}

func TestExactDuplicatesCaseInsensitive(t *testing.T) {
	schema := &dataset.Schema{Fields: map[string]dataset.FieldType{
		"email": dataset.FieldIdentifier,
	}}
	ds, err := dataset.New("dup-case", schema, []map[string]interface{}{
		{"email": "User@Example.com"},
		{"email": "user@example.com "},
	})
	require.NoError(t, err)

	findings, err := runExactDuplicates(context.Background(), &engine.RunContext{Dataset: ds}, engine.Params{})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 1, findings[0].RecordIndex)
}

func TestExactDuplicatesSkipsEmptyIdentifiers(t *testing.T) {
	schema := &dataset.Schema{Fields: map[string]dataset.FieldType{
		"email": dataset.FieldIdentifier,
	}}
	ds, err := dataset.New("dup-empty", schema, []map[string]interface{}{
		{"email": ""},
		{"email": ""},
		{"email": nil},
	})
	require.NoError(t, err)

	findings, err := runExactDuplicates(context.Background(), &engine.RunContext{Dataset: ds}, engine.Params{})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestExactDuplicatesRequiresIdentifierFields(t *testing.T) {
	schema := &dataset.Schema{Fields: map[string]dataset.FieldType{
		"comment": dataset.FieldText,
	}}
	ds, err := dataset.New("dup-noid", schema, nil)
	require.NoError(t, err)

	_, err = runExactDuplicates(context.Background(), &engine.RunContext{Dataset: ds}, engine.Params{})
	assert.ErrorIs(t, err, engine.ErrMisconfigured)
}

func TestNearDuplicates(t *testing.T) {
	rc := duplicateTestContext(t)

	// 序号 10 和 60 的非标识字段完全一致
	rc.Dataset.Records[60].Values["comment"] = rc.Dataset.Records[10].Values["comment"]
	rc.Dataset.Records[60].Values["rating"] = rc.Dataset.Records[10].Values["rating"]

	findings, err := runNearDuplicates(context.Background(), rc, engine.Params{"similarity_threshold": 0.95})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 60, findings[0].RecordIndex)
	assert.Equal(t, 10, findings[0].Details["canonical_index"])
	assert.InDelta(t, 1.0, findings[0].Confidence, 1e-6)
}

func TestNearDuplicatesThresholdValidation(t *testing.T) {
	rc := duplicateTestContext(t)

	_, err := runNearDuplicates(context.Background(), rc, engine.Params{"similarity_threshold": 0.2})
	assert.ErrorIs(t, err, engine.ErrMisconfigured)
}
