/*
 * @module service/engine/scheduler_test
 * @description 检测调度器单元测试：确定性、故障隔离和超时处理
 * @architecture 测试层
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 构造检测计划 -> 并发执行 -> 验证输出排序与状态
 * @rules 单项崩溃/超时不影响其他检测项，超时丢弃部分结果
 * @dependencies testing, testify
 * @refs scheduler.go, check.go
 */

package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"surveyqc-service/service/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCheck 可编程的测试检测项
type fakeCheck struct {
	id            string
	severity      string
	partitionable bool
	run           func(ctx context.Context, rc *RunContext, params Params) ([]Finding, error)
}

func (c *fakeCheck) ID() string               { return c.id }
func (c *fakeCheck) Category() string         { return "content_quality" }
func (c *fakeCheck) Kind() string             { return "statistical" }
func (c *fakeCheck) DefaultSeverity() string  { return c.severity }
func (c *fakeCheck) Description() string      { return "测试检测项" }
func (c *fakeCheck) Partitionable() bool      { return c.partitionable }
func (c *fakeCheck) Run(ctx context.Context, rc *RunContext, params Params) ([]Finding, error) {
	return c.run(ctx, rc, params)
}

func testRunContext(t *testing.T) *RunContext {
	schema := &dataset.Schema{Fields: map[string]dataset.FieldType{
		"comment": dataset.FieldText,
	}}
	ds, err := dataset.New("test", schema, []map[string]interface{}{
		{"comment": "first"},
		{"comment": "second"},
	})
	require.NoError(t, err)
	return &RunContext{Dataset: ds}
}

func TestSchedulerDeterministicOrdering(t *testing.T) {
	rc := testRunContext(t)

	// 两个检测项乱序产出问题
	plan := []PlannedCheck{
		{
			Check: &fakeCheck{id: "zeta_check", severity: "low", run: func(ctx context.Context, rc *RunContext, params Params) ([]Finding, error) {
				return []Finding{
					{RecordIndex: 1, Field: "comment"},
					{RecordIndex: 0, Field: "comment"},
				}, nil
			}},
			Params: Params{},
		},
		{
			Check: &fakeCheck{id: "alpha_check", severity: "low", run: func(ctx context.Context, rc *RunContext, params Params) ([]Finding, error) {
				return []Finding{
					{RecordIndex: 0, Field: "region"},
					{RecordIndex: 0, Field: "comment"},
				}, nil
			}},
			Params: Params{},
		},
	}

	var snapshots []string
	for i := 0; i < 3; i++ {
		result := NewSchedulerWithWorkers(2).Run(context.Background(), rc, plan)
		snapshot := ""
		for _, f := range result.Findings {
			snapshot += fmt.Sprintf("%s/%d/%s;", f.CheckID, f.RecordIndex, f.Field)
		}
		snapshots = append(snapshots, snapshot)
	}

	// 输出按 (check_id, record_index, field) 排序，多次执行完全一致
	assert.Equal(t, "alpha_check/0/comment;alpha_check/0/region;zeta_check/0/comment;zeta_check/1/comment;", snapshots[0])
	assert.Equal(t, snapshots[0], snapshots[1])
	assert.Equal(t, snapshots[1], snapshots[2])
}

func TestSchedulerFaultIsolation(t *testing.T) {
	rc := testRunContext(t)

	plan := []PlannedCheck{
		{
			Check: &fakeCheck{id: "panicking", severity: "low", run: func(ctx context.Context, rc *RunContext, params Params) ([]Finding, error) {
				panic("boom")
			}},
			Params: Params{},
		},
		{
			Check: &fakeCheck{id: "healthy", severity: "medium", run: func(ctx context.Context, rc *RunContext, params Params) ([]Finding, error) {
				return []Finding{{RecordIndex: 0, Field: "comment"}}, nil
			}},
			Params: Params{},
		},
	}

	result := NewSchedulerWithWorkers(2).Run(context.Background(), rc, plan)

	assert.Equal(t, StatusFailed, result.Outcomes["panicking"].Status)
	assert.Contains(t, result.Outcomes["panicking"].Error, "check panicked")

	assert.Equal(t, StatusCompleted, result.Outcomes["healthy"].Status)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "healthy", result.Findings[0].CheckID)
	// 未指定严重级别时补默认值
	assert.Equal(t, "medium", result.Findings[0].Severity)
}

func TestSchedulerTimeoutDiscardsPartialResults(t *testing.T) {
	rc := testRunContext(t)

	plan := []PlannedCheck{
		{
			Check: &fakeCheck{id: "slow", severity: "low", run: func(ctx context.Context, rc *RunContext, params Params) ([]Finding, error) {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(5 * time.Second):
					return []Finding{{RecordIndex: 0, Field: "comment"}}, nil
				}
			}},
			Params: Params{"timeout_seconds": 1},
		},
	}

	result := NewSchedulerWithWorkers(1).Run(context.Background(), rc, plan)

	assert.Equal(t, StatusTimeout, result.Outcomes["slow"].Status)
	assert.Empty(t, result.Findings)
}

func TestSchedulerErrorClassification(t *testing.T) {
	rc := testRunContext(t)

	plan := []PlannedCheck{
		{
			Check: &fakeCheck{id: "misconfigured", severity: "low", run: func(ctx context.Context, rc *RunContext, params Params) ([]Finding, error) {
				_, err := params.FloatRange("threshold", 5.0, 0, 1)
				return nil, err
			}},
			Params: Params{},
		},
		{
			Check: &fakeCheck{id: "starved", severity: "low", run: func(ctx context.Context, rc *RunContext, params Params) ([]Finding, error) {
				return nil, fmt.Errorf("%w: 需要至少20条记录", ErrInsufficientData)
			}},
			Params: Params{},
		},
	}

	result := NewSchedulerWithWorkers(2).Run(context.Background(), rc, plan)

	assert.Equal(t, StatusMisconfigured, result.Outcomes["misconfigured"].Status)
	assert.Equal(t, StatusInsufficientData, result.Outcomes["starved"].Status)
}

func TestParams(t *testing.T) {
	params := Params{
		"threshold": 0.9,
		"count":     3,
		"name":      "x",
		"flags":     []interface{}{"a", "b"},
	}

	assert.Equal(t, 0.9, params.Float("threshold", 0.5))
	assert.Equal(t, 0.5, params.Float("missing", 0.5))
	assert.Equal(t, 3, params.Int("count", 1))
	assert.Equal(t, "x", params.String("name", "y"))
	assert.Equal(t, []string{"a", "b"}, params.StringSlice("flags"))
	assert.True(t, params.Bool("missing_flag", true))

	v, err := params.FloatRange("threshold", 0.5, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.9, v)

	_, err = params.FloatRange("threshold", 0.5, 0, 0.5)
	assert.ErrorIs(t, err, ErrMisconfigured)
}

func largeRunContext(t *testing.T, records int) *RunContext {
	schema := &dataset.Schema{Fields: map[string]dataset.FieldType{
		"comment": dataset.FieldText,
	}}
	rows := make([]map[string]interface{}, records)
	for i := range rows {
		rows[i] = map[string]interface{}{"comment": "x"}
	}
	ds, err := dataset.New("large", schema, rows)
	require.NoError(t, err)
	return &RunContext{Dataset: ds}
}

func TestSchedulerPartitionsLargeDataset(t *testing.T) {
	rc := largeRunContext(t, 2500)

	var mu sync.Mutex
	var calls int
	var sliceLens []int

	plan := []PlannedCheck{
		{
			Check: &fakeCheck{id: "record_local", severity: "low", partitionable: true,
				run: func(ctx context.Context, rc *RunContext, params Params) ([]Finding, error) {
					mu.Lock()
					calls++
					sliceLens = append(sliceLens, rc.Dataset.Len())
					mu.Unlock()
					// 每个区间对自己的首条记录产出一个问题，记录保留全局序号
					return []Finding{{RecordIndex: rc.Dataset.Records[0].Index, Field: "comment"}}, nil
				}},
			Params: Params{},
		},
	}

	result := NewSchedulerWithWorkers(2).Run(context.Background(), rc, plan)

	assert.Equal(t, StatusCompleted, result.Outcomes["record_local"].Status)
	assert.Equal(t, 3, calls)
	sort.Ints(sliceLens)
	assert.Equal(t, []int{500, 1000, 1000}, sliceLens)

	require.Len(t, result.Findings, 3)
	assert.Equal(t, 0, result.Findings[0].RecordIndex)
	assert.Equal(t, 1000, result.Findings[1].RecordIndex)
	assert.Equal(t, 2000, result.Findings[2].RecordIndex)
}

func TestSchedulerPartitionFailureFailsWholeCheck(t *testing.T) {
	rc := largeRunContext(t, 2500)

	plan := []PlannedCheck{
		{
			Check: &fakeCheck{id: "flaky", severity: "low", partitionable: true,
				run: func(ctx context.Context, rc *RunContext, params Params) ([]Finding, error) {
					// 含全局序号1500的区间失败，其余区间正常产出
					if rc.Dataset.Records[0].Index == 1000 {
						return nil, fmt.Errorf("storage read error")
					}
					return []Finding{{RecordIndex: rc.Dataset.Records[0].Index, Field: "comment"}}, nil
				}},
			Params: Params{},
		},
	}

	result := NewSchedulerWithWorkers(2).Run(context.Background(), rc, plan)

	assert.Equal(t, StatusFailed, result.Outcomes["flaky"].Status)
	assert.Contains(t, result.Outcomes["flaky"].Error, "storage read error")
	assert.Empty(t, result.Findings)
}

func TestSchedulerSmallDatasetSinglePartition(t *testing.T) {
	rc := testRunContext(t)

	var calls int
	plan := []PlannedCheck{
		{
			Check: &fakeCheck{id: "small", severity: "low", partitionable: true,
				run: func(ctx context.Context, rc *RunContext, params Params) ([]Finding, error) {
					calls++
					return nil, nil
				}},
			Params: Params{},
		},
	}

	result := NewSchedulerWithWorkers(1).Run(context.Background(), rc, plan)
	assert.Equal(t, StatusCompleted, result.Outcomes["small"].Status)
	assert.Equal(t, 1, calls)
}

func TestPartitions(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 100}}, Partitions(100))
	assert.Equal(t, [][2]int{{0, 2000}}, Partitions(2000))

	parts := Partitions(2500)
	require.Len(t, parts, 3)
	assert.Equal(t, [2]int{0, 1000}, parts[0])
	assert.Equal(t, [2]int{2000, 2500}, parts[2])
}
