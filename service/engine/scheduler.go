/*
 * @module service/engine/scheduler
 * @description 检测调度器，有界并发执行检测项并保证故障隔离与确定性输出
 * @architecture 业务服务层 - 检测引擎调度
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 提交检测计划 -> 工作池并发执行 -> 单项超时/崩溃隔离 -> 汇总排序输出
 * @rules 单个检测项失败不影响其他检测项；超时检测项的部分结果全部丢弃；
 *        输出按 (check_id, record_index, field) 排序保证逐字节确定性
 * @dependencies spf13/cast
 * @refs service/engine/check.go, service/detectors
 */

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cast"
)

const (
	defaultWorkers        = 4
	defaultTimeoutSeconds = 30

	// partitionThreshold 超过该记录数的数据集对可分片检测项按片并行
	partitionThreshold = 2000
	partitionSize      = 1000
)

// PlannedCheck 检测计划中的单项：检测项及其固定的规则版本参数
type PlannedCheck struct {
	Check         Check
	RuleVersionID string
	Params        Params
	Severity      string // 覆盖默认严重级别，空则用检测项默认值
}

// Scheduler 有界并发的检测调度器
type Scheduler struct {
	workers int
}

// NewScheduler 创建调度器，并发数取 ENGINE_WORKERS 环境变量，默认 4
func NewScheduler() *Scheduler {
	workers := defaultWorkers
	if v := os.Getenv("ENGINE_WORKERS"); v != "" {
		if n := cast.ToInt(v); n > 0 {
			workers = n
		}
	}
	return &Scheduler{workers: workers}
}

// NewSchedulerWithWorkers 指定并发数创建调度器，测试用
func NewSchedulerWithWorkers(workers int) *Scheduler {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Scheduler{workers: workers}
}

type checkExecution struct {
	outcome  CheckOutcome
	findings []BoundFinding
}

// Run 执行检测计划，返回排序后的问题与各检测项状态
func (s *Scheduler) Run(ctx context.Context, rc *RunContext, plan []PlannedCheck) *RunResult {
	result := &RunResult{
		Outcomes:  make(map[string]CheckOutcome, len(plan)),
		StartedAt: time.Now(),
	}

	sem := make(chan struct{}, s.workers)
	executions := make([]checkExecution, len(plan))
	var wg sync.WaitGroup

	for i, planned := range plan {
		wg.Add(1)
		go func(i int, planned PlannedCheck) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			executions[i] = s.runOne(ctx, rc, planned)
		}(i, planned)
	}
	wg.Wait()

	for _, exec := range executions {
		result.Outcomes[exec.outcome.CheckID] = exec.outcome
		result.Findings = append(result.Findings, exec.findings...)
	}

	// 确定性输出：按检测项、记录序号、字段排序
	sort.Slice(result.Findings, func(i, j int) bool {
		a, b := result.Findings[i], result.Findings[j]
		if a.CheckID != b.CheckID {
			return a.CheckID < b.CheckID
		}
		if a.RecordIndex != b.RecordIndex {
			return a.RecordIndex < b.RecordIndex
		}
		return a.Field < b.Field
	})

	result.EndedAt = time.Now()
	return result
}

// runOne 在独立 goroutine 中执行单个检测项，带超时与崩溃恢复
func (s *Scheduler) runOne(ctx context.Context, rc *RunContext, planned PlannedCheck) checkExecution {
	check := planned.Check
	severity := planned.Severity
	if severity == "" {
		severity = check.DefaultSeverity()
	}

	timeout := time.Duration(planned.Params.Int("timeout_seconds", defaultTimeoutSeconds)) * time.Second
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	type checkReturn struct {
		findings []Finding
		err      error
	}
	done := make(chan checkReturn, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("检测项崩溃", "check", check.ID(), "panic", r, "stack", string(debug.Stack()))
				done <- checkReturn{err: fmt.Errorf("check panicked: %v", r)}
			}
		}()
		findings, err := s.execute(checkCtx, rc, check, planned.Params)
		done <- checkReturn{findings: findings, err: err}
	}()

	exec := checkExecution{outcome: CheckOutcome{CheckID: check.ID()}}

	select {
	case <-checkCtx.Done():
		// 超时或取消：丢弃部分结果
		exec.outcome.Status = StatusTimeout
		exec.outcome.Error = checkCtx.Err().Error()
		exec.outcome.Duration = time.Since(start)
		observeCheck(check.ID(), StatusTimeout, exec.outcome.Duration)
		slog.Warn("检测项超时", "check", check.ID(), "timeout", timeout)
		return exec
	case ret := <-done:
		exec.outcome.Duration = time.Since(start)
		if ret.err != nil {
			exec.outcome.Status = classifyError(ret.err)
			exec.outcome.Error = ret.err.Error()
			observeCheck(check.ID(), exec.outcome.Status, exec.outcome.Duration)
			if exec.outcome.Status == StatusFailed {
				slog.Error("检测项执行失败", "check", check.ID(), "error", ret.err)
			}
			return exec
		}
		exec.outcome.Status = StatusCompleted
		exec.outcome.Findings = len(ret.findings)
		for _, f := range ret.findings {
			if f.Severity == "" {
				f.Severity = severity
			}
			exec.findings = append(exec.findings, BoundFinding{CheckID: check.ID(), Finding: f})
		}
		observeCheck(check.ID(), StatusCompleted, exec.outcome.Duration)
		return exec
	}
}

// execute 执行检测项；可分片检测项在大数据集上按记录区间并行执行
// 任一区间失败或崩溃，整个检测项失败
func (s *Scheduler) execute(ctx context.Context, rc *RunContext, check Check, params Params) ([]Finding, error) {
	parts := Partitions(rc.Dataset.Len())
	if !check.Partitionable() || len(parts) == 1 {
		return check.Run(ctx, rc, params)
	}

	partCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type partReturn struct {
		findings []Finding
		err      error
	}
	results := make([]partReturn, len(parts))
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for i, part := range parts {
		wg.Add(1)
		go func(i, start, end int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = partReturn{err: fmt.Errorf("check panicked: %v", r)}
					cancel()
				}
			}()
			sem <- struct{}{}
			defer func() { <-sem }()

			sub := &RunContext{Dataset: rc.Dataset.Slice(start, end), NLP: rc.NLP, Models: rc.Models}
			findings, err := check.Run(partCtx, sub, params)
			if err != nil {
				cancel()
			}
			results[i] = partReturn{findings: findings, err: err}
		}(i, part[0], part[1])
	}
	wg.Wait()

	var firstErr error
	var findings []Finding
	for _, ret := range results {
		if ret.err != nil {
			// 保留真实失败原因，而非连带取消
			if firstErr == nil || errors.Is(firstErr, context.Canceled) {
				firstErr = ret.err
			}
			continue
		}
		findings = append(findings, ret.findings...)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return findings, nil
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, ErrMisconfigured):
		return StatusMisconfigured
	case errors.Is(err, ErrInsufficientData):
		return StatusInsufficientData
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return StatusTimeout
	default:
		return StatusFailed
	}
}

// Partitions 将记录序号划分为可并行处理的片段
// 小数据集返回单片，个别记录级检测项据此分片执行
func Partitions(total int) [][2]int {
	if total <= partitionThreshold {
		return [][2]int{{0, total}}
	}
	var out [][2]int
	for start := 0; start < total; start += partitionSize {
		end := start + partitionSize
		if end > total {
			end = total
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
