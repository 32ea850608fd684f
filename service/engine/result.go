/*
 * @module service/engine/result
 * @description 检测运行结果结构
 * @architecture 业务服务层 - 检测引擎
 * @documentReference ai_docs/survey_quality_req.md
 * @rules 同一数据集与同一规则/模型版本的运行结果必须逐字节一致
 * @dependencies 无
 * @refs service/engine/scheduler.go
 */

package engine

import "time"

// CheckOutcome 单个检测项的执行结果
type CheckOutcome struct {
	CheckID  string        `json:"check_id"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Findings int           `json:"findings"`
	Duration time.Duration `json:"duration"`
}

// RunResult 整次运行的结果
type RunResult struct {
	Findings  []BoundFinding          `json:"findings"`
	Outcomes  map[string]CheckOutcome `json:"outcomes"`
	StartedAt time.Time               `json:"started_at"`
	EndedAt   time.Time               `json:"ended_at"`
}

// BoundFinding 绑定了检测项 ID 的问题，排序后对外输出
type BoundFinding struct {
	CheckID string
	Finding
}

// CompletedChecks 返回成功完成的检测项数量
func (r *RunResult) CompletedChecks() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusCompleted {
			n++
		}
	}
	return n
}
