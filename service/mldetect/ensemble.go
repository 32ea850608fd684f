/*
 * @module service/mldetect/ensemble
 * @description 加权投票集成，合并多个分类器并报告各成员贡献
 * @architecture 业务服务层 - 模型组合
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 各成员独立评分 -> 加权合并 -> 最终分数+成员贡献
 * @rules 最终分数必须附带每个成员的贡献以保证可解释性
 * @dependencies fmt, strings
 * @refs service/detectors/mlchecks.go
 */

package mldetect

import (
	"fmt"
	"strings"
)

// MemberScore 集成成员的独立评分
type MemberScore struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Score  float64 `json:"score"`
}

// EnsembleResult 集成结果：最终分数和各成员贡献
type EnsembleResult struct {
	Score   float64       `json:"score"`
	Members []MemberScore `json:"members"`
}

// Combine 加权投票合并成员分数
func Combine(members []MemberScore) *EnsembleResult {
	totalWeight := 0.0
	weighted := 0.0
	for _, m := range members {
		totalWeight += m.Weight
		weighted += m.Weight * m.Score
	}

	result := &EnsembleResult{Members: members}
	if totalWeight > 0 {
		result.Score = weighted / totalWeight
	}
	return result
}

// Explain 可读的成员贡献说明
func (r *EnsembleResult) Explain() string {
	parts := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		parts = append(parts, fmt.Sprintf("%s=%.3f(权重%.2f)", m.Name, m.Score, m.Weight))
	}
	return strings.Join(parts, ", ")
}
