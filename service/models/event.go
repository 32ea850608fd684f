/*
 * @module service/models/event
 * @description 事件模型，包含SSE推送事件和检测生命周期事件
 * @architecture 数据模型层
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 事件产生 -> 事件分发 -> 客户端/外部系统消费
 * @rules 生命周期事件类型为闭集，供集成方订阅
 * @dependencies time
 * @refs service/event/event_service.go
 */

package models

import "time"

// 生命周期事件类型
const (
	EventDetectionStarted   = "detection.started"
	EventDetectionCompleted = "detection.completed"
	EventCheckFailed        = "check.failed"
	EventModelAdapted       = "model.adapted"
)

// LifecycleEvent 检测生命周期事件
type LifecycleEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // detection.started, detection.completed, check.failed, model.adapted
	RunID     string                 `json:"run_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// SSEEvent SSE推送事件
type SSEEvent struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
