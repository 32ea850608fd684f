/*
 * @module service/models/detection_models
 * @description 质量检测核心模型，包含检查定义、规则版本、激活审计、问题记录和检测运行
 * @architecture 数据模型层
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 规则配置 -> 检测执行 -> 问题产出 -> 审核流转
 * @rules 规则版本与激活事件只追加不修改，问题状态仅由外部审核流程变更
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/versioning/, service/engine/
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 检查类别
const (
	CheckCategoryDuplicate      = "duplicate"
	CheckCategoryPattern        = "pattern"
	CheckCategoryContentQuality = "content_quality"
	CheckCategoryBehavioral     = "behavioral"
	CheckCategoryDomainSpecific = "domain_specific"
	CheckCategorySentiment      = "sentiment"
)

// 严重程度
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// 检查实现方式
const (
	CheckKindDeterministic = "deterministic"
	CheckKindModelBacked   = "model_backed"
)

// 问题状态
const (
	IssueStatusOpen     = "open"
	IssueStatusApproved = "approved"
	IssueStatusRejected = "rejected"
	IssueStatusResolved = "resolved"
)

// CheckDefinition 检查定义模型
// 检查逻辑由静态注册的检查实现提供，定义本身只携带数据化配置
type CheckDefinition struct {
	ID              string     `gorm:"type:varchar(100);primaryKey" json:"id"`
	Name            string     `gorm:"type:varchar(200);not null" json:"name"`
	Category        string     `gorm:"type:varchar(30);not null;index" json:"category"` // duplicate, pattern, content_quality, behavioral, domain_specific, sentiment
	Description     string     `gorm:"type:text" json:"description"`
	Severity        string     `gorm:"type:varchar(20);not null" json:"severity"` // low, medium, high, critical
	Kind            string     `gorm:"type:varchar(20);not null" json:"kind"`     // deterministic, model_backed
	ModelFamily     string     `gorm:"type:varchar(50)" json:"model_family,omitempty"`
	IsEnabled       bool       `gorm:"default:true" json:"is_enabled"`
	ActiveVersionID string     `gorm:"type:varchar(50)" json:"active_version_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (CheckDefinition) TableName() string {
	return "check_definitions"
}

// RuleVersion 规则版本模型
// 检查参数集的不可变快照，只追加不修改，回滚即重新激活历史版本
type RuleVersion struct {
	ID            string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	CheckID       string    `gorm:"type:varchar(100);not null;index" json:"check_id"`
	VersionNumber int       `gorm:"not null" json:"version_number"`
	Params        JSONB     `gorm:"type:jsonb;not null" json:"params"`
	CreatedBy     string    `gorm:"type:varchar(100)" json:"created_by"`
	Comment       string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName 指定表名
func (RuleVersion) TableName() string {
	return "rule_versions"
}

// BeforeCreate 创建前钩子
func (v *RuleVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}

// RuleActivationEvent 规则激活审计事件
// 只追加日志，是"哪个配置产出了这些问题"的唯一事实来源
type RuleActivationEvent struct {
	ID            string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	CheckID       string    `gorm:"type:varchar(100);not null;index" json:"check_id"`
	FromVersionID string    `gorm:"type:varchar(50)" json:"from_version_id,omitempty"`
	ToVersionID   string    `gorm:"type:varchar(50);not null" json:"to_version_id"`
	Action        string    `gorm:"type:varchar(20);not null" json:"action"` // activate, rollback
	Author        string    `gorm:"type:varchar(100)" json:"author"`
	ParamsDiff    JSONB     `gorm:"type:jsonb" json:"params_diff"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName 指定表名
func (RuleActivationEvent) TableName() string {
	return "rule_activation_events"
}

// BeforeCreate 创建前钩子
func (e *RuleActivationEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// Issue 质量问题记录模型
// 引用恰好一条记录和一个检查（含检测时激活的规则版本），状态仅由外部审核流程变更
type Issue struct {
	ID            string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	RunID         string    `gorm:"type:varchar(50);not null;index" json:"run_id"`
	DatasetRef    string    `gorm:"type:varchar(100);not null;index" json:"dataset_ref"`
	RecordIndex   int       `gorm:"not null" json:"record_index"`
	CheckID       string    `gorm:"type:varchar(100);not null;index" json:"check_id"`
	Category      string    `gorm:"type:varchar(30);not null;index" json:"category"`
	RuleVersionID string    `gorm:"type:varchar(50);not null" json:"rule_version_id"`
	Severity      string    `gorm:"type:varchar(20);not null;index" json:"severity"`
	Confidence    float64   `json:"confidence"` // [0,1]
	Explanation   string    `gorm:"type:text" json:"explanation"`
	Status        string    `gorm:"type:varchar(20);not null;default:open;index" json:"status"` // open, approved, rejected, resolved
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Issue) TableName() string {
	return "issues"
}

// BeforeCreate 创建前钩子
func (i *Issue) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// DetectionRun 检测运行记录模型
type DetectionRun struct {
	ID             string     `gorm:"type:varchar(50);primaryKey" json:"id"`
	DatasetRef     string     `gorm:"type:varchar(100);not null;index" json:"dataset_ref"`
	Status         string     `gorm:"type:varchar(20);not null" json:"status"` // running, completed, failed
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Duration       int64      `json:"duration"` // 运行时长，毫秒
	TotalIssues    int        `json:"total_issues"`
	CheckStatuses  JSONB      `gorm:"type:jsonb" json:"check_statuses"`  // 每个检查的执行状态
	PinnedVersions JSONB      `gorm:"type:jsonb" json:"pinned_versions"` // 检测时固定的规则/模型版本
	TriggeredBy    string     `gorm:"type:varchar(100)" json:"triggered_by"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (DetectionRun) TableName() string {
	return "detection_runs"
}

// BeforeCreate 创建前钩子
func (r *DetectionRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
