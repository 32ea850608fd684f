/*
 * @module service/models/model_registry_models
 * @description 模型版本注册模型，为每个检测器家族维护只追加的版本谱系
 * @architecture 数据模型层
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 模型训练/适应 -> 发布新版本 -> 运行时固定版本
 * @rules 模型版本发布后不可变，已固定到历史运行的版本永不修改
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/mldetect/registry.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 检测器家族
const (
	ModelFamilyBotClassifier = "bot_classifier"
	ModelFamilyAnomaly       = "anomaly"
	ModelFamilyPattern       = "pattern"
	ModelFamilyNLP           = "nlp"
)

// ModelVersion 模型版本模型
// 不可变制品引用（权重/统计量）+ 训练校准指标
type ModelVersion struct {
	ID              string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	Family          string    `gorm:"type:varchar(50);not null;index" json:"family"` // bot_classifier, anomaly, pattern, nlp
	VersionNumber   int       `gorm:"not null" json:"version_number"`
	Artifact        JSONB     `gorm:"type:jsonb;not null" json:"artifact"` // 权重/统计量/词表配置
	TrainingMetrics JSONB     `gorm:"type:jsonb" json:"training_metrics"`
	Seed            int64     `json:"seed"`
	CreatedBy       string    `gorm:"type:varchar(100)" json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName 指定表名
func (ModelVersion) TableName() string {
	return "model_versions"
}

// BeforeCreate 创建前钩子
func (m *ModelVersion) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}
