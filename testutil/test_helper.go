/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, time
 * @refs service/models
 */

package testutil

import (
	"fmt"
	"surveyqc-service/service/models"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.CheckDefinition{},
		&models.RuleVersion{},
		&models.RuleActivationEvent{},
		&models.Issue{},
		&models.DetectionRun{},
		&models.ModelVersion{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	// 清空所有表的数据
	tables := []string{
		"check_definitions",
		"rule_versions",
		"rule_activation_events",
		"issues",
		"detection_runs",
		"model_versions",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// CheckDefinitionOption 检查定义选项函数类型
type CheckDefinitionOption func(*models.CheckDefinition)

// CreateCheckDefinition 创建测试检查定义及其初始规则版本
func (f *TestDataFactory) CreateCheckDefinition(checkID string, opts ...CheckDefinitionOption) *models.CheckDefinition {
	def := &models.CheckDefinition{
		ID:          checkID,
		Name:        "测试检查",
		Category:    models.CheckCategoryContentQuality,
		Description: "这是一个测试检查",
		Severity:    models.SeverityMedium,
		Kind:        models.CheckKindDeterministic,
		IsEnabled:   true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(def)
	}

	version := &models.RuleVersion{
		CheckID:       def.ID,
		VersionNumber: 1,
		Params:        models.JSONB{},
		CreatedBy:     "test",
	}
	if err := f.DB.Create(version).Error; err != nil {
		panic(fmt.Sprintf("failed to create test rule version: %v", err))
	}
	def.ActiveVersionID = version.ID

	if err := f.DB.Create(def).Error; err != nil {
		panic(fmt.Sprintf("failed to create test check definition: %v", err))
	}

	event := &models.RuleActivationEvent{
		CheckID:     def.ID,
		ToVersionID: version.ID,
		Action:      "activate",
		Author:      "test",
		ParamsDiff:  models.JSONB{},
	}
	if err := f.DB.Create(event).Error; err != nil {
		panic(fmt.Sprintf("failed to create test activation event: %v", err))
	}

	return def
}

// IssueOption 问题选项函数类型
type IssueOption func(*models.Issue)

// CreateIssue 创建测试质量问题
func (f *TestDataFactory) CreateIssue(runID, datasetRef string, recordIndex int, opts ...IssueOption) *models.Issue {
	issue := &models.Issue{
		RunID:         runID,
		DatasetRef:    datasetRef,
		RecordIndex:   recordIndex,
		CheckID:       "text_quality",
		Category:      models.CheckCategoryContentQuality,
		RuleVersionID: uuid.New().String(),
		Severity:      models.SeverityMedium,
		Confidence:    0.8,
		Explanation:   "测试问题",
		Status:        models.IssueStatusOpen,
	}

	// 应用选项
	for _, opt := range opts {
		opt(issue)
	}

	if err := f.DB.Create(issue).Error; err != nil {
		panic(fmt.Sprintf("failed to create test issue: %v", err))
	}

	return issue
}

// CreateDetectionRun 创建测试检测运行
func (f *TestDataFactory) CreateDetectionRun(datasetRef string) *models.DetectionRun {
	now := time.Now()
	run := &models.DetectionRun{
		DatasetRef:     datasetRef,
		Status:         "completed",
		StartTime:      now,
		EndTime:        &now,
		CheckStatuses:  models.JSONB{},
		PinnedVersions: models.JSONB{},
		TriggeredBy:    "test",
	}

	if err := f.DB.Create(run).Error; err != nil {
		panic(fmt.Sprintf("failed to create test detection run: %v", err))
	}

	return run
}
