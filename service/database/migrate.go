/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建表结构并播种内置检查定义与默认模型版本
 * @architecture 数据访问层 - 迁移管理
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 应用启动时执行数据库迁移 -> 播种内置检查 -> 播种默认模型
 * @rules 播种幂等：已存在的检查定义和模型版本不重复创建
 * @dependencies surveyqc-service/service/models, gorm.io/gorm
 * @refs service/engine/registry.go, service/mldetect
 */

package database

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"surveyqc-service/service/engine"
	"surveyqc-service/service/mldetect"
	"surveyqc-service/service/models"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	log.Println("开始数据库迁移...")

	// 检测与规则版本相关表
	err := db.AutoMigrate(
		&models.CheckDefinition{},
		&models.RuleVersion{},
		&models.RuleActivationEvent{},
		&models.Issue{},
		&models.DetectionRun{},
	)
	if err != nil {
		return err
	}

	// 模型注册相关表
	err = db.AutoMigrate(
		&models.ModelVersion{},
	)
	if err != nil {
		return err
	}

	log.Println("数据库迁移完成")
	return nil
}

// checkModelFamilies 模型检查与其依赖的模型族
var checkModelFamilies = map[string]string{
	"bot_detection":     models.ModelFamilyBotClassifier,
	"anomaly_detection": models.ModelFamilyAnomaly,
	"pattern_detection": models.ModelFamilyPattern,
	"language_check":    models.ModelFamilyNLP,
	"sentiment_check":   models.ModelFamilyNLP,
	"readability_check": models.ModelFamilyNLP,
	"garbage_text":      models.ModelFamilyNLP,
	"plagiarism":        models.ModelFamilyNLP,
}

// SeedCheckDefinitions 按静态注册表播种内置检查定义
// 每个检查创建一条空参数的创世规则版本并激活
func SeedCheckDefinitions(db *gorm.DB, registry *engine.Registry) error {
	for _, check := range registry.All() {
		var existing models.CheckDefinition
		err := db.First(&existing, "id = ?", check.ID()).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		def := &models.CheckDefinition{
			ID:          check.ID(),
			Name:        check.ID(),
			Category:    check.Category(),
			Description: check.Description(),
			Severity:    check.DefaultSeverity(),
			Kind:        check.Kind(),
			ModelFamily: checkModelFamilies[check.ID()],
			IsEnabled:   true,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}

		genesis := &models.RuleVersion{
			CheckID:       check.ID(),
			VersionNumber: 1,
			Params:        models.JSONB{},
			CreatedBy:     "system",
			Comment:       "创世版本，全部参数取默认值",
			CreatedAt:     time.Now(),
		}

		if err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(def).Error; err != nil {
				return err
			}
			if err := tx.Create(genesis).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.CheckDefinition{}).Where("id = ?", def.ID).
				Update("active_version_id", genesis.ID).Error; err != nil {
				return err
			}
			event := &models.RuleActivationEvent{
				CheckID:     check.ID(),
				ToVersionID: genesis.ID,
				Action:      "activate",
				Author:      "system",
				ParamsDiff:  models.JSONB{},
				CreatedAt:   time.Now(),
			}
			return tx.Create(event).Error
		}); err != nil {
			return err
		}
		log.Printf("已播种检查定义: %s", check.ID())
	}
	return nil
}

// SeedModelVersions 为每个模型族播种默认的第一个版本
func SeedModelVersions(registry *mldetect.Registry) error {
	seeds := []struct {
		family   string
		artifact models.JSONB
		seed     int64
	}{
		{models.ModelFamilyBotClassifier, mldetect.DefaultBotClassifierArtifact(), 42},
		{models.ModelFamilyAnomaly, mldetect.DefaultAnomalyArtifact(), 42},
		{models.ModelFamilyPattern, mldetect.DefaultSequenceModel().Artifact(), 42},
		{models.ModelFamilyNLP, models.JSONB{"confidence_floor": 0.65}, 0},
	}

	for _, s := range seeds {
		if _, err := registry.Active(s.family); err == nil {
			continue
		}
		if _, err := registry.Publish(s.family, s.artifact, models.JSONB{"seeded": true}, s.seed, "system"); err != nil {
			return err
		}
		log.Printf("已播种模型版本: %s v1", s.family)
	}
	return nil
}
