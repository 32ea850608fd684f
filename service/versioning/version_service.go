/*
 * @module service/versioning/version_service
 * @description 规则版本服务：提议、激活、回滚与审计
 * @architecture 业务服务层 - 规则配置管理
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 提议新版本(草稿) -> 激活(生效) -> 回滚(重新激活上一版本)
 * @rules 规则版本只追加不修改；每次激活/回滚写入审计事件；
 *        激活只接受同一检查谱系内的版本
 * @dependencies gorm.io/gorm
 * @refs service/models/detection_models.go
 */

package versioning

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"gorm.io/gorm"

	"surveyqc-service/service/models"
)

var (
	// ErrCheckNotFound 检查不存在
	ErrCheckNotFound = errors.New("check not found")
	// ErrVersionConflict 版本不属于该检查的谱系
	ErrVersionConflict = errors.New("version does not belong to check lineage")
	// ErrNoPriorVersion 没有可回滚的历史版本
	ErrNoPriorVersion = errors.New("no prior version to roll back to")
)

// Service 规则版本服务
type Service struct {
	mu sync.Mutex
	db *gorm.DB
}

// NewService 创建规则版本服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetCheck 按 ID 读取检查定义
func (s *Service) GetCheck(checkID string) (*models.CheckDefinition, error) {
	var def models.CheckDefinition
	if err := s.db.First(&def, "id = ?", checkID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCheckNotFound, checkID)
		}
		return nil, err
	}
	return &def, nil
}

// ListChecks 返回全部检查定义，按 ID 排序
func (s *Service) ListChecks() ([]models.CheckDefinition, error) {
	var defs []models.CheckDefinition
	if err := s.db.Order("id").Find(&defs).Error; err != nil {
		return nil, err
	}
	return defs, nil
}

// SetEnabled 启用或停用检查
func (s *Service) SetEnabled(checkID string, enabled bool) error {
	result := s.db.Model(&models.CheckDefinition{}).Where("id = ?", checkID).Update("is_enabled", enabled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrCheckNotFound, checkID)
	}
	return nil
}

// Propose 为检查提议新参数版本，版本号在检查谱系内单调递增
// 提议不会激活，需要显式调用 Activate
func (s *Service) Propose(checkID string, params models.JSONB, author, comment string) (*models.RuleVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.GetCheck(checkID); err != nil {
		return nil, err
	}

	var latest models.RuleVersion
	next := 1
	err := s.db.Where("check_id = ?", checkID).Order("version_number desc").First(&latest).Error
	if err == nil {
		next = latest.VersionNumber + 1
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	version := &models.RuleVersion{
		CheckID:       checkID,
		VersionNumber: next,
		Params:        params,
		CreatedBy:     author,
		Comment:       comment,
		CreatedAt:     time.Now(),
	}
	if err := s.db.Create(version).Error; err != nil {
		return nil, fmt.Errorf("保存规则版本失败: %w", err)
	}
	return version, nil
}

// Activate 激活检查的指定版本，写入审计事件
// 版本不在该检查谱系内时返回 ErrVersionConflict
func (s *Service) Activate(checkID, versionID, author string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activateLocked(checkID, versionID, author, "activate")
}

func (s *Service) activateLocked(checkID, versionID, author, action string) error {
	def, err := s.GetCheck(checkID)
	if err != nil {
		return err
	}

	var target models.RuleVersion
	if err := s.db.First(&target, "id = ?", versionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: 版本 %s 不存在", ErrVersionConflict, versionID)
		}
		return err
	}
	if target.CheckID != checkID {
		return fmt.Errorf("%w: 版本 %s 属于检查 %s", ErrVersionConflict, versionID, target.CheckID)
	}

	var fromParams models.JSONB
	if def.ActiveVersionID != "" {
		var current models.RuleVersion
		if err := s.db.First(&current, "id = ?", def.ActiveVersionID).Error; err == nil {
			fromParams = current.Params
		}
	}

	event := &models.RuleActivationEvent{
		CheckID:       checkID,
		FromVersionID: def.ActiveVersionID,
		ToVersionID:   versionID,
		Action:        action,
		Author:        author,
		ParamsDiff:    paramsDiff(fromParams, target.Params),
		CreatedAt:     time.Now(),
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.CheckDefinition{}).Where("id = ?", checkID).
			Update("active_version_id", versionID).Error; err != nil {
			return err
		}
		return tx.Create(event).Error
	})
}

// Rollback 回滚到当前激活版本之前最近一次激活的版本
// 谱系起点（无历史激活）返回 ErrNoPriorVersion
func (s *Service) Rollback(checkID, author string) (*models.RuleVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, err := s.GetCheck(checkID)
	if err != nil {
		return nil, err
	}
	if def.ActiveVersionID == "" {
		return nil, fmt.Errorf("%w: 检查 %s 尚无激活版本", ErrNoPriorVersion, checkID)
	}

	// 当前版本最近一次被激活时的来源版本即回滚目标
	var lastEvent models.RuleActivationEvent
	err = s.db.Where("check_id = ? AND to_version_id = ?", checkID, def.ActiveVersionID).
		Order("created_at desc").First(&lastEvent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: 检查 %s 无激活历史", ErrNoPriorVersion, checkID)
		}
		return nil, err
	}
	if lastEvent.FromVersionID == "" {
		return nil, fmt.Errorf("%w: 检查 %s 已处于谱系起点", ErrNoPriorVersion, checkID)
	}

	if err := s.activateLocked(checkID, lastEvent.FromVersionID, author, "rollback"); err != nil {
		return nil, err
	}

	var target models.RuleVersion
	if err := s.db.First(&target, "id = ?", lastEvent.FromVersionID).Error; err != nil {
		return nil, err
	}
	return &target, nil
}

// GetActive 返回检查当前激活的规则版本
func (s *Service) GetActive(checkID string) (*models.RuleVersion, error) {
	def, err := s.GetCheck(checkID)
	if err != nil {
		return nil, err
	}
	if def.ActiveVersionID == "" {
		return nil, fmt.Errorf("%w: 检查 %s 尚无激活版本", ErrNoPriorVersion, checkID)
	}
	var version models.RuleVersion
	if err := s.db.First(&version, "id = ?", def.ActiveVersionID).Error; err != nil {
		return nil, err
	}
	return &version, nil
}

// History 返回检查的全部规则版本，按版本号升序
func (s *Service) History(checkID string) ([]models.RuleVersion, error) {
	if _, err := s.GetCheck(checkID); err != nil {
		return nil, err
	}
	var versions []models.RuleVersion
	if err := s.db.Where("check_id = ?", checkID).Order("version_number").Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

// Audit 返回检查的激活审计事件，按时间升序
func (s *Service) Audit(checkID string) ([]models.RuleActivationEvent, error) {
	if _, err := s.GetCheck(checkID); err != nil {
		return nil, err
	}
	var events []models.RuleActivationEvent
	if err := s.db.Where("check_id = ?", checkID).Order("created_at").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// paramsDiff 计算两个参数集的差异：新增、删除与变更的键
func paramsDiff(from, to models.JSONB) models.JSONB {
	diff := models.JSONB{}
	for key, newVal := range to {
		oldVal, existed := from[key]
		if !existed {
			diff[key] = map[string]interface{}{"added": newVal}
			continue
		}
		if !reflect.DeepEqual(oldVal, newVal) {
			diff[key] = map[string]interface{}{"from": oldVal, "to": newVal}
		}
	}
	for key, oldVal := range from {
		if _, exists := to[key]; !exists {
			diff[key] = map[string]interface{}{"removed": oldVal}
		}
	}
	return diff
}
