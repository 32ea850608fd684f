/*
 * @module service/mldetect/registry
 * @description 模型版本注册表，按模型族管理仅追加的版本历史
 * @architecture 业务服务层 - 模型注册
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 启动加载全部版本 -> Publish 追加新版本 -> Active 返回最新版本
 * @rules 版本记录不可变；发布永远创建新版本号；检测运行必须固定版本
 * @dependencies gorm.io/gorm
 * @refs service/models/model_registry_models.go
 */

package mldetect

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"surveyqc-service/service/models"
)

var (
	// ErrModelNotFound 指定模型族或版本不存在
	ErrModelNotFound = errors.New("model version not found")
)

// Registry 按模型族管理版本的注册表
type Registry struct {
	mu       sync.RWMutex
	db       *gorm.DB
	families map[string][]*models.ModelVersion // 按版本号升序
}

// NewRegistry 创建注册表并从数据库加载历史版本
func NewRegistry(db *gorm.DB) (*Registry, error) {
	r := &Registry{
		db:       db,
		families: make(map[string][]*models.ModelVersion),
	}

	var versions []models.ModelVersion
	if err := db.Order("family, version_number").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("加载模型版本失败: %w", err)
	}
	for i := range versions {
		v := &versions[i]
		r.families[v.Family] = append(r.families[v.Family], v)
	}
	return r, nil
}

// Publish 为模型族发布新版本，版本号单调递增
func (r *Registry) Publish(family string, artifact models.JSONB, metrics models.JSONB, seed int64, createdBy string) (*models.ModelVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := 1
	if existing := r.families[family]; len(existing) > 0 {
		next = existing[len(existing)-1].VersionNumber + 1
	}

	version := &models.ModelVersion{
		Family:          family,
		VersionNumber:   next,
		Artifact:        artifact,
		TrainingMetrics: metrics,
		Seed:            seed,
		CreatedBy:       createdBy,
		CreatedAt:       time.Now(),
	}
	if err := r.db.Create(version).Error; err != nil {
		return nil, fmt.Errorf("保存模型版本失败: %w", err)
	}
	r.families[family] = append(r.families[family], version)
	return version, nil
}

// Active 返回模型族的最新版本
func (r *Registry) Active(family string) (*models.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.families[family]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: family=%s", ErrModelNotFound, family)
	}
	return versions[len(versions)-1], nil
}

// Get 返回模型族的指定版本
func (r *Registry) Get(family string, versionNumber int) (*models.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.families[family] {
		if v.VersionNumber == versionNumber {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: family=%s version=%d", ErrModelNotFound, family, versionNumber)
}

// Versions 返回模型族全部版本，按版本号升序
func (r *Registry) Versions(family string) []*models.ModelVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.ModelVersion, len(r.families[family]))
	copy(out, r.families[family])
	return out
}

// Families 返回已注册的模型族名称，按字典序
func (r *Registry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActiveSet 返回全部模型族的当前活动版本映射
func (r *Registry) ActiveSet() map[string]*models.ModelVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*models.ModelVersion, len(r.families))
	for family, versions := range r.families {
		if len(versions) > 0 {
			out[family] = versions[len(versions)-1]
		}
	}
	return out
}
