/*
 * @module service/engine/registry
 * @description 检测项静态注册表
 * @architecture 业务服务层 - 检测引擎
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 各检测包 init() 注册 -> 调度器按 ID 查找执行
 * @rules 检测项集合在编译期封闭，运行期不接受动态代码
 * @dependencies 无
 * @refs service/detectors
 */

package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Registry 检测项注册表
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Check)}
}

// Default 全局注册表，检测包在 init() 中注册
var Default = NewRegistry()

// Register 注册检测项，重复 ID 直接 panic（编程错误）
func (r *Registry) Register(c Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[c.ID()]; exists {
		panic(fmt.Sprintf("检测项重复注册: %s", c.ID()))
	}
	r.checks[c.ID()] = c
}

// Get 按 ID 查找检测项
func (r *Registry) Get(id string) (Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checks[id]
	return c, ok
}

// All 返回全部检测项，按 ID 字典序
func (r *Registry) All() []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Check, 0, len(r.checks))
	for _, c := range r.checks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// IDs 返回全部检测项 ID，按字典序
func (r *Registry) IDs() []string {
	all := r.All()
	ids := make([]string, len(all))
	for i, c := range all {
		ids[i] = c.ID()
	}
	return ids
}
