/*
 * @module service/dataset/store
 * @description 数据集内存仓库，按引用键注册和查找已加载的数据集
 * @architecture 服务层 - 采集协作方与检测引擎之间的交接点
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 采集方提交数据集 -> 注册 -> 检测运行按引用读取
 * @rules 引擎不解析原始文件，仅接收已带模式标注的数据集
 * @dependencies sync
 * @refs api/controllers/detection_controller.go
 */

package dataset

import (
	"fmt"
	"sync"
)

// Store 数据集仓库
type Store struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// NewStore 创建数据集仓库
func NewStore() *Store {
	return &Store{datasets: make(map[string]*Dataset)}
}

// Register 注册数据集，同名引用覆盖旧数据集
func (s *Store) Register(d *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[d.Ref] = d
}

// Get 按引用读取数据集
func (s *Store) Get(ref string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[ref]
	if !ok {
		return nil, fmt.Errorf("数据集 %s 未注册", ref)
	}
	return d, nil
}

// List 返回已注册的数据集引用
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]string, 0, len(s.datasets))
	for ref := range s.datasets {
		refs = append(refs, ref)
	}
	return refs
}
