/*
 * @module service/dataset/record
 * @description 调查记录及其惰性派生元数据（时间戳、完成率、文本词数）
 * @architecture 数据模型层
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 首次访问触发计算 -> 缓存 -> 后续并发只读
 * @rules 派生元数据每条记录至多计算一次，单写多读，计算后不再变更
 * @dependencies sync, strings
 * @refs service/dataset/dataset.go
 */

package dataset

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Record 单条调查记录
// 字段名到可空值的映射，归属其数据集，检查只读
type Record struct {
	Index  int                    `json:"index"`
	Values map[string]interface{} `json:"values"`

	metaOnce sync.Once
	meta     *derivedMeta
}

// derivedMeta 派生元数据，首次访问时计算并缓存
type derivedMeta struct {
	timestamps  []time.Time
	tokenCounts map[string]int
	fillRate    float64
}

func newRecord(index int, values map[string]interface{}) *Record {
	return &Record{Index: index, Values: values}
}

// Value 读取字段值，缺失字段返回 nil
func (r *Record) Value(field string) interface{} {
	return r.Values[field]
}

// computeMeta 计算派生元数据，整条记录只执行一次
func (r *Record) computeMeta(schema *Schema) {
	r.metaOnce.Do(func() {
		meta := &derivedMeta{tokenCounts: make(map[string]int)}

		// 响应时间戳，按时间排序
		for _, field := range schema.DatetimeFields() {
			if t, ok := AsTime(r.Values[field]); ok {
				meta.timestamps = append(meta.timestamps, t)
			}
		}
		sort.Slice(meta.timestamps, func(i, j int) bool {
			return meta.timestamps[i].Before(meta.timestamps[j])
		})

		// 文本字段词数
		for _, field := range schema.TextFields() {
			text := AsString(r.Values[field])
			if text == "" {
				continue
			}
			meta.tokenCounts[field] = len(strings.Fields(text))
		}

		// 填答率
		filled := 0
		for field := range schema.Fields {
			if !IsMissing(r.Values[field]) {
				filled++
			}
		}
		if len(schema.Fields) > 0 {
			meta.fillRate = float64(filled) / float64(len(schema.Fields))
		}

		r.meta = meta
	})
}

// Timestamps 响应时间戳（升序）
func (r *Record) Timestamps(schema *Schema) []time.Time {
	r.computeMeta(schema)
	return r.meta.timestamps
}

// TokenCount 指定文本字段的词数
func (r *Record) TokenCount(schema *Schema, field string) int {
	r.computeMeta(schema)
	return r.meta.tokenCounts[field]
}

// FillRate 记录整体填答率 [0,1]
func (r *Record) FillRate(schema *Schema) float64 {
	r.computeMeta(schema)
	return r.meta.fillRate
}

// SectionFillRate 指定字段集合的填答率
func (r *Record) SectionFillRate(fields []string) float64 {
	if len(fields) == 0 {
		return 1.0
	}
	filled := 0
	for _, field := range fields {
		if !IsMissing(r.Values[field]) {
			filled++
		}
	}
	return float64(filled) / float64(len(fields))
}
