/*
 * @module service/dataset/dataset
 * @description 调查数据集内存模型，包含字段模式、记录和加载校验
 * @architecture 数据模型层 - 检测引擎的规范化输入表示
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 外部采集方提供数据 -> 加载校验 -> 只读数据集 -> 检查消费
 * @rules 数据集加载后不可变，检查只读取记录并产出问题，永不修改记录
 * @dependencies github.com/spf13/cast
 * @refs service/engine/, service/detectors/
 */

package dataset

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cast"
)

// FieldType 字段声明类型
type FieldType string

const (
	FieldNumeric     FieldType = "numeric"
	FieldCategorical FieldType = "categorical"
	FieldText        FieldType = "text"
	FieldDatetime    FieldType = "datetime"
	FieldIdentifier  FieldType = "identifier" // 邮箱/IP/样本ID/受访者ID等，用于重复和机器人检查
)

// Schema 字段模式：字段名 -> 声明类型
type Schema struct {
	Fields map[string]FieldType `json:"fields"`
}

// FieldsOfType 返回指定类型的字段名，按字段名排序保证确定性
func (s *Schema) FieldsOfType(t FieldType) []string {
	var names []string
	for name, ft := range s.Fields {
		if ft == t {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IdentifierFields 返回标识字段
func (s *Schema) IdentifierFields() []string {
	return s.FieldsOfType(FieldIdentifier)
}

// NumericFields 返回数值字段
func (s *Schema) NumericFields() []string {
	return s.FieldsOfType(FieldNumeric)
}

// TextFields 返回自由文本字段
func (s *Schema) TextFields() []string {
	return s.FieldsOfType(FieldText)
}

// CategoricalFields 返回分类字段
func (s *Schema) CategoricalFields() []string {
	return s.FieldsOfType(FieldCategorical)
}

// DatetimeFields 返回时间字段
func (s *Schema) DatetimeFields() []string {
	return s.FieldsOfType(FieldDatetime)
}

// FieldNames 返回全部字段名，按字段名排序保证确定性
func (s *Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has 判断字段是否在模式中
func (s *Schema) Has(name string) bool {
	_, ok := s.Fields[name]
	return ok
}

// Dataset 调查数据集
// 有序记录序列 + 字段模式，加载后对一次运行不可变
type Dataset struct {
	Ref     string    `json:"ref"`
	Schema  *Schema   `json:"schema"`
	Records []*Record `json:"records"`
}

// New 构建数据集并校验记录字段是模式字段的子集
func New(ref string, schema *Schema, rows []map[string]interface{}) (*Dataset, error) {
	if schema == nil || len(schema.Fields) == 0 {
		return nil, fmt.Errorf("数据集 %s 缺少字段模式", ref)
	}

	records := make([]*Record, 0, len(rows))
	for i, row := range rows {
		for field := range row {
			if !schema.Has(field) {
				return nil, fmt.Errorf("记录 %d 的字段 %s 不在模式中", i, field)
			}
		}
		records = append(records, newRecord(i, row))
	}

	return &Dataset{Ref: ref, Schema: schema, Records: records}, nil
}

// Len 记录数
func (d *Dataset) Len() int {
	return len(d.Records)
}

// Record 返回指定位置的记录
func (d *Dataset) Record(i int) *Record {
	return d.Records[i]
}

// Slice 返回记录区间 [start, end) 的只读视图
// 共享模式与记录，记录保留原始全局序号，供记录级检查分片执行
func (d *Dataset) Slice(start, end int) *Dataset {
	if start < 0 {
		start = 0
	}
	if end > len(d.Records) {
		end = len(d.Records)
	}
	return &Dataset{Ref: d.Ref, Schema: d.Schema, Records: d.Records[start:end]}
}

// === 值转换辅助 ===

// AsFloat 宽松数值转换，nil 和不可解析值返回 false
func AsFloat(v interface{}) (float64, bool) {
	if v == nil {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// AsString 宽松字符串转换，nil 返回空串
func AsString(v interface{}) string {
	if v == nil {
		return ""
	}
	return cast.ToString(v)
}

// AsTime 宽松时间转换，支持常见日期格式
func AsTime(v interface{}) (time.Time, bool) {
	if v == nil {
		return time.Time{}, false
	}
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	s := cast.ToString(v)
	if s == "" {
		return time.Time{}, false
	}
	formats := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsMissing 判断值是否缺失（nil 或空字符串）
func IsMissing(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}
