/*
 * @module service/detectors/categories
 * @description 取值一致性检测：低频类别、类型符合性、格式一致性、日期异常
 * @architecture 业务服务层 - 统计检测项
 * @documentReference ai_docs/survey_quality_req.md
 * @refs service/detectors/detectors.go
 */

package detectors

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/engine"
	"surveyqc-service/service/models"
)

func init() {
	register(&builtinCheck{
		id:          "inconsistent_categories",
		category:    models.CheckCategoryContentQuality,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityLow,
		description: "分类字段出现频次极低的离散取值，疑似录入不一致",
		run:         runInconsistentCategories,
	})
	register(&builtinCheck{
		id:            "data_type",
		category:      models.CheckCategoryContentQuality,
		kind:          models.CheckKindDeterministic,
		severity:      models.SeverityHigh,
		description:   "字段实际取值与声明类型不符",
		partitionable: true,
		run:           runDataType,
	})
	register(&builtinCheck{
		id:          "format_consistency",
		category:    models.CheckCategoryPattern,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityMedium,
		description: "字段取值不符合参数声明的格式模式",
		run:         runFormatConsistency,
	})
	register(&builtinCheck{
		id:            "date_anomalies",
		category:      models.CheckCategoryContentQuality,
		kind:          models.CheckKindDeterministic,
		severity:      models.SeverityMedium,
		description:   "时间字段出现未来时间或跨度异常",
		partitionable: true,
		run:           runDateAnomalies,
	})
}

// runInconsistentCategories 类别占比低于阈值判定为不一致取值
func runInconsistentCategories(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	minFrequency, err := params.FloatRange("min_frequency", 0.01, 0, 0.5)
	if err != nil {
		return nil, err
	}
	minRecords := params.Int("min_records", 20)
	if rc.Dataset.Len() < minRecords {
		return nil, fmt.Errorf("%w: 记录数 %d 低于 %d", engine.ErrInsufficientData, rc.Dataset.Len(), minRecords)
	}

	fields := rc.Dataset.Schema.CategoricalFields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: 数据集没有分类字段", engine.ErrInsufficientData)
	}

	var findings []engine.Finding
	for _, field := range fields {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		counts := make(map[string]int)
		total := 0
		for _, rec := range rc.Dataset.Records {
			v := strings.TrimSpace(dataset.AsString(rec.Value(field)))
			if v == "" {
				continue
			}
			counts[v]++
			total++
		}
		if total == 0 {
			continue
		}
		for _, rec := range rc.Dataset.Records {
			v := strings.TrimSpace(dataset.AsString(rec.Value(field)))
			if v == "" {
				continue
			}
			freq := float64(counts[v]) / float64(total)
			if freq < minFrequency {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       field,
					Confidence:  clamp01(1 - freq/minFrequency),
					Explanation: fmt.Sprintf("字段 %s 取值 %q 仅占 %.1f%%，疑似录入不一致", field, v, freq*100),
					Details:     models.JSONB{"value": v, "frequency": freq},
				})
			}
		}
	}
	return findings, nil
}

// runDataType 声明为数值/时间的字段出现不可解析值即判定类型不符
func runDataType(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	var findings []engine.Finding
	schema := rc.Dataset.Schema

	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		for _, field := range schema.FieldNames() {
			v := rec.Value(field)
			if dataset.IsMissing(v) {
				continue
			}
			var ok bool
			switch schema.Fields[field] {
			case dataset.FieldNumeric:
				_, ok = dataset.AsFloat(v)
			case dataset.FieldDatetime:
				_, ok = dataset.AsTime(v)
			default:
				continue
			}
			if !ok {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       field,
					Confidence:  1.0,
					Explanation: fmt.Sprintf("字段 %s 取值 %q 无法解析为声明类型 %s", field, dataset.AsString(v), schema.Fields[field]),
					Details:     models.JSONB{"value": dataset.AsString(v), "declared_type": string(schema.Fields[field])},
				})
			}
		}
	}
	return findings, nil
}

// runFormatConsistency 按参数声明的正则模式校验字段格式
// patterns 参数形如 {"email": "^[^@]+@[^@]+$"}
func runFormatConsistency(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	raw, ok := params["patterns"].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: patterns 参数缺失或为空", engine.ErrMisconfigured)
	}

	compiled := make(map[string]*regexp.Regexp, len(raw))
	for field, pattern := range raw {
		if !rc.Dataset.Schema.Has(field) {
			return nil, fmt.Errorf("%w: 字段 %s 不在数据集模式中", engine.ErrMisconfigured, field)
		}
		re, err := regexp.Compile(dataset.AsString(pattern))
		if err != nil {
			return nil, fmt.Errorf("%w: 字段 %s 的模式非法: %v", engine.ErrMisconfigured, field, err)
		}
		compiled[field] = re
	}

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		for _, field := range rc.Dataset.Schema.FieldNames() {
			re, ok := compiled[field]
			if !ok {
				continue
			}
			v := dataset.AsString(rec.Value(field))
			if v == "" {
				continue
			}
			if !re.MatchString(v) {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       field,
					Confidence:  1.0,
					Explanation: fmt.Sprintf("字段 %s 取值 %q 不符合声明格式", field, v),
					Details:     models.JSONB{"value": v, "pattern": re.String()},
				})
			}
		}
	}
	return findings, nil
}

// runDateAnomalies 未来时间与记录内时间跨度异常检测
func runDateAnomalies(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	maxSpanHours, err := params.FloatRange("max_span_hours", 24, 0.1, 24*365)
	if err != nil {
		return nil, err
	}

	fields := rc.Dataset.Schema.DatetimeFields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: 数据集没有时间字段", engine.ErrInsufficientData)
	}

	now := time.Now()
	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		for _, field := range fields {
			t, ok := dataset.AsTime(rec.Value(field))
			if !ok {
				continue
			}
			if t.After(now) {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       field,
					Confidence:  1.0,
					Explanation: fmt.Sprintf("字段 %s 为未来时间 %s", field, t.Format(time.RFC3339)),
					Details:     models.JSONB{"value": t.Format(time.RFC3339)},
				})
			}
		}

		ts := rec.Timestamps(rc.Dataset.Schema)
		if len(ts) >= 2 {
			span := ts[len(ts)-1].Sub(ts[0])
			if span.Hours() > maxSpanHours {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Confidence:  clamp01(span.Hours() / (maxSpanHours * 2)),
					Explanation: fmt.Sprintf("记录时间跨度 %.1f 小时超出阈值 %.1f 小时", span.Hours(), maxSpanHours),
					Details:     models.JSONB{"span_hours": span.Hours(), "max_span_hours": maxSpanHours},
				})
			}
		}
	}
	return findings, nil
}
