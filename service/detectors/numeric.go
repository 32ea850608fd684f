/*
 * @module service/detectors/numeric
 * @description 数值检测：离群值、取值范围、分布偏斜
 * @architecture 业务服务层 - 统计检测项
 * @documentReference ai_docs/survey_quality_req.md
 * @refs service/detectors/detectors.go
 */

package detectors

import (
	"context"
	"fmt"
	"math"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/engine"
	"surveyqc-service/service/models"
)

func init() {
	register(&builtinCheck{
		id:          "outliers",
		category:    models.CheckCategoryPattern,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityMedium,
		description: "数值字段 z-score 超阈值的离群记录",
		run:         runOutliers,
	})
	register(&builtinCheck{
		id:            "numeric_range",
		category:      models.CheckCategoryContentQuality,
		kind:          models.CheckKindDeterministic,
		severity:      models.SeverityHigh,
		description:   "数值字段超出声明取值范围",
		partitionable: true,
		run:           runNumericRange,
	})
	register(&builtinCheck{
		id:          "value_distribution",
		category:    models.CheckCategoryPattern,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityLow,
		description: "数值字段均值与中位数偏离过大，分布异常",
		run:         runValueDistribution,
	})
}

const minSamplesForStats = 3

// runOutliers 对每个数值字段计算 z-score，超阈值的记录产出问题
func runOutliers(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	zThreshold, err := params.FloatRange("z_threshold", 3.0, 1.0, 10.0)
	if err != nil {
		return nil, err
	}

	fields := rc.Dataset.Schema.NumericFields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: 数据集没有数值字段", engine.ErrInsufficientData)
	}

	var findings []engine.Finding
	for _, field := range fields {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		var values []float64
		var indices []int
		for _, rec := range rc.Dataset.Records {
			if v, ok := dataset.AsFloat(rec.Value(field)); ok {
				values = append(values, v)
				indices = append(indices, rec.Index)
			}
		}
		if len(values) < minSamplesForStats {
			continue
		}
		m := mean(values)
		sd := stddev(values, m)
		if sd == 0 {
			continue
		}
		for i, v := range values {
			z := math.Abs(v-m) / sd
			if z > zThreshold {
				findings = append(findings, engine.Finding{
					RecordIndex: indices[i],
					Field:       field,
					Confidence:  clamp01(z / (zThreshold * 2)),
					Explanation: fmt.Sprintf("字段 %s 取值 %.2f 偏离均值 %.1f 个标准差", field, v, z),
					Details:     models.JSONB{"value": v, "z_score": z, "mean": m, "stddev": sd},
				})
			}
		}
	}
	return findings, nil
}

// runNumericRange 检查数值字段是否落在参数声明的 [min, max] 内
// ranges 参数形如 {"age": {"min": 0, "max": 120}}
func runNumericRange(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	raw, ok := params["ranges"].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: ranges 参数缺失或为空", engine.ErrMisconfigured)
	}

	type bound struct{ min, max float64 }
	bounds := make(map[string]bound, len(raw))
	for field, spec := range raw {
		if !rc.Dataset.Schema.Has(field) {
			return nil, fmt.Errorf("%w: 字段 %s 不在数据集模式中", engine.ErrMisconfigured, field)
		}
		m, ok := spec.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: 字段 %s 的范围声明格式错误", engine.ErrMisconfigured, field)
		}
		lo, loOK := dataset.AsFloat(m["min"])
		hi, hiOK := dataset.AsFloat(m["max"])
		if !loOK || !hiOK || lo > hi {
			return nil, fmt.Errorf("%w: 字段 %s 的范围 [%v, %v] 非法", engine.ErrMisconfigured, field, m["min"], m["max"])
		}
		bounds[field] = bound{min: lo, max: hi}
	}

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		for _, field := range rc.Dataset.Schema.FieldNames() {
			b, ok := bounds[field]
			if !ok {
				continue
			}
			v, ok := dataset.AsFloat(rec.Value(field))
			if !ok {
				continue
			}
			if v < b.min || v > b.max {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       field,
					Confidence:  1.0,
					Explanation: fmt.Sprintf("字段 %s 取值 %.2f 超出声明范围 [%.2f, %.2f]", field, v, b.min, b.max),
					Details:     models.JSONB{"value": v, "min": b.min, "max": b.max},
				})
			}
		}
	}
	return findings, nil
}

// runValueDistribution 均值与中位数相对偏差超阈值即判定分布偏斜
// 字段级检测，问题落在数据集维度（record_index = -1 约定为数据集级）
func runValueDistribution(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	maxSkew, err := params.FloatRange("max_mean_median_skew", 0.5, 0.01, 10.0)
	if err != nil {
		return nil, err
	}

	fields := rc.Dataset.Schema.NumericFields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: 数据集没有数值字段", engine.ErrInsufficientData)
	}

	var findings []engine.Finding
	for _, field := range fields {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		var values []float64
		for _, rec := range rc.Dataset.Records {
			if v, ok := dataset.AsFloat(rec.Value(field)); ok {
				values = append(values, v)
			}
		}
		if len(values) < minSamplesForStats {
			continue
		}
		m := mean(values)
		med := median(values)
		scale := math.Max(math.Abs(med), 1e-9)
		skew := math.Abs(m-med) / scale
		if skew > maxSkew {
			findings = append(findings, engine.Finding{
				RecordIndex: -1,
				Field:       field,
				Confidence:  clamp01(skew / (maxSkew * 2)),
				Explanation: fmt.Sprintf("字段 %s 均值 %.2f 与中位数 %.2f 偏离 %.0f%%，分布异常", field, m, med, skew*100),
				Details:     models.JSONB{"mean": m, "median": med, "skew": skew},
			})
		}
	}
	return findings, nil
}
