/*
 * @module service/detectors/behavior
 * @description 作答行为检测：直线作答、过快作答、超时作答、交替模式
 * @architecture 业务服务层 - 统计检测项
 * @documentReference ai_docs/survey_quality_req.md
 * @refs service/detectors/detectors.go
 */

package detectors

import (
	"context"
	"fmt"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/engine"
	"surveyqc-service/service/models"
)

func init() {
	register(&builtinCheck{
		id:          "straightliners",
		category:    models.CheckCategoryBehavioral,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityHigh,
		description: "量表题组方差低于阈值的直线作答",
		run:         runStraightliners,
	})
	register(&builtinCheck{
		id:          "speeders",
		category:    models.CheckCategoryBehavioral,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityHigh,
		description: "完成时长低于绝对下限或分位数下限的过快作答",
		run:         runSpeeders,
	})
	register(&builtinCheck{
		id:          "response_time",
		category:    models.CheckCategoryBehavioral,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityLow,
		description: "完成时长异常偏长的记录",
		run:         runResponseTime,
	})
	register(&builtinCheck{
		id:          "response_patterns",
		category:    models.CheckCategoryPattern,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityMedium,
		description: "量表题组出现 ABAB 交替等机械作答模式",
		run:         runResponsePatterns,
	})
}

// batteryValues 读取量表题组取值，题组字段来自参数，缺省取全部数值字段
func batteryValues(rc *engine.RunContext, params engine.Params, rec *dataset.Record) ([]float64, []string, error) {
	fields := params.StringSlice("battery_fields")
	if len(fields) == 0 {
		fields = rc.Dataset.Schema.NumericFields()
	}
	for _, f := range fields {
		if !rc.Dataset.Schema.Has(f) {
			return nil, nil, fmt.Errorf("%w: 字段 %s 不在数据集模式中", engine.ErrMisconfigured, f)
		}
	}

	var values []float64
	for _, f := range fields {
		if v, ok := dataset.AsFloat(rec.Value(f)); ok {
			values = append(values, v)
		}
	}
	return values, fields, nil
}

// runStraightliners 题组取值方差 ≤ 阈值即判定直线作答
func runStraightliners(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	maxVariance, err := params.FloatRange("max_variance", 0.1, 0, 10)
	if err != nil {
		return nil, err
	}
	minItems := params.Int("min_items", 5)

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		values, fields, err := batteryValues(rc, params, rec)
		if err != nil {
			return nil, err
		}
		if len(values) < minItems {
			continue
		}
		v := variance(values)
		if v <= maxVariance {
			findings = append(findings, engine.Finding{
				RecordIndex: rec.Index,
				Confidence:  clamp01(1 - v/(maxVariance+1e-9)),
				Explanation: fmt.Sprintf("%d 道量表题方差 %.3f，低于阈值 %.3f，判定为直线作答", len(values), v, maxVariance),
				Details:     models.JSONB{"variance": v, "items": len(values), "fields": len(fields)},
			})
		}
	}
	return findings, nil
}

// completionSeconds 记录完成时长（首末时间戳差），字段可由参数指定
func completionSeconds(rc *engine.RunContext, params engine.Params, rec *dataset.Record) (float64, bool) {
	if field := params.String("duration_field", ""); field != "" {
		return dataset.AsFloat(rec.Value(field))
	}
	ts := rec.Timestamps(rc.Dataset.Schema)
	if len(ts) < 2 {
		return 0, false
	}
	return ts[len(ts)-1].Sub(ts[0]).Seconds(), true
}

// runSpeeders 完成时长低于绝对下限，或低于数据集分位数下限，判定过快作答
func runSpeeders(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	minSeconds, err := params.FloatRange("min_seconds", 30, 1, 86400)
	if err != nil {
		return nil, err
	}
	floorPercentile, err := params.FloatRange("floor_percentile", 5, 0, 50)
	if err != nil {
		return nil, err
	}

	durations := make(map[int]float64)
	var all []float64
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		if d, ok := completionSeconds(rc, params, rec); ok && d >= 0 {
			durations[rec.Index] = d
			all = append(all, d)
		}
	}
	if len(all) < minSamplesForStats {
		return nil, fmt.Errorf("%w: 可用完成时长样本 %d 条", engine.ErrInsufficientData, len(all))
	}

	floor := percentileNearestRank(all, floorPercentile)

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		d, ok := durations[rec.Index]
		if !ok {
			continue
		}
		switch {
		case d < minSeconds:
			findings = append(findings, engine.Finding{
				RecordIndex: rec.Index,
				Confidence:  clamp01(1 - d/minSeconds),
				Explanation: fmt.Sprintf("完成时长 %.0f 秒低于绝对下限 %.0f 秒", d, minSeconds),
				Details:     models.JSONB{"duration_seconds": d, "min_seconds": minSeconds},
			})
		case d < floor:
			findings = append(findings, engine.Finding{
				RecordIndex: rec.Index,
				Severity:    models.SeverityMedium,
				Confidence:  clamp01(1 - d/(floor+1e-9)),
				Explanation: fmt.Sprintf("完成时长 %.0f 秒低于 P%.0f 分位数 %.0f 秒", d, floorPercentile, floor),
				Details:     models.JSONB{"duration_seconds": d, "percentile_floor": floor},
			})
		}
	}
	return findings, nil
}

// runResponseTime 完成时长超出倍数阈值（相对中位数）判定异常偏长
func runResponseTime(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	maxMultiple, err := params.FloatRange("max_median_multiple", 5, 1.1, 100)
	if err != nil {
		return nil, err
	}

	durations := make(map[int]float64)
	var all []float64
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		if d, ok := completionSeconds(rc, params, rec); ok && d > 0 {
			durations[rec.Index] = d
			all = append(all, d)
		}
	}
	if len(all) < minSamplesForStats {
		return nil, fmt.Errorf("%w: 可用完成时长样本 %d 条", engine.ErrInsufficientData, len(all))
	}

	med := median(all)
	if med <= 0 {
		return nil, nil
	}
	limit := med * maxMultiple

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		d, ok := durations[rec.Index]
		if !ok || d <= limit {
			continue
		}
		findings = append(findings, engine.Finding{
			RecordIndex: rec.Index,
			Confidence:  clamp01(d / (limit * 2)),
			Explanation: fmt.Sprintf("完成时长 %.0f 秒为中位数的 %.1f 倍，超出阈值 %.1f 倍", d, d/med, maxMultiple),
			Details:     models.JSONB{"duration_seconds": d, "median_seconds": med},
		})
	}
	return findings, nil
}

// runResponsePatterns 量表题组 ABAB 交替占比超阈值判定机械作答
func runResponsePatterns(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	minAlternation, err := params.FloatRange("min_alternation_ratio", 0.9, 0.5, 1)
	if err != nil {
		return nil, err
	}
	minItems := params.Int("min_items", 6)

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		values, _, err := batteryValues(rc, params, rec)
		if err != nil {
			return nil, err
		}
		if len(values) < minItems {
			continue
		}

		// 交替段：v[i] == v[i+2] 且 v[i] != v[i+1]
		alternating := 0
		for i := 0; i+2 < len(values); i++ {
			if values[i] == values[i+2] && values[i] != values[i+1] {
				alternating++
			}
		}
		ratio := float64(alternating) / float64(len(values)-2)
		if ratio >= minAlternation {
			findings = append(findings, engine.Finding{
				RecordIndex: rec.Index,
				Confidence:  clamp01(ratio),
				Explanation: fmt.Sprintf("量表题组 %.0f%% 呈 ABAB 交替模式，判定为机械作答", ratio*100),
				Details:     models.JSONB{"alternation_ratio": ratio, "items": len(values)},
			})
		}
	}
	return findings, nil
}
