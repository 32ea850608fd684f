/*
 * @module service/detectors/completeness
 * @description 完整性检测：缺失值、必答题完整度、分节完整度
 * @architecture 业务服务层 - 统计检测项
 * @documentReference ai_docs/survey_quality_req.md
 * @rules 全部阈值来自规则版本参数
 * @refs service/detectors/detectors.go
 */

package detectors

import (
	"context"
	"fmt"
	"strings"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/engine"
	"surveyqc-service/service/models"
)

func init() {
	register(&builtinCheck{
		id:            "missing_values",
		category:      models.CheckCategoryContentQuality,
		kind:          models.CheckKindDeterministic,
		severity:      models.SeverityMedium,
		description:   "记录整体填答率低于阈值",
		partitionable: true,
		run:           runMissingValues,
	})
	register(&builtinCheck{
		id:          "required_completeness",
		category:    models.CheckCategoryContentQuality,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityHigh,
		description: "必答字段存在缺失",
		run:         runRequiredCompleteness,
	})
	register(&builtinCheck{
		id:          "section_completeness",
		category:    models.CheckCategoryContentQuality,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityMedium,
		description: "指定分节字段的填答率低于阈值",
		run:         runSectionCompleteness,
	})
}

// runMissingValues 按记录计算填答率，低于阈值即产出问题
func runMissingValues(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	minFillRate, err := params.FloatRange("min_fill_rate", 0.5, 0, 1)
	if err != nil {
		return nil, err
	}

	var findings []engine.Finding
	for i := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		rec := rc.Dataset.Records[i]
		rate := rec.FillRate(rc.Dataset.Schema)
		if rate < minFillRate {
			findings = append(findings, engine.Finding{
				RecordIndex: rec.Index,
				Confidence:  clamp01(1 - rate/minFillRate),
				Explanation: fmt.Sprintf("填答率 %.0f%% 低于阈值 %.0f%%", rate*100, minFillRate*100),
				Details:     models.JSONB{"fill_rate": rate, "min_fill_rate": minFillRate},
			})
		}
	}
	return findings, nil
}

// runRequiredCompleteness 必答字段缺失检测，字段列表来自参数
func runRequiredCompleteness(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	required := params.StringSlice("required_fields")
	if len(required) == 0 {
		return nil, fmt.Errorf("%w: required_fields 不能为空", engine.ErrMisconfigured)
	}
	for _, f := range required {
		if !rc.Dataset.Schema.Has(f) {
			return nil, fmt.Errorf("%w: 字段 %s 不在数据集模式中", engine.ErrMisconfigured, f)
		}
	}

	var findings []engine.Finding
	for i := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		rec := rc.Dataset.Records[i]
		var missing []string
		for _, f := range required {
			if dataset.IsMissing(rec.Value(f)) {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			findings = append(findings, engine.Finding{
				RecordIndex: rec.Index,
				Field:       strings.Join(missing, ","),
				Confidence:  1.0,
				Explanation: fmt.Sprintf("必答字段缺失: %s", strings.Join(missing, ", ")),
				Details:     models.JSONB{"missing_fields": missing},
			})
		}
	}
	return findings, nil
}

// runSectionCompleteness 分节填答率检测，分节由字段前缀定义
func runSectionCompleteness(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	prefix := params.String("section_prefix", "")
	if prefix == "" {
		return nil, fmt.Errorf("%w: section_prefix 不能为空", engine.ErrMisconfigured)
	}
	minRate, err := params.FloatRange("min_fill_rate", 0.8, 0, 1)
	if err != nil {
		return nil, err
	}

	var sectionFields []string
	for _, f := range rc.Dataset.Schema.FieldNames() {
		if strings.HasPrefix(f, prefix) {
			sectionFields = append(sectionFields, f)
		}
	}
	if len(sectionFields) == 0 {
		return nil, fmt.Errorf("%w: 前缀 %s 未匹配任何字段", engine.ErrMisconfigured, prefix)
	}

	var findings []engine.Finding
	for i := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		rec := rc.Dataset.Records[i]
		rate := rec.SectionFillRate(sectionFields)
		if rate < minRate {
			findings = append(findings, engine.Finding{
				RecordIndex: rec.Index,
				Field:       prefix,
				Confidence:  clamp01(1 - rate/minRate),
				Explanation: fmt.Sprintf("分节 %s 填答率 %.0f%% 低于阈值 %.0f%%", prefix, rate*100, minRate*100),
				Details:     models.JSONB{"section": prefix, "fill_rate": rate},
			})
		}
	}
	return findings, nil
}
