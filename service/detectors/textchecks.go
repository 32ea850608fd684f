/*
 * @module service/detectors/textchecks
 * @description 文本答案检测：过短答案、低质量文本、封闭/开放一致性、品牌回忆
 * @architecture 业务服务层 - 统计检测项
 * @documentReference ai_docs/survey_quality_req.md
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
		id:            "response_brevity",
		category:      models.CheckCategoryContentQuality,
		kind:          models.CheckKindDeterministic,
		severity:      models.SeverityLow,
		description:   "开放题答案词数低于下限",
		partitionable: true,
		run:           runResponseBrevity,
	})
	register(&builtinCheck{
		id:            "text_quality",
		category:      models.CheckCategoryContentQuality,
		kind:          models.CheckKindDeterministic,
		severity:      models.SeverityMedium,
		description:   "文本答案过短或重复字符占比过高",
		partitionable: true,
		run:           runTextQuality,
	})
	register(&builtinCheck{
		id:          "closed_open_consistency",
		category:    models.CheckCategoryDomainSpecific,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityMedium,
		description: "封闭题选项与开放题答案关键词不一致",
		run:         runClosedOpenConsistency,
	})
	register(&builtinCheck{
		id:          "brand_recall",
		category:    models.CheckCategoryDomainSpecific,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityLow,
		description: "品牌回忆题未命中任何预期品牌",
		run:         runBrandRecall,
	})
}

// runResponseBrevity 开放题词数低于 min_words 即产出问题
func runResponseBrevity(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	minWords := params.Int("min_words", 3)
	if minWords < 1 {
		return nil, fmt.Errorf("%w: min_words 必须 >= 1", engine.ErrMisconfigured)
	}

	fields := rc.Dataset.Schema.TextFields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: 数据集没有文本字段", engine.ErrInsufficientData)
	}

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		for _, field := range fields {
			text := strings.TrimSpace(dataset.AsString(rec.Value(field)))
			if text == "" {
				continue
			}
			words := rec.TokenCount(rc.Dataset.Schema, field)
			if words < minWords {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       field,
					Confidence:  clamp01(1 - float64(words)/float64(minWords)),
					Explanation: fmt.Sprintf("开放题 %s 仅 %d 个词，低于下限 %d", field, words, minWords),
					Details:     models.JSONB{"words": words, "min_words": minWords},
				})
			}
		}
	}
	return findings, nil
}

// runTextQuality 过短文本或重复字符占比过高判定低质量
func runTextQuality(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	minChars := params.Int("min_chars", 5)
	maxRepeatRatio, err := params.FloatRange("max_repeat_ratio", 0.6, 0.1, 1)
	if err != nil {
		return nil, err
	}

	fields := rc.Dataset.Schema.TextFields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: 数据集没有文本字段", engine.ErrInsufficientData)
	}

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		for _, field := range fields {
			text := strings.TrimSpace(dataset.AsString(rec.Value(field)))
			if text == "" {
				continue
			}
			runes := []rune(text)
			if len(runes) < minChars {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       field,
					Confidence:  clamp01(1 - float64(len(runes))/float64(minChars)),
					Explanation: fmt.Sprintf("文本答案 %s 仅 %d 个字符，低于下限 %d", field, len(runes), minChars),
					Details:     models.JSONB{"chars": len(runes), "min_chars": minChars},
				})
				continue
			}
			ratio := dominantCharRatio(runes)
			if ratio > maxRepeatRatio {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       field,
					Confidence:  clamp01(ratio),
					Explanation: fmt.Sprintf("文本答案 %s 单一字符占比 %.0f%%，判定为低质量", field, ratio*100),
					Details:     models.JSONB{"dominant_char_ratio": ratio},
				})
			}
		}
	}
	return findings, nil
}

func dominantCharRatio(runes []rune) float64 {
	if len(runes) == 0 {
		return 0
	}
	counts := make(map[rune]int)
	max := 0
	for _, r := range runes {
		if r == ' ' {
			continue
		}
		counts[r]++
		if counts[r] > max {
			max = counts[r]
		}
	}
	return float64(max) / float64(len(runes))
}

// runClosedOpenConsistency 封闭题取值对应的开放题答案必须包含预期关键词之一
// mappings 参数形如 [{"closed_field":"satisfaction","closed_value":"dissatisfied",
//   "open_field":"why","expected_keywords":["问题","差","慢"]}]
func runClosedOpenConsistency(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	raw, ok := params["mappings"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: mappings 参数缺失或为空", engine.ErrMisconfigured)
	}

	type mapping struct {
		closedField, closedValue, openField string
		keywords                            []string
	}
	mappings := make([]mapping, 0, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: 第 %d 条映射格式错误", engine.ErrMisconfigured, i)
		}
		mp := mapping{
			closedField: dataset.AsString(m["closed_field"]),
			closedValue: strings.ToLower(dataset.AsString(m["closed_value"])),
			openField:   dataset.AsString(m["open_field"]),
		}
		if kws, ok := m["expected_keywords"].([]interface{}); ok {
			for _, kw := range kws {
				mp.keywords = append(mp.keywords, strings.ToLower(dataset.AsString(kw)))
			}
		}
		if !rc.Dataset.Schema.Has(mp.closedField) || !rc.Dataset.Schema.Has(mp.openField) || len(mp.keywords) == 0 {
			return nil, fmt.Errorf("%w: 第 %d 条映射字段或关键词非法", engine.ErrMisconfigured, i)
		}
		mappings = append(mappings, mp)
	}

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		for _, mp := range mappings {
			closed := strings.ToLower(strings.TrimSpace(dataset.AsString(rec.Value(mp.closedField))))
			if closed != mp.closedValue {
				continue
			}
			open := strings.ToLower(dataset.AsString(rec.Value(mp.openField)))
			if open == "" {
				continue
			}
			hit := false
			for _, kw := range mp.keywords {
				if strings.Contains(open, kw) {
					hit = true
					break
				}
			}
			if !hit {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       mp.openField,
					Confidence:  0.7,
					Explanation: fmt.Sprintf("封闭题 %s=%q 但开放题 %s 未出现任何预期关键词", mp.closedField, closed, mp.openField),
					Details:     models.JSONB{"closed_field": mp.closedField, "closed_value": closed, "open_field": mp.openField},
				})
			}
		}
	}
	return findings, nil
}

// runBrandRecall 品牌回忆题答案未命中预期品牌列表
func runBrandRecall(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	field := params.String("recall_field", "")
	if field == "" || !rc.Dataset.Schema.Has(field) {
		return nil, fmt.Errorf("%w: recall_field 缺失或不在数据集模式中", engine.ErrMisconfigured)
	}
	brands := params.StringSlice("expected_brands")
	if len(brands) == 0 {
		return nil, fmt.Errorf("%w: expected_brands 不能为空", engine.ErrMisconfigured)
	}
	lowered := make([]string, len(brands))
	for i, b := range brands {
		lowered[i] = strings.ToLower(b)
	}

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		answer := strings.ToLower(strings.TrimSpace(dataset.AsString(rec.Value(field))))
		if answer == "" {
			continue
		}
		hit := false
		for _, b := range lowered {
			if strings.Contains(answer, b) {
				hit = true
				break
			}
		}
		if !hit {
			findings = append(findings, engine.Finding{
				RecordIndex: rec.Index,
				Field:       field,
				Confidence:  0.6,
				Explanation: fmt.Sprintf("品牌回忆题 %s 未命中 %d 个预期品牌中的任何一个", field, len(brands)),
				Details:     models.JSONB{"expected_brands": brands},
			})
		}
	}
	return findings, nil
}
