/*
 * @module service/detectors/nlpchecks
 * @description NLP 检测：语言、情感、可读性、垃圾文本、抄袭
 * @architecture 业务服务层 - NLP检测项
 * @documentReference ai_docs/survey_quality_req.md
 * @rules 全部分析通过共享 NLP 引擎完成，每记录+字段至多分析一次
 * @refs service/nlp/engine.go, service/nlp/similarity.go
 */

package detectors

import (
	"context"
	"fmt"
	"math"
	"strings"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/engine"
	"surveyqc-service/service/models"
	"surveyqc-service/service/nlp"
)

func init() {
	register(&builtinCheck{
		id:          "language_check",
		category:    models.CheckCategoryContentQuality,
		kind:        models.CheckKindModelBacked,
		severity:    models.SeverityMedium,
		description: "识别语言不在预期语言集合内",
		run:         runLanguageCheck,
	})
	register(&builtinCheck{
		id:          "sentiment_check",
		category:    models.CheckCategorySentiment,
		kind:        models.CheckKindModelBacked,
		severity:    models.SeverityLow,
		description: "情感极性超出阈值的极端答案",
		run:         runSentimentCheck,
	})
	register(&builtinCheck{
		id:          "readability_check",
		category:    models.CheckCategoryContentQuality,
		kind:        models.CheckKindModelBacked,
		severity:    models.SeverityLow,
		description: "可读性分数超过阈值，疑似粘贴或生成文本",
		run:         runReadabilityCheck,
	})
	register(&builtinCheck{
		id:          "garbage_text",
		category:    models.CheckCategoryContentQuality,
		kind:        models.CheckKindModelBacked,
		severity:    models.SeverityHigh,
		description: "脏话、键盘乱敲、重复或纯标点等垃圾文本",
		run:         runGarbageText,
	})
	register(&builtinCheck{
		id:          "plagiarism",
		category:    models.CheckCategoryDuplicate,
		kind:        models.CheckKindModelBacked,
		severity:    models.SeverityHigh,
		description: "开放题答案 TF-IDF 余弦相似度超阈值的抄袭簇",
		run:         runPlagiarism,
	})
}

// nlpTextFields 返回检测目标文本字段，参数可覆盖默认的全部文本字段
func nlpTextFields(rc *engine.RunContext, params engine.Params) ([]string, error) {
	fields := params.StringSlice("text_fields")
	if len(fields) == 0 {
		fields = rc.Dataset.Schema.TextFields()
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: 数据集没有文本字段", engine.ErrInsufficientData)
	}
	for _, f := range fields {
		if !rc.Dataset.Schema.Has(f) {
			return nil, fmt.Errorf("%w: 字段 %s 不在数据集模式中", engine.ErrMisconfigured, f)
		}
	}
	return fields, nil
}

// runLanguageCheck 识别语言不在 expected_languages 内产出问题
// und（置信度低于下限）按未知语言单独报告，从不判定为错误语言
func runLanguageCheck(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	expected := params.StringSlice("expected_languages")
	if len(expected) == 0 {
		return nil, fmt.Errorf("%w: expected_languages 不能为空", engine.ErrMisconfigured)
	}
	expectedSet := make(map[string]bool, len(expected))
	for _, lang := range expected {
		expectedSet[strings.ToLower(lang)] = true
	}
	flagUnknown := params.Bool("flag_unknown", false)
	minWords := params.Int("min_words", 3)

	fields, err := nlpTextFields(rc, params)
	if err != nil {
		return nil, err
	}

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		for _, field := range fields {
			text := dataset.AsString(rec.Value(field))
			if text == "" {
				continue
			}
			analysis := rc.NLP.Analyze(rec.Index, field, text)
			if analysis.WordCount < minWords {
				continue
			}
			if analysis.Language == nlp.LanguageUnknown {
				if flagUnknown {
					findings = append(findings, engine.Finding{
						RecordIndex: rec.Index,
						Field:       field,
						Severity:    models.SeverityLow,
						Confidence:  0.5,
						Explanation: fmt.Sprintf("字段 %s 语言无法识别（置信度低于下限）", field),
						Details:     models.JSONB{"language": nlp.LanguageUnknown},
					})
				}
				continue
			}
			if !expectedSet[strings.ToLower(analysis.Language)] {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       field,
					Confidence:  analysis.LanguageConfidence,
					Explanation: fmt.Sprintf("字段 %s 识别为 %s（置信度 %.2f），不在预期语言集合内", field, analysis.Language, analysis.LanguageConfidence),
					Details:     models.JSONB{"language": analysis.Language, "confidence": analysis.LanguageConfidence, "expected": expected},
				})
			}
		}
	}
	return findings, nil
}

// runSentimentCheck 情感极性绝对值超阈值产出问题
func runSentimentCheck(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	maxPolarity, err := params.FloatRange("max_abs_polarity", 0.8, 0.1, 1)
	if err != nil {
		return nil, err
	}

	fields, err := nlpTextFields(rc, params)
	if err != nil {
		return nil, err
	}

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		for _, field := range fields {
			text := dataset.AsString(rec.Value(field))
			if text == "" {
				continue
			}
			analysis := rc.NLP.Analyze(rec.Index, field, text)
			if math.Abs(analysis.Polarity) > maxPolarity {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       field,
					Confidence:  clamp01(math.Abs(analysis.Polarity)),
					Explanation: fmt.Sprintf("字段 %s 情感极性 %.2f（%s）超出阈值 %.2f", field, analysis.Polarity, analysis.SentimentLabel, maxPolarity),
					Details:     models.JSONB{"polarity": analysis.Polarity, "label": analysis.SentimentLabel, "magnitude": analysis.Magnitude},
				})
			}
		}
	}
	return findings, nil
}

// runReadabilityCheck 可读性分数超阈值产出问题
func runReadabilityCheck(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	maxScore, err := params.FloatRange("max_score", 90, 10, 200)
	if err != nil {
		return nil, err
	}
	minWords := params.Int("min_words", 10)

	fields, err := nlpTextFields(rc, params)
	if err != nil {
		return nil, err
	}

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		for _, field := range fields {
			text := dataset.AsString(rec.Value(field))
			if text == "" {
				continue
			}
			analysis := rc.NLP.Analyze(rec.Index, field, text)
			if analysis.WordCount < minWords {
				continue
			}
			if analysis.ReadabilityScore > maxScore {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       field,
					Confidence:  clamp01(analysis.ReadabilityScore / (maxScore * 2)),
					Explanation: fmt.Sprintf("字段 %s 可读性分数 %.1f（%s）超出阈值 %.1f", field, analysis.ReadabilityScore, analysis.ReadabilityLevel, maxScore),
					Details:     models.JSONB{"score": analysis.ReadabilityScore, "level": analysis.ReadabilityLevel},
				})
			}
		}
	}
	return findings, nil
}

// runGarbageText 垃圾文本检测
func runGarbageText(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	fields, err := nlpTextFields(rc, params)
	if err != nil {
		return nil, err
	}

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		for _, field := range fields {
			text := dataset.AsString(rec.Value(field))
			if text == "" {
				continue
			}
			analysis := rc.NLP.Analyze(rec.Index, field, text)
			if analysis.Garbage {
				findings = append(findings, engine.Finding{
					RecordIndex: rec.Index,
					Field:       field,
					Confidence:  0.9,
					Explanation: fmt.Sprintf("字段 %s 判定为垃圾文本: %s", field, analysis.GarbageReason),
					Details:     models.JSONB{"reason": analysis.GarbageReason, "char_diversity": analysis.CharDiversity},
				})
			}
		}
	}
	return findings, nil
}

// runPlagiarism 跨记录 TF-IDF 余弦相似度检测抄袭
// 相似对做传递闭包聚簇，首次出现的记录为原创，不产出问题
func runPlagiarism(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	threshold, err := params.FloatRange("similarity_threshold", 0.8, 0.5, 1)
	if err != nil {
		return nil, err
	}
	minWords := params.Int("min_words", 5)

	fields, err := nlpTextFields(rc, params)
	if err != nil {
		return nil, err
	}

	var findings []engine.Finding
	for _, field := range fields {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		texts := make([]string, len(rc.Dataset.Records))
		for i, rec := range rc.Dataset.Records {
			text := dataset.AsString(rec.Value(field))
			if len(strings.Fields(text)) < minWords {
				continue
			}
			texts[i] = text
		}

		pairs := nlp.SimilarityMatrix(texts, threshold)
		clusters := nlp.Cluster(pairs, len(texts))

		pairSim := make(map[[2]int]float64, len(pairs))
		for _, p := range pairs {
			pairSim[[2]int{p.IndexA, p.IndexB}] = p.Similarity
		}

		for _, cluster := range clusters {
			canonical := cluster[0]
			for _, idx := range cluster[1:] {
				sim := pairSim[[2]int{canonical, idx}]
				if sim == 0 {
					sim = maxClusterSimilarity(pairSim, cluster, idx)
				}
				findings = append(findings, engine.Finding{
					RecordIndex: idx,
					Field:       field,
					Confidence:  clamp01(sim),
					Explanation: fmt.Sprintf("字段 %s 与记录 %d 相似度 %.2f，判定为抄袭", field, canonical, sim),
					Details: models.JSONB{
						"canonical_index": canonical,
						"similarity":      math.Round(sim*1000) / 1000,
						"cluster_size":    len(cluster),
					},
				})
			}
		}
	}
	return findings, nil
}
