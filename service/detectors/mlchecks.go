/*
 * @module service/detectors/mlchecks
 * @description 模型检测：机器人集成分类、孤立森林异常检测、序列满意化检测
 * @architecture 业务服务层 - 模型检测项
 * @documentReference ai_docs/survey_quality_req.md
 * @rules 推理只使用运行固定的模型版本，检测期间发布新版本不影响本次运行
 * @refs service/mldetect
 */

package detectors

import (
	"context"
	"errors"
	"fmt"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/engine"
	"surveyqc-service/service/mldetect"
	"surveyqc-service/service/models"
)

func init() {
	register(&builtinCheck{
		id:          "bot_detection",
		category:    models.CheckCategoryBehavioral,
		kind:        models.CheckKindModelBacked,
		severity:    models.SeverityCritical,
		description: "特征工程 + 加权投票集成的机器人作答识别",
		run:         runBotDetection,
	})
	register(&builtinCheck{
		id:          "anomaly_detection",
		category:    models.CheckCategoryBehavioral,
		kind:        models.CheckKindModelBacked,
		severity:    models.SeverityMedium,
		description: "孤立森林多维特征异常记录识别",
		run:         runAnomalyDetection,
	})
	register(&builtinCheck{
		id:          "pattern_detection",
		category:    models.CheckCategoryPattern,
		kind:        models.CheckKindModelBacked,
		severity:    models.SeverityMedium,
		description: "量表序列转移模型识别满意化作答",
		run:         runPatternDetection,
	})
}

// numericVector 记录的量表数值向量，字段按模式排序保证确定性
func numericVector(rc *engine.RunContext, rec *dataset.Record) []float64 {
	var values []float64
	for _, f := range rc.Dataset.Schema.NumericFields() {
		if v, ok := dataset.AsFloat(rec.Value(f)); ok {
			values = append(values, v)
		}
	}
	return values
}

// runBotDetection 逻辑回归 + 树桩森林 + 序列模型的加权投票，问题说明包含各成员贡献
func runBotDetection(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	threshold, err := params.FloatRange("probability_threshold", 0.7, 0.5, 1)
	if err != nil {
		return nil, err
	}
	logisticWeight := params.Float("logistic_weight", 0.5)
	forestWeight := params.Float("forest_weight", 0.3)
	sequenceWeight := params.Float("sequence_weight", 0.2)

	version, err := rc.ModelFor(models.ModelFamilyBotClassifier)
	if err != nil {
		return nil, err
	}
	logistic, err := mldetect.LogisticFromArtifact(version.Artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: 机器人分类器模型加载失败: %v", engine.ErrMisconfigured, err)
	}
	forest, err := mldetect.ForestFromArtifact(version.Artifact)
	if err != nil {
		// 旧制品不含树桩时退回初始森林
		forest = mldetect.DefaultStumpForest()
	}
	sequence := mldetect.DefaultSequenceModel()
	if v, err := rc.ModelFor(models.ModelFamilyPattern); err == nil {
		if m, serr := mldetect.SequenceFromArtifact(v.Artifact); serr == nil {
			sequence = m
		}
	}

	ipField := params.String("ip_field", "")
	extractor := mldetect.NewFeatureExtractor(rc.Dataset.Schema, ipField)
	ipCounts := extractor.IPCounts(rc.Dataset)

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		features := extractor.Vector(rc.Dataset, rec, ipCounts)
		seqScore := 0.0
		if seq := numericVector(rc, rec); len(seq) >= 3 {
			seqScore = sequence.Score(seq)
		}

		result := mldetect.Combine([]mldetect.MemberScore{
			{Name: "logistic", Weight: logisticWeight, Score: logistic.Score(features)},
			{Name: "stump_forest", Weight: forestWeight, Score: forest.Score(features)},
			{Name: "sequence", Weight: sequenceWeight, Score: seqScore},
		})
		if result.Score >= threshold {
			findings = append(findings, engine.Finding{
				RecordIndex: rec.Index,
				Confidence:  clamp01(result.Score),
				Explanation: fmt.Sprintf("机器人概率 %.2f 超过阈值 %.2f，成员贡献: %s", result.Score, threshold, result.Explain()),
				Details: models.JSONB{
					"probability":   result.Score,
					"threshold":     threshold,
					"members":       result.Members,
					"model_version": version.VersionNumber,
				},
			})
		}
	}
	return findings, nil
}

// runAnomalyDetection 孤立森林异常分数超过数据集分位数截断即产出问题
// 样本数低于模型 min_fold_size 时整体报告 insufficient_data
func runAnomalyDetection(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	cutoffPercentile, err := params.FloatRange("cutoff_percentile", 90, 50, 99.9)
	if err != nil {
		return nil, err
	}

	version, err := rc.ModelFor(models.ModelFamilyAnomaly)
	if err != nil {
		return nil, err
	}
	forest := mldetect.AnomalyFromArtifact(version.Artifact)
	// 分数下限默认取版本校准的训练分数均值，未校准的版本用 0.5
	minScore, err := params.FloatRange("min_score", mldetect.CalibratedScoreFloor(version.Artifact, 0.5), 0, 1)
	if err != nil {
		return nil, err
	}

	extractor := mldetect.NewFeatureExtractor(rc.Dataset.Schema, params.String("ip_field", ""))
	ipCounts := extractor.IPCounts(rc.Dataset)

	matrix := make([][]float64, 0, rc.Dataset.Len())
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		matrix = append(matrix, extractor.Vector(rc.Dataset, rec, ipCounts))
	}

	if err := forest.Fit(matrix); err != nil {
		if errors.Is(err, mldetect.ErrInsufficientSamples) {
			return nil, fmt.Errorf("%w: %v", engine.ErrInsufficientData, err)
		}
		return nil, err
	}

	scores := make([]float64, len(matrix))
	for i, features := range matrix {
		scores[i] = forest.Score(features)
	}
	cutoff := percentileNearestRank(scores, cutoffPercentile)

	var findings []engine.Finding
	for i, rec := range rc.Dataset.Records {
		if scores[i] >= cutoff && scores[i] >= minScore {
			findings = append(findings, engine.Finding{
				RecordIndex: rec.Index,
				Confidence:  clamp01(scores[i]),
				Explanation: fmt.Sprintf("异常分数 %.3f 超过 P%.0f 截断值 %.3f", scores[i], cutoffPercentile, cutoff),
				Details: models.JSONB{
					"anomaly_score": scores[i],
					"cutoff":        cutoff,
					"model_version": version.VersionNumber,
					"seed":          version.Seed,
				},
			})
		}
	}
	return findings, nil
}

// runPatternDetection 序列转移模型识别满意化作答，推理无状态
func runPatternDetection(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	threshold, err := params.FloatRange("score_threshold", 0.75, 0.5, 1)
	if err != nil {
		return nil, err
	}
	minItems := params.Int("min_items", 5)

	version, err := rc.ModelFor(models.ModelFamilyPattern)
	if err != nil {
		return nil, err
	}
	model, err := mldetect.SequenceFromArtifact(version.Artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: 序列模型加载失败: %v", engine.ErrMisconfigured, err)
	}

	var findings []engine.Finding
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		seq := numericVector(rc, rec)
		if len(seq) < minItems {
			continue
		}
		score := model.Score(seq)
		if score >= threshold {
			findings = append(findings, engine.Finding{
				RecordIndex: rec.Index,
				Confidence:  clamp01(score),
				Explanation: fmt.Sprintf("量表序列模式分数 %.2f 超过阈值 %.2f，判定为满意化作答", score, threshold),
				Details:     models.JSONB{"score": score, "items": len(seq), "model_version": version.VersionNumber},
			})
		}
	}
	return findings, nil
}
