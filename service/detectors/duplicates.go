/*
 * @module service/detectors/duplicates
 * @description 重复检测：标识字段精确重复与响应向量近似重复
 * @architecture 业务服务层 - 统计检测项
 * @documentReference ai_docs/survey_quality_req.md
 * @rules 重复簇以首次出现（最小序号）记录为规范记录，不产出问题；
 *        其余成员各产出一条指向规范记录的问题
 * @refs service/nlp/similarity.go
 */

package detectors

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/engine"
	"surveyqc-service/service/models"
	"surveyqc-service/service/nlp"
)

func init() {
	register(&builtinCheck{
		id:          "exact_duplicates",
		category:    models.CheckCategoryDuplicate,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityHigh,
		description: "标识字段取值完全相同的重复提交",
		run:         runExactDuplicates,
	})
	register(&builtinCheck{
		id:          "near_duplicates",
		category:    models.CheckCategoryDuplicate,
		kind:        models.CheckKindDeterministic,
		severity:    models.SeverityMedium,
		description: "非标识字段响应向量高度相似的近似重复",
		run:         runNearDuplicates,
	})
}

// runExactDuplicates 按标识字段取值分组，每组最小序号为规范记录
func runExactDuplicates(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	fields := params.StringSlice("identifier_fields")
	if len(fields) == 0 {
		fields = rc.Dataset.Schema.IdentifierFields()
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: 数据集没有标识字段", engine.ErrMisconfigured)
	}
	sort.Strings(fields)

	groups := make(map[string][]int)
	for _, rec := range rc.Dataset.Records {
		if cancelled(ctx) {
			return nil, ctx.Err()
		}
		parts := make([]string, 0, len(fields))
		empty := true
		for _, f := range fields {
			v := dataset.AsString(rec.Value(f))
			if v != "" {
				empty = false
			}
			parts = append(parts, strings.ToLower(strings.TrimSpace(v)))
		}
		if empty {
			continue
		}
		key := strings.Join(parts, "\x1f")
		groups[key] = append(groups[key], rec.Index)
	}

	var findings []engine.Finding
	for _, indices := range groups {
		if len(indices) < 2 {
			continue
		}
		sort.Ints(indices)
		canonical := indices[0]
		for _, idx := range indices[1:] {
			findings = append(findings, engine.Finding{
				RecordIndex: idx,
				Field:       strings.Join(fields, ","),
				Confidence:  1.0,
				Explanation: fmt.Sprintf("标识字段与记录 %d 完全重复", canonical),
				Details: models.JSONB{
					"canonical_index": canonical,
					"cluster_size":    len(indices),
					"fields":          fields,
				},
			})
		}
	}
	return findings, nil
}

// runNearDuplicates 非标识字段构成响应向量，余弦相似度超阈值判为近似重复
// 相似对做传递闭包聚簇，规范记录同样取簇内最小序号
func runNearDuplicates(ctx context.Context, rc *engine.RunContext, params engine.Params) ([]engine.Finding, error) {
	threshold, err := params.FloatRange("similarity_threshold", 0.95, 0.5, 1)
	if err != nil {
		return nil, err
	}

	schema := rc.Dataset.Schema
	var fields []string
	for _, f := range schema.FieldNames() {
		if schema.Fields[f] != dataset.FieldIdentifier {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: 没有可比较的非标识字段", engine.ErrMisconfigured)
	}

	// 响应向量序列化为文本，复用 TF-IDF 相似度
	texts := make([]string, len(rc.Dataset.Records))
	for i, rec := range rc.Dataset.Records {
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, dataset.AsString(rec.Value(f)))
		}
		texts[i] = strings.Join(parts, " ")
	}
	if cancelled(ctx) {
		return nil, ctx.Err()
	}

	pairs := nlp.SimilarityMatrix(texts, threshold)
	clusters := nlp.Cluster(pairs, len(texts))

	pairSim := make(map[[2]int]float64, len(pairs))
	for _, p := range pairs {
		pairSim[[2]int{p.IndexA, p.IndexB}] = p.Similarity
	}

	var findings []engine.Finding
	for _, cluster := range clusters {
		canonical := cluster[0]
		for _, idx := range cluster[1:] {
			sim := pairSim[[2]int{canonical, idx}]
			if sim == 0 {
				// 传递闭包成员，取与簇内任意成员的最大相似度
				sim = maxClusterSimilarity(pairSim, cluster, idx)
			}
			findings = append(findings, engine.Finding{
				RecordIndex: idx,
				Confidence:  clamp01(sim),
				Explanation: fmt.Sprintf("响应向量与记录 %d 相似度 %.2f，判定为近似重复", canonical, sim),
				Details: models.JSONB{
					"canonical_index": canonical,
					"similarity":      math.Round(sim*1000) / 1000,
					"cluster_size":    len(cluster),
				},
			})
		}
	}
	return findings, nil
}

func maxClusterSimilarity(pairSim map[[2]int]float64, cluster []int, idx int) float64 {
	best := 0.0
	for _, other := range cluster {
		if other == idx {
			continue
		}
		a, b := other, idx
		if a > b {
			a, b = b, a
		}
		if s := pairSim[[2]int{a, b}]; s > best {
			best = s
		}
	}
	return best
}
