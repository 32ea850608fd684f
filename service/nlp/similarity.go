/*
 * @module service/nlp/similarity
 * @description 文本相似度计算：TF-IDF向量、余弦相似度和近重复聚类
 * @architecture 业务服务层
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 文本向量化 -> 两两余弦比较 -> 传递闭包聚类 -> 首见记录为规范记录
 * @rules 聚类结果与输入遍历顺序无关，规范记录恒为簇内最小原始序号
 * @dependencies math, sort, strings
 * @refs service/detectors/nlpchecks.go, service/detectors/duplicates.go
 */

package nlp

import (
	"math"
	"sort"
	"strings"
)

// SimilarPair 相似度超过阈值的文本对
type SimilarPair struct {
	IndexA     int     `json:"index_a"`
	IndexB     int     `json:"index_b"`
	Similarity float64 `json:"similarity"`
}

// SimilarityMatrix 对文本集合做TF-IDF向量化并返回相似度达到阈值的文本对
// 输入序号即原始记录序号，空文本不参与比较
func SimilarityMatrix(texts []string, threshold float64) []SimilarPair {
	vectors := tfidfVectors(texts)

	var pairs []SimilarPair
	for i := 0; i < len(texts); i++ {
		if vectors[i] == nil {
			continue
		}
		for j := i + 1; j < len(texts); j++ {
			if vectors[j] == nil {
				continue
			}
			sim := cosine(vectors[i], vectors[j])
			if sim >= threshold {
				pairs = append(pairs, SimilarPair{IndexA: i, IndexB: j, Similarity: sim})
			}
		}
	}
	return pairs
}

// Cluster 对相似文本对做传递闭包，返回规模大于1的簇
// 每个簇按原始序号升序排列，首元素即规范记录；结果按规范记录序号排序
func Cluster(pairs []SimilarPair, total int) [][]int {
	parent := make([]int, total)
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		// 恒以较小序号为根，保证规范记录与执行顺序无关
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	for _, p := range pairs {
		union(p.IndexA, p.IndexB)
	}

	groups := make(map[int][]int)
	for i := 0; i < total; i++ {
		root := find(i)
		groups[root] = append(groups[root], i)
	}

	var clusters [][]int
	for _, members := range groups {
		if len(members) > 1 {
			sort.Ints(members)
			clusters = append(clusters, members)
		}
	}
	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i][0] < clusters[j][0]
	})
	return clusters
}

// tfidfVectors 计算TF-IDF向量，空文本返回nil向量
func tfidfVectors(texts []string) []map[string]float64 {
	docs := make([][]string, len(texts))
	docFreq := make(map[string]int)
	for i, text := range texts {
		tokens := tokenize(text)
		docs[i] = tokens
		seen := make(map[string]bool)
		for _, tok := range tokens {
			if !seen[tok] {
				seen[tok] = true
				docFreq[tok]++
			}
		}
	}

	n := float64(len(texts))
	vectors := make([]map[string]float64, len(texts))
	for i, tokens := range docs {
		if len(tokens) == 0 {
			continue
		}
		tf := make(map[string]float64)
		for _, tok := range tokens {
			tf[tok]++
		}
		vec := make(map[string]float64, len(tf))
		for tok, count := range tf {
			idf := math.Log((n+1)/(float64(docFreq[tok])+1)) + 1
			vec[tok] = (count / float64(len(tokens))) * idf
		}
		vectors[i] = vec
	}
	return vectors
}

func tokenize(text string) []string {
	var tokens []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:'\"()[]")
		if w != "" {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

func cosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for tok, va := range a {
		normA += va * va
		if vb, ok := b[tok]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
