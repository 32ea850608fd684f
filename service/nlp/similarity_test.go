/*
 * @module service/nlp/similarity_test
 * @description 文本相似度与聚类单元测试
 * @architecture 测试层 - 纯函数测试，无外部依赖
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 文本集合 -> 相似度矩阵 -> 聚类 -> 规范记录验证
 * @rules 规范记录恒为簇内最小原始序号，聚类结果与输入顺序无关
 * @dependencies testing, testify
 * @refs similarity.go
 */

package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarityMatrix(t *testing.T) {
	texts := []string{
		"the delivery was fast and the product arrived in perfect condition",
		"completely unrelated answer about customer support experience",
		"the delivery was fast and the product arrived in perfect condition",
		"",
	}

	pairs := SimilarityMatrix(texts, 0.9)
	require.Len(t, pairs, 1)
	assert.Equal(t, 0, pairs[0].IndexA)
	assert.Equal(t, 2, pairs[0].IndexB)
	assert.InDelta(t, 1.0, pairs[0].Similarity, 1e-9)
}

func TestSimilarityMatrixSkipsEmptyTexts(t *testing.T) {
	pairs := SimilarityMatrix([]string{"", "", ""}, 0.1)
	assert.Empty(t, pairs)
}

func TestCluster(t *testing.T) {
	t.Run("首见记录为规范记录", func(t *testing.T) {
		pairs := []SimilarPair{
			{IndexA: 47, IndexB: 81, Similarity: 0.97},
			{IndexA: 3, IndexB: 47, Similarity: 0.96},
		}

		clusters := Cluster(pairs, 100)
		require.Len(t, clusters, 1)
		assert.Equal(t, []int{3, 47, 81}, clusters[0])
	})

	t.Run("多个独立簇按规范记录排序", func(t *testing.T) {
		pairs := []SimilarPair{
			{IndexA: 8, IndexB: 9, Similarity: 0.95},
			{IndexA: 1, IndexB: 5, Similarity: 0.95},
		}

		clusters := Cluster(pairs, 10)
		require.Len(t, clusters, 2)
		assert.Equal(t, []int{1, 5}, clusters[0])
		assert.Equal(t, []int{8, 9}, clusters[1])
	})

	t.Run("输入顺序不影响结果", func(t *testing.T) {
		forward := Cluster([]SimilarPair{
			{IndexA: 2, IndexB: 6},
			{IndexA: 6, IndexB: 4},
		}, 8)
		reversed := Cluster([]SimilarPair{
			{IndexA: 6, IndexB: 4},
			{IndexA: 2, IndexB: 6},
		}, 8)

		assert.Equal(t, forward, reversed)
		require.Len(t, forward, 1)
		assert.Equal(t, []int{2, 4, 6}, forward[0])
	})

	t.Run("无相似对返回空", func(t *testing.T) {
		assert.Empty(t, Cluster(nil, 5))
	})
}
