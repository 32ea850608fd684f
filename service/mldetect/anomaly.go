/*
 * @module service/mldetect/anomaly
 * @description 隔离森林异常检测器，对数值+派生特征空间做隔离式评分
 * @architecture 业务服务层 - 模型实现
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 数据集特征矩阵 -> 固定种子建树 -> 路径长度评分 -> 百分位截断
 * @rules 样本量低于最小折数时拒绝评分返回数据不足，固定种子下结果确定
 * @dependencies math, math/rand, github.com/spf13/cast
 * @refs service/detectors/mlchecks.go
 */

package mldetect

import (
	"errors"
	"math"
	"math/rand"

	"surveyqc-service/service/models"

	"github.com/spf13/cast"
)

// ErrInsufficientSamples 样本量不足，检测器拒绝给出分数
var ErrInsufficientSamples = errors.New("样本量低于最小折数，拒绝评分")

// IsolationForest 隔离森林
type IsolationForest struct {
	NumTrees    int
	SampleSize  int
	MinFoldSize int
	Seed        int64

	trees []*isoNode
	size  int
}

type isoNode struct {
	feature   int
	threshold float64
	left      *isoNode
	right     *isoNode
	count     int
}

// DefaultAnomalyArtifact 初始异常模型制品
func DefaultAnomalyArtifact() models.JSONB {
	return models.JSONB{
		"num_trees":     100,
		"sample_size":   64,
		"min_fold_size": 10,
		"seed":          42,
	}
}

// AnomalyFromArtifact 从模型版本制品恢复
func AnomalyFromArtifact(artifact models.JSONB) *IsolationForest {
	forest := &IsolationForest{
		NumTrees:    cast.ToInt(artifact["num_trees"]),
		SampleSize:  cast.ToInt(artifact["sample_size"]),
		MinFoldSize: cast.ToInt(artifact["min_fold_size"]),
		Seed:        cast.ToInt64(artifact["seed"]),
	}
	if forest.NumTrees <= 0 {
		forest.NumTrees = 100
	}
	if forest.SampleSize <= 0 {
		forest.SampleSize = 64
	}
	if forest.MinFoldSize <= 0 {
		forest.MinFoldSize = 10
	}
	if forest.Seed == 0 {
		forest.Seed = 42
	}
	return forest
}

// CalibratedScoreFloor 取制品校准中的训练分数均值作为异常分数下限
// 未经适应的版本没有校准，返回回退值
func CalibratedScoreFloor(artifact models.JSONB, fallback float64) float64 {
	cal, err := cast.ToStringMapE(artifact["calibration"])
	if err != nil {
		return fallback
	}
	if v := cast.ToFloat64(cal["score_mean"]); v > 0 {
		return v
	}
	return fallback
}

// Artifact 导出模型参数，供注册表持久化
func (f *IsolationForest) Artifact() models.JSONB {
	return models.JSONB{
		"num_trees":     f.NumTrees,
		"sample_size":   f.SampleSize,
		"min_fold_size": f.MinFoldSize,
		"seed":          f.Seed,
	}
}

// Fit 在特征矩阵上建树，固定种子保证确定性
// 样本量低于最小折数时返回 ErrInsufficientSamples
func (f *IsolationForest) Fit(matrix [][]float64) error {
	if len(matrix) < f.MinFoldSize {
		return ErrInsufficientSamples
	}

	rng := rand.New(rand.NewSource(f.Seed))
	f.size = len(matrix)
	f.trees = make([]*isoNode, 0, f.NumTrees)

	sampleSize := f.SampleSize
	if sampleSize > len(matrix) {
		sampleSize = len(matrix)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize)))) + 1

	for t := 0; t < f.NumTrees; t++ {
		sample := make([][]float64, sampleSize)
		for i := range sample {
			sample[i] = matrix[rng.Intn(len(matrix))]
		}
		f.trees = append(f.trees, buildIsoTree(sample, 0, maxDepth, rng))
	}
	return nil
}

// Score 异常分数 [0,1]，越接近1越异常
func (f *IsolationForest) Score(features []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	totalPath := 0.0
	for _, tree := range f.trees {
		totalPath += pathLength(tree, features, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	sampleSize := f.SampleSize
	if sampleSize > f.size {
		sampleSize = f.size
	}
	c := averagePathLength(sampleSize)
	if c == 0 {
		return 0
	}
	return math.Pow(2, -avgPath/c)
}

func buildIsoTree(sample [][]float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if len(sample) <= 1 || depth >= maxDepth {
		return &isoNode{feature: -1, count: len(sample)}
	}

	dims := len(sample[0])
	feature := rng.Intn(dims)

	min, max := sample[0][feature], sample[0][feature]
	for _, row := range sample {
		if row[feature] < min {
			min = row[feature]
		}
		if row[feature] > max {
			max = row[feature]
		}
	}
	if min == max {
		return &isoNode{feature: -1, count: len(sample)}
	}

	threshold := min + rng.Float64()*(max-min)
	var left, right [][]float64
	for _, row := range sample {
		if row[feature] < threshold {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &isoNode{
		feature:   feature,
		threshold: threshold,
		left:      buildIsoTree(left, depth+1, maxDepth, rng),
		right:     buildIsoTree(right, depth+1, maxDepth, rng),
	}
}

func pathLength(node *isoNode, features []float64, depth float64) float64 {
	if node.feature < 0 {
		return depth + averagePathLength(node.count)
	}
	value := 0.0
	if node.feature < len(features) {
		value = features[node.feature]
	}
	if value < node.threshold {
		return pathLength(node.left, features, depth+1)
	}
	return pathLength(node.right, features, depth+1)
}

// averagePathLength 二叉搜索失败路径的平均长度 c(n)
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}
