/*
 * @module service/mldetect/features
 * @description 特征工程：从调查记录提取文本、时间和网络特征向量
 * @architecture 业务服务层 - ML检测器共享的特征提取
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 记录 -> 特征向量 -> 分类器/异常模型评分
 * @rules 特征顺序固定，特征向量是记录的纯函数
 * @dependencies math, strings, surveyqc-service/service/dataset
 * @refs service/mldetect/logistic.go, service/mldetect/anomaly.go
 */

package mldetect

import (
	"math"
	"strings"
	"unicode"

	"surveyqc-service/service/dataset"
)

// 特征向量维度，顺序固定
const (
	FeatAvgTextLength = iota
	FeatAvgWordCount
	FeatCharDiversity
	FeatSpecialCharRatio
	FeatCapsRatio
	FeatDigitRatio
	FeatTokenEntropy
	FeatRepetitionRatio
	FeatTimingMean
	FeatTimingStddev
	FeatIPFrequency
	NumFeatures
)

// FeatureExtractor 特征提取器
type FeatureExtractor struct {
	TextFields []string
	IPField    string
}

// NewFeatureExtractor 基于模式构建特征提取器
// 文本特征取全部文本字段，网络特征取首个标识字段中形如IP的值
func NewFeatureExtractor(schema *dataset.Schema, ipField string) *FeatureExtractor {
	return &FeatureExtractor{
		TextFields: schema.TextFields(),
		IPField:    ipField,
	}
}

// IPCounts 统计数据集内各IP出现次数，供网络特征使用
func (fe *FeatureExtractor) IPCounts(ds *dataset.Dataset) map[string]int {
	counts := make(map[string]int)
	if fe.IPField == "" {
		return counts
	}
	for _, rec := range ds.Records {
		ip := dataset.AsString(rec.Value(fe.IPField))
		if ip != "" {
			counts[ip]++
		}
	}
	return counts
}

// Vector 提取单条记录的特征向量
func (fe *FeatureExtractor) Vector(ds *dataset.Dataset, rec *dataset.Record, ipCounts map[string]int) []float64 {
	features := make([]float64, NumFeatures)

	// 文本特征：各文本字段的均值
	var totalLength, totalWords, diversity, special, caps, digits, entropy, repetition float64
	textCount := 0
	for _, field := range fe.TextFields {
		text := dataset.AsString(rec.Value(field))
		if text == "" {
			continue
		}
		textCount++
		totalLength += float64(len(text))
		words := strings.Fields(text)
		totalWords += float64(len(words))
		diversity += charDiversity(text)
		special += charClassRatio(text, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
		})
		caps += charClassRatio(text, unicode.IsUpper)
		digits += charClassRatio(text, unicode.IsDigit)
		entropy += tokenEntropy(words)
		repetition += repetitionRatio(words)
	}
	if textCount > 0 {
		n := float64(textCount)
		features[FeatAvgTextLength] = totalLength / n
		features[FeatAvgWordCount] = totalWords / n
		features[FeatCharDiversity] = diversity / n
		features[FeatSpecialCharRatio] = special / n
		features[FeatCapsRatio] = caps / n
		features[FeatDigitRatio] = digits / n
		features[FeatTokenEntropy] = entropy / n
		features[FeatRepetitionRatio] = repetition / n
	}

	// 时间特征：逐题时间间隔的均值和标准差
	timestamps := rec.Timestamps(ds.Schema)
	if len(timestamps) > 1 {
		var gaps []float64
		for i := 1; i < len(timestamps); i++ {
			gaps = append(gaps, timestamps[i].Sub(timestamps[i-1]).Seconds())
		}
		features[FeatTimingMean] = mean(gaps)
		features[FeatTimingStddev] = stddev(gaps)
	}

	// 网络特征：同IP出现频率
	if fe.IPField != "" && ds.Len() > 0 {
		ip := dataset.AsString(rec.Value(fe.IPField))
		features[FeatIPFrequency] = float64(ipCounts[ip]) / float64(ds.Len())
	}

	return features
}

// tokenEntropy 词分布香农熵
func tokenEntropy(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	counts := make(map[string]float64)
	for _, w := range words {
		counts[strings.ToLower(w)]++
	}
	entropy := 0.0
	n := float64(len(words))
	for _, c := range counts {
		p := c / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// repetitionRatio 重复词占比
func repetitionRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]bool)
	unique := 0
	for _, w := range words {
		w = strings.ToLower(w)
		if !seen[w] {
			seen[w] = true
			unique++
		}
	}
	return 1 - float64(unique)/float64(len(words))
}

func charDiversity(text string) float64 {
	if len(text) == 0 {
		return 0
	}
	seen := make(map[rune]bool)
	total := 0
	for _, r := range text {
		seen[r] = true
		total++
	}
	return float64(len(seen)) / float64(total)
}

func charClassRatio(text string, class func(rune) bool) float64 {
	if len(text) == 0 {
		return 0
	}
	hits, total := 0, 0
	for _, r := range text {
		total++
		if class(r) {
			hits++
		}
	}
	return float64(hits) / float64(total)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)))
}
