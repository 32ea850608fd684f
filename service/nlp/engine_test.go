/*
 * @module service/nlp/engine_test
 * @description NLP引擎单元测试
 * @architecture 测试层 - 纯函数测试，无外部依赖
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 输入文本 -> 分析 -> 输出验证
 * @rules 置信度不足时必须报告und，禁止静默猜测语言
 * @dependencies testing, testify
 * @refs engine.go, lexicon.go
 */

package nlp

import (
	"testing"

	"surveyqc-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	engine := NewEngine(nil)

	testCases := []struct {
		name     string
		text     string
		expected string
	}{
		{"中文文本", "这个产品的质量非常好，我很满意这次购物体验", "zh"},
		{"英文文本", "The product is very good and the delivery was fast", "en"},
		{"俄文文本", "Продукт очень хороший и доставка быстрая", "ru"},
		{"韩文文本", "제품이 아주 좋고 배송이 빨랐습니다", "ko"},
		{"空文本", "", LanguageUnknown},
		{"纯数字", "12345 67890", LanguageUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			analysis := engine.analyzeText(tc.text)
			assert.Equal(t, tc.expected, analysis.Language)
		})
	}
}

func TestDetectLanguageNeverGuesses(t *testing.T) {
	engine := NewEngine(nil)

	// 混合文种且任一书写系统占比不足下限时，报告und而不是猜测
	analysis := engine.analyzeText("hello 世界 мир abc 123")
	if analysis.Language != LanguageUnknown {
		assert.GreaterOrEqual(t, analysis.LanguageConfidence, engine.confidenceFloor)
	}
}

func TestSentiment(t *testing.T) {
	engine := NewEngine(nil)

	t.Run("正面情感", func(t *testing.T) {
		analysis := engine.analyzeText("great product excellent quality amazing service")
		assert.Equal(t, "positive", analysis.SentimentLabel)
		assert.Greater(t, analysis.Polarity, 0.0)
	})

	t.Run("负面情感", func(t *testing.T) {
		analysis := engine.analyzeText("terrible product awful quality horrible service")
		assert.Equal(t, "negative", analysis.SentimentLabel)
		assert.Less(t, analysis.Polarity, 0.0)
	})

	t.Run("中性情感", func(t *testing.T) {
		analysis := engine.analyzeText("the package arrived on tuesday")
		assert.Equal(t, "neutral", analysis.SentimentLabel)
		assert.Equal(t, 0.0, analysis.Polarity)
	})
}

func TestDetectGarbage(t *testing.T) {
	engine := NewEngine(nil)

	testCases := []struct {
		name    string
		text    string
		garbage bool
	}{
		{"键盘乱敲", "asdfgh jkl", true},
		{"连续重复字符", "aaaaaaaaaa", true},
		{"短连续重复字符", "aaaaaa", true},
		{"仅标点符号", "!!!???...", true},
		{"正常文本", "I enjoyed using this product every day", false},
		{"三连重复不判垃圾", "aaa well done overall", false},
		{"空文本", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			analysis := engine.analyzeText(tc.text)
			assert.Equal(t, tc.garbage, analysis.Garbage, "reason: %s", analysis.GarbageReason)
		})
	}
}

func TestHasRepeatedRun(t *testing.T) {
	assert.True(t, hasRepeatedRun("aaaaaa", 4))
	assert.True(t, hasRepeatedRun("so goooood", 4))
	assert.False(t, hasRepeatedRun("aaa bbb", 4))
	assert.False(t, hasRepeatedRun("", 4))
	// 多字节字符按符文计数
	assert.True(t, hasRepeatedRun("哈哈哈哈", 4))
}

func TestExtractEntities(t *testing.T) {
	engine := NewEngine(nil)

	analysis := engine.analyzeText("The product cost $19.99 and the Service team answered at 10:30 AM")
	assert.NotEmpty(t, analysis.Entities["product"])
	assert.NotEmpty(t, analysis.Entities["service"])
	assert.NotEmpty(t, analysis.Entities["price"])
	assert.NotEmpty(t, analysis.Entities["time"])
	assert.NotEmpty(t, analysis.Entities["brand_candidate"])
}

func TestAnalyzeCaching(t *testing.T) {
	engine := NewEngine(nil)

	first := engine.Analyze(0, "comment", "good product")
	second := engine.Analyze(0, "comment", "different text ignored")

	// 同一记录+字段只计算一次，后续调用返回缓存结果
	assert.Same(t, first, second)
}

func TestEngineFromModelVersion(t *testing.T) {
	version := &models.ModelVersion{
		ID:     "nlp-v2",
		Family: models.ModelFamilyNLP,
		Artifact: models.JSONB{
			"positive_words":   []interface{}{"wunderbar"},
			"confidence_floor": 0.5,
		},
	}

	engine := NewEngine(version)
	require.Equal(t, "nlp-v2", engine.VersionID())

	analysis := engine.analyzeText("wunderbar wunderbar wunderbar")
	assert.Equal(t, "positive", analysis.SentimentLabel)
}

func TestReadability(t *testing.T) {
	engine := NewEngine(nil)

	simple := engine.analyzeText("I like it. It is good. We use it.")
	complex := engine.analyzeText("Notwithstanding considerable organizational impediments, interdepartmental collaboration methodologies demonstrated extraordinarily sophisticated characteristics")

	assert.Less(t, simple.ReadabilityScore, complex.ReadabilityScore)
}
