/*
 * @module service/nlp/engine
 * @description NLP引擎：语言识别、情感分析、实体抽取、可读性评分和垃圾文本检测
 * @architecture 业务服务层 - 检查共享的只读分析服务
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 检查按需请求分析 -> 每记录+字段惰性计算一次 -> 缓存共享只读
 * @rules 所有输出是文本+固定模型版本的纯函数，检查不得改变引擎内部状态
 * @dependencies golang.org/x/text/language, golang.org/x/text/unicode/norm, github.com/spf13/cast
 * @refs service/models/model_registry_models.go, service/detectors/nlpchecks.go
 */

package nlp

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode"

	"surveyqc-service/service/models"

	"github.com/spf13/cast"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// LanguageUnknown 置信度低于下限时报告的语言标签，引擎从不静默猜测
const LanguageUnknown = "und"

// TextAnalysis 单个文本字段的完整分析结果
type TextAnalysis struct {
	Language           string              `json:"language"` // BCP-47 标签，und 表示无法识别
	LanguageConfidence float64             `json:"language_confidence"`
	SentimentLabel     string              `json:"sentiment_label"` // positive, negative, neutral
	Polarity           float64             `json:"polarity"`        // [-1,1]
	Magnitude          float64             `json:"magnitude"`       // [0,1]
	ReadabilityScore   float64             `json:"readability_score"`
	ReadabilityLevel   string              `json:"readability_level"`
	Garbage            bool                `json:"garbage"`
	GarbageReason      string              `json:"garbage_reason,omitempty"`
	Entities           map[string][]string `json:"entities"`
	WordCount          int                 `json:"word_count"`
	CharDiversity      float64             `json:"char_diversity"`
}

// Engine NLP分析引擎
// 词表和阈值来自固定的NLP模型版本，构建后只读
type Engine struct {
	versionID       string
	positiveWords   map[string]bool
	negativeWords   map[string]bool
	profanityWords  map[string]bool
	confidenceFloor float64

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

type cacheEntry struct {
	once     sync.Once
	analysis *TextAnalysis
}

// NewEngine 从固定的NLP模型版本构建引擎，nil 使用默认词表
func NewEngine(version *models.ModelVersion) *Engine {
	e := &Engine{
		positiveWords:   toWordSet(defaultPositiveWords),
		negativeWords:   toWordSet(defaultNegativeWords),
		profanityWords:  toWordSet(defaultProfanityWords),
		confidenceFloor: 0.65,
		cache:           make(map[string]*cacheEntry),
	}
	if version == nil {
		return e
	}

	e.versionID = version.ID
	if words := cast.ToStringSlice(version.Artifact["positive_words"]); len(words) > 0 {
		e.positiveWords = toWordSet(words)
	}
	if words := cast.ToStringSlice(version.Artifact["negative_words"]); len(words) > 0 {
		e.negativeWords = toWordSet(words)
	}
	if words := cast.ToStringSlice(version.Artifact["profanity_words"]); len(words) > 0 {
		e.profanityWords = toWordSet(words)
	}
	if floor := cast.ToFloat64(version.Artifact["confidence_floor"]); floor > 0 {
		e.confidenceFloor = floor
	}
	return e
}

// VersionID 引擎固定的模型版本
func (e *Engine) VersionID() string {
	return e.versionID
}

func toWordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}

// Analyze 分析记录指定字段的文本，每个记录+字段在一次运行内只计算一次
func (e *Engine) Analyze(recordIndex int, field, text string) *TextAnalysis {
	key := fmt.Sprintf("%d|%s", recordIndex, field)

	e.mu.Lock()
	entry, ok := e.cache[key]
	if !ok {
		entry = &cacheEntry{}
		e.cache[key] = entry
	}
	e.mu.Unlock()

	entry.once.Do(func() {
		entry.analysis = e.analyzeText(text)
	})
	return entry.analysis
}

// analyzeText 纯函数分析，不触碰缓存
func (e *Engine) analyzeText(text string) *TextAnalysis {
	text = norm.NFC.String(text)
	words := strings.Fields(text)

	analysis := &TextAnalysis{
		WordCount:     len(words),
		CharDiversity: charDiversity(text),
		Entities:      e.extractEntities(text),
	}

	analysis.Language, analysis.LanguageConfidence = e.detectLanguage(text, words)
	analysis.SentimentLabel, analysis.Polarity, analysis.Magnitude = e.sentiment(words)
	analysis.ReadabilityScore, analysis.ReadabilityLevel = readability(text, words)
	analysis.Garbage, analysis.GarbageReason = e.detectGarbage(text, words, analysis.CharDiversity)
	return analysis
}

// detectLanguage 语言识别
// 非拉丁文种按书写系统占比判断，拉丁文种按停用词轮廓匹配；
// 置信度低于下限时报告 und，从不静默猜测
func (e *Engine) detectLanguage(text string, words []string) (string, float64) {
	if strings.TrimSpace(text) == "" {
		return LanguageUnknown, 0
	}

	letters := 0
	scripts := map[string]int{}
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		switch {
		case unicode.Is(unicode.Han, r):
			scripts["zh"]++
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			scripts["ja"]++
		case unicode.Is(unicode.Hangul, r):
			scripts["ko"]++
		case unicode.Is(unicode.Cyrillic, r):
			scripts["ru"]++
		case unicode.Is(unicode.Arabic, r):
			scripts["ar"]++
		case unicode.Is(unicode.Latin, r):
			scripts["latin"]++
		}
	}
	if letters == 0 {
		return LanguageUnknown, 0
	}

	// 日文假名优先于汉字归类：有假名即判日文
	if scripts["ja"] > 0 && float64(scripts["ja"]+scripts["zh"])/float64(letters) >= e.confidenceFloor {
		tag := language.Japanese.String()
		return tag, float64(scripts["ja"]+scripts["zh"]) / float64(letters)
	}
	for _, candidate := range []struct {
		key string
		tag language.Tag
	}{
		{"zh", language.Chinese},
		{"ko", language.Korean},
		{"ru", language.Russian},
		{"ar", language.Arabic},
	} {
		conf := float64(scripts[candidate.key]) / float64(letters)
		if conf >= e.confidenceFloor {
			return candidate.tag.String(), conf
		}
	}

	// 拉丁文种：停用词轮廓
	if float64(scripts["latin"])/float64(letters) >= e.confidenceFloor {
		best, bestHits := "", 0
		for lang, stopwords := range languageStopwords {
			hits := 0
			set := toWordSet(stopwords)
			for _, w := range words {
				if set[strings.ToLower(strings.Trim(w, ".,!?;:'\""))] {
					hits++
				}
			}
			if hits > bestHits {
				best, bestHits = lang, hits
			}
		}
		if best != "" && len(words) > 0 {
			conf := math.Min(1.0, float64(bestHits)/math.Max(3, float64(len(words))/4))
			if conf >= e.confidenceFloor {
				tag, err := language.Parse(best)
				if err == nil {
					return tag.String(), conf
				}
			}
		}
	}

	return LanguageUnknown, 0
}

// sentiment 词表情感分析，返回标签、极性和强度
func (e *Engine) sentiment(words []string) (string, float64, float64) {
	if len(words) == 0 {
		return "neutral", 0, 0
	}

	pos, neg := 0, 0
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, ".,!?;:'\""))
		if e.positiveWords[w] {
			pos++
		}
		if e.negativeWords[w] {
			neg++
		}
	}

	total := pos + neg
	if total == 0 {
		return "neutral", 0, 0
	}

	polarity := float64(pos-neg) / float64(total)
	magnitude := math.Min(1.0, float64(total)/float64(len(words)))

	label := "neutral"
	if polarity > 0.1 {
		label = "positive"
	} else if polarity < -0.1 {
		label = "negative"
	}
	return label, polarity, magnitude
}

// extractEntities 按模式抽取实体和品牌候选
func (e *Engine) extractEntities(text string) map[string][]string {
	entities := make(map[string][]string)
	for entityType, pattern := range defaultEntityPatterns {
		matches := pattern.FindAllString(text, -1)
		if len(matches) > 0 {
			entities[entityType] = matches
		}
	}
	if brands := brandCandidatePattern.FindAllString(text, -1); len(brands) > 0 {
		entities["brand_candidate"] = brands
	}
	return entities
}

// readability 可读性评分，分数越高越难读
func readability(text string, words []string) (float64, string) {
	if len(words) == 0 {
		return 0, "very_easy"
	}

	sentences := countSentences(text)
	avgSentenceLength := float64(len(words)) / float64(sentences)

	totalWordLength := 0
	for _, w := range words {
		totalWordLength += len(w)
	}
	avgWordLength := float64(totalWordLength) / float64(len(words))

	score := avgSentenceLength*0.39 + avgWordLength*11.8 - 15.59

	level := "very_difficult"
	switch {
	case score < 30:
		level = "very_easy"
	case score < 50:
		level = "easy"
	case score < 70:
		level = "moderate"
	case score < 90:
		level = "difficult"
	}
	return score, level
}

func countSentences(text string) int {
	count := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return count
}

// detectGarbage 垃圾文本检测：脏话、键盘乱敲、重复字符、低字符多样性
func (e *Engine) detectGarbage(text string, words []string, diversity float64) (bool, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false, ""
	}

	for _, w := range words {
		if e.profanityWords[strings.ToLower(strings.Trim(w, ".,!?;:'\""))] {
			return true, "包含脏话词汇"
		}
	}
	if keyboardMashPattern.MatchString(trimmed) {
		return true, "键盘乱敲模式"
	}
	if hasRepeatedRun(trimmed, repeatedRunThreshold) {
		return true, "连续重复字符"
	}
	if consonantRunPattern.MatchString(trimmed) {
		return true, "连续辅音串"
	}
	if punctuationOnlyPattern.MatchString(trimmed) {
		return true, "仅含标点符号"
	}
	if len(trimmed) >= 10 && diversity < 0.2 {
		return true, "字符多样性过低"
	}
	return false, ""
}

// charDiversity 字符多样性：去重字符数 / 总字符数
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
