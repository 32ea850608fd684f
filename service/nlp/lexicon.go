/*
 * @module service/nlp/lexicon
 * @description NLP引擎默认词表：情感词、脏话词、停用词和实体模式
 * @architecture 业务服务层 - NLP引擎的数据部分
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 引擎构建时加载默认词表 -> 模型版本制品可覆盖
 * @rules 词表属于固定的NLP模型版本，运行期间不可变
 * @dependencies regexp
 * @refs service/nlp/engine.go
 */

package nlp

import "regexp"

// 默认情感词表
var defaultPositiveWords = []string{
	"good", "great", "excellent", "amazing", "wonderful", "fantastic", "love",
	"best", "happy", "satisfied", "helpful", "friendly", "easy", "fast",
	"reliable", "awesome", "perfect", "nice", "enjoy", "pleased", "smooth",
	"convenient", "recommend", "quality", "clean", "clear", "useful",
}

var defaultNegativeWords = []string{
	"bad", "terrible", "awful", "horrible", "worst", "hate", "poor",
	"disappointed", "slow", "broken", "useless", "difficult", "confusing",
	"expensive", "rude", "dirty", "annoying", "frustrating", "waste",
	"problem", "issue", "complaint", "never", "unreliable", "wrong", "fail",
}

// 默认脏话/垃圾词表
var defaultProfanityWords = []string{
	"damn", "hell", "crap", "shit", "fuck", "bitch", "bastard", "asshole",
}

// 拉丁语系停用词轮廓，用于语言识别
var languageStopwords = map[string][]string{
	"en": {"the", "and", "is", "in", "to", "of", "it", "that", "was", "for", "with", "this", "are", "not", "have"},
	"es": {"el", "la", "los", "las", "de", "que", "y", "en", "un", "una", "es", "por", "con", "para", "no"},
	"fr": {"le", "la", "les", "de", "et", "est", "en", "un", "une", "que", "pour", "dans", "ce", "pas", "sur"},
	"de": {"der", "die", "das", "und", "ist", "in", "den", "von", "zu", "mit", "nicht", "ein", "eine", "auf", "für"},
}

// 实体抽取模式
var defaultEntityPatterns = map[string]*regexp.Regexp{
	"product": regexp.MustCompile(`(?i)\b(product|item|goods|merchandise)\b`),
	"service": regexp.MustCompile(`(?i)\b(service|support|assistance|help)\b`),
	"price":   regexp.MustCompile(`\$\d+(?:\.\d{2})?|\d+(?:\.\d{2})?\s*(?:dollars|USD)`),
	"date":    regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b`),
	"time":    regexp.MustCompile(`\b\d{1,2}:\d{2}\s*(?:AM|PM|am|pm)?\b`),
}

// 品牌候选：连续大写开头词
var brandCandidatePattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*\b`)

// 垃圾文本模式
var (
	keyboardMashPattern    = regexp.MustCompile(`(?i)(qwerty|asdfgh|zxcvbn|qazwsx|sdfsdf|asdasd)`)
	consonantRunPattern    = regexp.MustCompile(`(?i)[bcdfghjklmnpqrstvwxz]{6,}`)
	punctuationOnlyPattern = regexp.MustCompile(`^[\s\p{P}\p{S}]+$`)
)

// repeatedRunThreshold 同字符连续重复达到该长度即判定垃圾文本
const repeatedRunThreshold = 4

// hasRepeatedRun 是否存在长度达到 n 的同字符连续重复
func hasRepeatedRun(text string, n int) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run >= n {
			return true
		}
	}
	return false
}
