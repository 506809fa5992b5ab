package query

import (
	"sort"
	"strings"
	"unicode"
)

const (
	// minQuotedLen 引号短语的最小长度
	minQuotedLen = 6
	// minColonTailLen 冒号后短语的最小长度
	minColonTailLen = 8
	// maxPartialTerms 部分匹配最多使用的词数
	maxPartialTerms = 10
)

// 成对引号：开引号到对应闭引号
var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'“':  '”',
	'‘':  '’',
}

// ExtractLexicalCandidate 从问题中提取精确匹配候选短语
// 优先取最长的引号内容，其次取末尾冒号之后的文本
func ExtractLexicalCandidate(question string) (string, bool) {
	if phrase := longestQuotedRun(question); len([]rune(phrase)) >= minQuotedLen {
		return phrase, true
	}
	if phrase := textAfterFinalColon(question); len([]rune(phrase)) >= minColonTailLen {
		return phrase, true
	}
	return "", false
}

// longestQuotedRun 返回最长的成对引号内容
func longestQuotedRun(s string) string {
	runes := []rune(s)
	best := ""
	for i := 0; i < len(runes); i++ {
		closer, ok := quotePairs[runes[i]]
		if !ok {
			continue
		}
		for j := i + 1; j < len(runes); j++ {
			if runes[j] != closer {
				continue
			}
			candidate := strings.TrimSpace(string(runes[i+1 : j]))
			if len([]rune(candidate)) > len([]rune(best)) {
				best = candidate
			}
			i = j
			break
		}
	}
	return best
}

// textAfterFinalColon 返回最后一个冒号之后的文本
func textAfterFinalColon(s string) string {
	idx := -1
	for i, r := range s {
		if r == ':' || r == '：' {
			idx = i
		}
	}
	if idx < 0 {
		return ""
	}
	tail := s[idx:]
	// 跳过冒号本身（可能是多字节的全角冒号）
	for _, r := range tail {
		tail = tail[len(string(r)):]
		break
	}
	return strings.TrimSpace(tail)
}

// tokenizeTerms 将短语拆成检索词：去重、长词优先、最多 maxPartialTerms 个
func tokenizeTerms(phrase string) []string {
	fields := strings.FieldsFunc(phrase, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	var terms []string
	for _, field := range fields {
		term := strings.ToLower(field)
		if len([]rune(term)) < 2 || seen[term] {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
	}

	sort.SliceStable(terms, func(i, j int) bool {
		return len(terms[i]) > len(terms[j])
	})
	if len(terms) > maxPartialTerms {
		terms = terms[:maxPartialTerms]
	}
	return terms
}
