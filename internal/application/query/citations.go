package query

import "strings"

// maxQuoteLen 引文最大长度（按字符）
const maxQuoteLen = 280

// Citation 回答引用的证据
type Citation struct {
	ChunkID string `json:"chunkId"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Quote   string `json:"quote"`
}

// quoteFromChunk 从片段文本提取确定性的引文：前两句，超长截断
func quoteFromChunk(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	quote := firstSentences(trimmed, 2)
	runes := []rune(quote)
	if len(runes) > maxQuoteLen {
		quote = string(runes[:maxQuoteLen]) + "..."
	}
	return quote
}

// firstSentences 取文本开头的 n 句
func firstSentences(text string, n int) string {
	runes := []rune(text)
	count := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// 连续标点算一个句末
		for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
			i++
		}
		count++
		if count >= n {
			return strings.TrimSpace(string(runes[:i+1]))
		}
	}
	return text
}

// fallbackCitation 没有有效模型引用时，从第一个上下文构造引用
func fallbackCitation(c *contextChunk) Citation {
	return Citation{
		ChunkID: c.chunkID,
		Title:   c.title,
		URL:     c.url,
		Quote:   quoteFromChunk(c.text),
	}
}
