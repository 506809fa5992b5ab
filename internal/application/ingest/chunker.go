package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// chunkTargetTokens 单个片段的目标 token 上限
	chunkTargetTokens = 800

	// chunkOverlapWords 相邻片段间的重叠词数
	chunkOverlapWords = 120
)

var paragraphSplitter = regexp.MustCompile(`\n\s*\n`)

// ChunkPiece 切分产物
type ChunkPiece struct {
	Index       int
	ChunkID     string
	Text        string
	TokenCount  int
	StartOffset int
	EndOffset   int
}

// ChunkText 将规范化文本切分为带重叠的片段
// 同一输入永远产生同一批片段和片段 ID
func ChunkText(sourceID int64, pageID, text string) []ChunkPiece {
	units := splitUnits(text)
	if len(units) == 0 {
		return nil
	}

	var chunkTexts []string
	var buffer []string
	bufferTokens := 0

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		chunkText := strings.Join(buffer, "\n")
		chunkTexts = append(chunkTexts, chunkText)

		// 用上一片段的尾部词作为下一片段的种子
		overlap := lastWords(chunkText, chunkOverlapWords)
		buffer = buffer[:0]
		bufferTokens = 0
		if overlap != "" {
			buffer = append(buffer, overlap)
			bufferTokens = estimateTokens(overlap)
		}
	}

	for _, unit := range units {
		unitTokens := estimateTokens(unit)
		if bufferTokens+unitTokens > chunkTargetTokens && len(buffer) > 0 {
			flush()
		}
		buffer = append(buffer, unit)
		bufferTokens += unitTokens
	}
	if len(buffer) > 0 {
		chunkText := strings.Join(buffer, "\n")
		chunkTexts = append(chunkTexts, chunkText)
	}

	pieces := make([]ChunkPiece, len(chunkTexts))
	cursor := 0
	prevEnd := 0
	for i, chunkText := range chunkTexts {
		start := locateChunk(text, chunkText, cursor, prevEnd)
		end := start + len(chunkText)

		pieces[i] = ChunkPiece{
			Index:       i,
			ChunkID:     chunkID(sourceID, pageID, i, chunkText),
			Text:        chunkText,
			TokenCount:  estimateTokens(chunkText),
			StartOffset: start,
			EndOffset:   end,
		}
		cursor = start
		prevEnd = end
	}
	return pieces
}

// locateChunk 在原文中定位片段起点
// 重叠种子会让片段文本不再是原文子串，此时回退到上一片段末尾
func locateChunk(text, chunkText string, cursor, prevEnd int) int {
	if idx := strings.Index(text[cursor:], chunkText); idx >= 0 {
		return cursor + idx
	}
	if idx := strings.Index(text, chunkText); idx >= 0 {
		return idx
	}
	return prevEnd
}

// chunkID 内容寻址的片段 ID：来源、页面、序号和文本哈希共同决定
func chunkID(sourceID int64, pageID string, index int, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%d:%s:%d:%s", sourceID, pageID, index, hex.EncodeToString(sum[:])[:12])
}

// PointIDForChunk 由片段 ID 派生稳定的向量点 UUID
func PointIDForChunk(chunkID string) string {
	sum := sha256.Sum256([]byte(chunkID))
	id, err := uuid.FromBytes(sum[:16])
	if err != nil {
		// sha256 前 16 字节永远是合法输入
		panic(err)
	}
	return id.String()
}

// estimateTokens 粗略 token 估算：4 字节约一个 token，至少 1
func estimateTokens(s string) int {
	tokens := (len(s) + 3) / 4
	if tokens < 1 {
		return 1
	}
	return tokens
}

// splitUnits 将文本切成段落内的句子单元
func splitUnits(text string) []string {
	var units []string
	for _, paragraph := range paragraphSplitter.Split(text, -1) {
		for _, sentence := range splitSentences(paragraph) {
			if strings.TrimSpace(sentence) == "" {
				continue
			}
			units = append(units, sentence)
		}
	}
	return units
}

// splitSentences 在句末标点后的空白处切分，标点保留在句内
func splitSentences(paragraph string) []string {
	var sentences []string
	runes := []rune(paragraph)
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isSentenceEnd(runes[i]) {
			continue
		}
		// 连续标点归入同一句
		for i+1 < len(runes) && isSentenceEnd(runes[i+1]) {
			i++
		}
		if i+1 >= len(runes) || !isWhitespace(runes[i+1]) {
			continue
		}
		sentences = append(sentences, string(runes[start:i+1]))
		// 跳过句间空白
		i++
		for i+1 < len(runes) && isWhitespace(runes[i+1]) {
			i++
		}
		start = i + 1
	}

	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// lastWords 取文本末尾的 n 个词
func lastWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
