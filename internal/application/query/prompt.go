package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// answerSystemPrompt 生成回答时的系统指令
const answerSystemPrompt = `You are a knowledge base assistant. Answer the question using ONLY the provided context chunks.
Rules:
- If the context does not contain enough information, say so instead of guessing.
- Respond with a single JSON object: {"answer": "...", "citations": [{"chunkId": "...", "quote": "..."}]}.
- Each citation quote must be copied verbatim from the text of the chunk it cites.
- Cite only chunkIds that appear in the context.`

// buildContextBlock 将检索结果拼成上下文文本
func buildContextBlock(contexts []*contextChunk) string {
	blocks := make([]string, len(contexts))
	for i, c := range contexts {
		blocks[i] = fmt.Sprintf("chunkId=%s\ntitle=%s\nurl=%s\ntext=%s", c.chunkID, c.title, c.url, c.text)
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// buildUserText 组装用户消息
func buildUserText(question string, contexts []*contextChunk) string {
	return fmt.Sprintf("QUESTION:\n%s\n\nCONTEXT:\n%s", question, buildContextBlock(contexts))
}

// generatedAnswer 模型输出的结构
type generatedAnswer struct {
	Answer    string `json:"answer"`
	Citations []struct {
		ChunkID string `json:"chunkId"`
		Quote   string `json:"quote"`
	} `json:"citations"`
}

// parseGenerated 解析模型输出，容忍 markdown 代码块包装
func parseGenerated(text string) (*generatedAnswer, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	var parsed generatedAnswer
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse generated answer: %w", err)
	}
	if parsed.Answer == "" {
		return nil, fmt.Errorf("generated answer is empty")
	}
	return &parsed, nil
}
