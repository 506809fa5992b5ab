package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteFromChunk(t *testing.T) {
	text := "First sentence here. Second one follows. Third should be dropped."
	quote := quoteFromChunk(text)

	assert.Equal(t, "First sentence here. Second one follows.", quote)
	// 引文必须能在原文中找到
	assert.True(t, strings.Contains(text, quote))
}

func TestQuoteFromChunk_SingleSentence(t *testing.T) {
	assert.Equal(t, "Only one sentence.", quoteFromChunk("Only one sentence."))
}

func TestQuoteFromChunk_NoPunctuation(t *testing.T) {
	assert.Equal(t, "no punctuation at all", quoteFromChunk("  no punctuation at all  "))
}

func TestQuoteFromChunk_TruncatesLongText(t *testing.T) {
	long := strings.Repeat("word ", 100) + "end."
	quote := quoteFromChunk(long)

	assert.True(t, strings.HasSuffix(quote, "..."))
	trimmed := strings.TrimSuffix(quote, "...")
	assert.Len(t, []rune(trimmed), maxQuoteLen)
	assert.True(t, strings.Contains(long, trimmed))
}

func TestQuoteFromChunk_Empty(t *testing.T) {
	assert.Equal(t, "", quoteFromChunk("   "))
}

func TestParseGenerated(t *testing.T) {
	parsed, err := parseGenerated(`{"answer": "Yes.", "citations": [{"chunkId": "1:p:0:abc", "quote": "Yes it does."}]}`)
	assert.NoError(t, err)
	assert.Equal(t, "Yes.", parsed.Answer)
	assert.Len(t, parsed.Citations, 1)
	assert.Equal(t, "1:p:0:abc", parsed.Citations[0].ChunkID)
}

func TestParseGenerated_MarkdownFence(t *testing.T) {
	parsed, err := parseGenerated("```json\n{\"answer\": \"Wrapped.\", \"citations\": []}\n```")
	assert.NoError(t, err)
	assert.Equal(t, "Wrapped.", parsed.Answer)
}

func TestParseGenerated_Invalid(t *testing.T) {
	_, err := parseGenerated("not json at all")
	assert.Error(t, err)

	_, err = parseGenerated(`{"citations": []}`)
	assert.Error(t, err)
}

func TestBuildUserText(t *testing.T) {
	contexts := []*contextChunk{
		{chunkID: "1:p:0:abc", title: "Runbook", url: "https://notion.so/p", text: "Restart the app."},
		{chunkID: "1:p:1:def", title: "Runbook", url: "https://notion.so/p", text: "Then verify health."},
	}

	text := buildUserText("How to restart?", contexts)
	assert.True(t, strings.HasPrefix(text, "QUESTION:\nHow to restart?\n\nCONTEXT:\n"))
	assert.Contains(t, text, "chunkId=1:p:0:abc\ntitle=Runbook\nurl=https://notion.so/p\ntext=Restart the app.")
	assert.Contains(t, text, "\n\n---\n\n")
}
