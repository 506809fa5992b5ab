package ingest

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	text := "Hello world."
	pieces := ChunkText(1, "page-1", text)

	require.Len(t, pieces, 1)
	assert.Equal(t, 0, pieces[0].Index)
	assert.Equal(t, text, pieces[0].Text)
	assert.Equal(t, 0, pieces[0].StartOffset)
	assert.Equal(t, len(text), pieces[0].EndOffset)
	assert.Equal(t, 3, pieces[0].TokenCount)
	assert.True(t, strings.HasPrefix(pieces[0].ChunkID, "1:page-1:0:"))
}

func TestChunkText_EmptyInput(t *testing.T) {
	assert.Nil(t, ChunkText(1, "page-1", ""))
	assert.Nil(t, ChunkText(1, "page-1", "  \n \t "))
}

func TestChunkText_Deterministic(t *testing.T) {
	text := "First sentence here. Second sentence here.\n\nAnother paragraph follows."
	first := ChunkText(7, "page-x", text)
	second := ChunkText(7, "page-x", text)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestChunkText_ChunkIDVariesWithContext(t *testing.T) {
	text := "Same content everywhere."
	a := ChunkText(1, "page-a", text)
	b := ChunkText(1, "page-b", text)
	c := ChunkText(2, "page-a", text)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	require.Len(t, c, 1)
	assert.NotEqual(t, a[0].ChunkID, b[0].ChunkID)
	assert.NotEqual(t, a[0].ChunkID, c[0].ChunkID)
}

func TestChunkText_LongTextSplitsWithOverlap(t *testing.T) {
	sentence := strings.Repeat("alpha beta gamma delta epsilon ", 4) + "done."
	var sb strings.Builder
	for i := 0; i < 60; i++ {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(sentence)
	}
	text := sb.String()

	pieces := ChunkText(1, "page-long", text)
	require.Greater(t, len(pieces), 1)

	for i, piece := range pieces {
		assert.Equal(t, i, piece.Index)
		assert.NotEmpty(t, piece.ChunkID)
		assert.LessOrEqual(t, piece.StartOffset, piece.EndOffset)
	}

	// 后一片段以前一片段的尾词作为开头
	firstLine := strings.SplitN(pieces[1].Text, "\n", 2)[0]
	assert.Equal(t, lastWords(pieces[0].Text, chunkOverlapWords), firstLine)

	// 重叠种子不在原文中出现，定位回退到上一片段末尾
	assert.Equal(t, pieces[0].EndOffset, pieces[1].StartOffset)
}

func TestPointIDForChunk(t *testing.T) {
	id := PointIDForChunk("1:page-1:0:abcdef123456")

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, parsed.String())

	assert.Equal(t, id, PointIDForChunk("1:page-1:0:abcdef123456"))
	assert.NotEqual(t, id, PointIDForChunk("1:page-1:1:abcdef123456"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("ab"))
	assert.Equal(t, 1, estimateTokens("abcd"))
	assert.Equal(t, 2, estimateTokens("abcde"))
	assert.Equal(t, 25, estimateTokens(strings.Repeat("x", 100)))
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "basic split",
			input:    "One. Two. Three.",
			expected: []string{"One.", "Two.", "Three."},
		},
		{
			name:     "consecutive punctuation stays together",
			input:    "Really?! Yes.",
			expected: []string{"Really?!", "Yes."},
		},
		{
			name:     "no trailing whitespace keeps sentence intact",
			input:    "See v1.2 for details",
			expected: []string{"See v1.2 for details"},
		},
		{
			name:     "trailing fragment kept",
			input:    "Done. And more",
			expected: []string{"Done.", "And more"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitSentences(tt.input))
		})
	}
}
