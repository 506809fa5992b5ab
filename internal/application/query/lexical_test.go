package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractLexicalCandidate(t *testing.T) {
	tests := []struct {
		name     string
		question string
		expected string
		found    bool
	}{
		{
			name:     "double quoted phrase",
			question: `Does the handbook mention "forcura.com" anywhere?`,
			expected: "forcura.com",
			found:    true,
		},
		{
			name:     "curly quotes",
			question: "Is “incident response runbook” indexed?",
			expected: "incident response runbook",
			found:    true,
		},
		{
			name:     "longest quoted run wins",
			question: `Compare "short" and "a much longer phrase" please`,
			expected: "a much longer phrase",
			found:    true,
		},
		{
			name:     "quoted phrase too short",
			question: `Is "api" mentioned?`,
			found:    false,
		},
		{
			name:     "text after trailing colon",
			question: "Verify this exact line: systemctl restart app",
			expected: "systemctl restart app",
			found:    true,
		},
		{
			name:     "full width colon",
			question: "请确认这句话：部署前必须备份数据库",
			expected: "部署前必须备份数据库",
			found:    true,
		},
		{
			name:     "colon tail too short",
			question: "Check: ok",
			found:    false,
		},
		{
			name:     "plain question",
			question: "How do we restart the ingestion worker?",
			found:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phrase, found := ExtractLexicalCandidate(tt.question)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.expected, phrase)
			}
		})
	}
}

func TestTokenizeTerms(t *testing.T) {
	terms := tokenizeTerms("Restart the ingestion worker, then restart redis")
	// 长词在前，去重，单字符的词被过滤
	assert.Equal(t, []string{"ingestion", "restart", "worker", "redis", "then", "the"}, terms)
}

func TestTokenizeTerms_CapsAtTen(t *testing.T) {
	terms := tokenizeTerms("aa bb cc dd ee ff gg hh ii jj kk ll")
	assert.Len(t, terms, 10)
}

func TestTokenizeTerms_FiltersShort(t *testing.T) {
	terms := tokenizeTerms("a b and c")
	assert.Equal(t, []string{"and"}, terms)
}
