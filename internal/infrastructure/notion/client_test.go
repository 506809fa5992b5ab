package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notionwiki/backend/internal/infrastructure/config"
)

// newTestClient 指向测试服务器的客户端，限速调高避免拖慢测试
func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	return NewClient(&config.NotionConfig{
		BaseURL:           serverURL,
		Version:           "2025-09-03",
		RequestsPerSecond: 1000,
		MaxRetries:        3,
	}, "secret-token")
}

func TestClient_AuthFailedNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"API token is invalid."}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Me(context.Background())

	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeAuthFailed, apiErr.Code)
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "401 must not be retried")
}

func TestClient_BadRequestNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"body failed validation"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.RetrievePage(context.Background(), "p1")

	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeBadRequest, apiErr.Code)
	assert.Equal(t, "body failed validation", apiErr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ServerErrorRetriedThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"id":"p1","url":"https://notion.so/p1","last_edited_time":"2026-01-02T03:04:05.000Z"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	page, err := client.RetrievePage(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, "p1", page.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_RateLimitedHonorsRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0.05")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"message":"rate limited"}`)
			return
		}
		fmt.Fprint(w, `{"id":"bot-1","name":"wiki-bot","type":"bot"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	user, err := client.Me(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "wiki-bot", user.Name)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_ListBlocks_PaginatesAndRecurses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/blocks/root/children" && r.URL.Query().Get("start_cursor") == "":
			fmt.Fprint(w, `{
				"results": [
					{"id":"b1","type":"paragraph","has_children":false,"paragraph":{"rich_text":[{"plain_text":"first"}]}},
					{"id":"b2","type":"toggle","has_children":true,"toggle":{"rich_text":[{"plain_text":"details"}]}}
				],
				"has_more": true,
				"next_cursor": "c2"
			}`)
		case r.URL.Path == "/blocks/root/children":
			fmt.Fprint(w, `{
				"results": [
					{"id":"b4","type":"child_page","has_children":true,"child_page":{}}
				],
				"has_more": false
			}`)
		case r.URL.Path == "/blocks/b2/children":
			fmt.Fprint(w, `{
				"results": [
					{"id":"b3","type":"paragraph","has_children":false,"paragraph":{"rich_text":[{"plain_text":"nested"}]}}
				],
				"has_more": false
			}`)
		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	blocks, warnings, err := client.ListBlocks(context.Background(), "root")

	require.NoError(t, err)
	assert.Empty(t, warnings)

	// 深度优先：b1, b2, b2 的子块, 第二页的 b4（子页面不下钻）
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"b1", "b2", "b3", "b4"}, ids)
}

func TestClient_ListBlocks_UnsupportedSubtreeBecomesWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/blocks/root/children":
			fmt.Fprint(w, `{
				"results": [
					{"id":"b1","type":"synced_block","has_children":true,"synced_block":{}}
				],
				"has_more": false
			}`)
		case "/blocks/b1/children":
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"message":"Block type synced_block is not supported via the API for your bot type."}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	blocks, warnings, err := client.ListBlocks(context.Background(), "root")

	require.NoError(t, err, "unsupported subtree must not fail the whole listing")
	assert.Len(t, blocks, 1)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "b1")
	assert.Contains(t, warnings[0], "not supported via the API for your bot type")
}

func TestClient_QueryDataSource_Paginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/data_sources/ds1/query", r.URL.Path)
		require.Equal(t, "2025-09-03", r.Header.Get("Notion-Version"))
		require.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body["start_cursor"] == nil {
			fmt.Fprint(w, `{"results":[{"id":"p1"},{"id":"p2"}],"has_more":true,"next_cursor":"c2"}`)
			return
		}
		require.Equal(t, "c2", body["start_cursor"])
		fmt.Fprint(w, `{"results":[{"id":"p3"}],"has_more":false}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	pages, err := client.QueryDataSource(context.Background(), "ds1")

	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, "p3", pages[2].ID)
}

func TestClient_SearchAll_DecodesMixedResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		sort := body["sort"].(map[string]any)
		require.Equal(t, "descending", sort["direction"])
		require.Equal(t, "last_edited_time", sort["timestamp"])

		fmt.Fprint(w, `{
			"results": [
				{"object":"page","id":"p1","url":"https://notion.so/p1","last_edited_time":"2026-02-01T00:00:00.000Z",
				 "properties":{"Name":{"type":"title","title":[{"plain_text":"Runbook"}]}}},
				{"object":"data_source","id":"ds1","title":[{"plain_text":"Team "},{"plain_text":"Wiki"}]},
				{"object":"database","id":"db1"}
			],
			"has_more": false
		}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	results, err := client.SearchAll(context.Background(), "wiki")

	require.NoError(t, err)
	require.Len(t, results, 2, "unknown object types are skipped")
	assert.Equal(t, "page", results[0].Object)
	assert.Equal(t, "Runbook", results[0].Title)
	assert.Equal(t, "data_source", results[1].Object)
	assert.Equal(t, "Team Wiki", results[1].Title)
}

func TestPage_PlainTitle(t *testing.T) {
	page := &Page{Properties: map[string]PageProperty{
		"Status": {Type: "select"},
		"Name": {Type: "title", Title: []RichText{
			{PlainText: "Incident "},
			{PlainText: "Postmortem"},
		}},
	}}
	assert.Equal(t, "Incident Postmortem", page.PlainTitle())

	empty := &Page{}
	assert.Equal(t, "Untitled", empty.PlainTitle())
}

func TestBlock_UnmarshalJSON(t *testing.T) {
	raw := []byte(`{
		"id": "b1",
		"type": "to_do",
		"has_children": false,
		"to_do": {"rich_text":[{"plain_text":"ship it"}],"checked":true}
	}`)

	var block Block
	require.NoError(t, json.Unmarshal(raw, &block))
	assert.Equal(t, "to_do", block.Type)
	require.Len(t, block.Content.RichText, 1)
	assert.Equal(t, "ship it", block.Content.RichText[0].PlainText)
	require.NotNil(t, block.Content.Checked)
	assert.True(t, *block.Content.Checked)
}
