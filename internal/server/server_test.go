package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mhassist/internal/assistant"
	"mhassist/internal/config"
	"mhassist/internal/history"
	"mhassist/internal/llm"
	"mhassist/internal/service"
)

type staticCompleter string

func (s staticCompleter) Complete(context.Context, []llm.Message) (string, error) {
	return string(s), nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	root := t.TempDir()
	cfg.RAG.DocumentsDir = filepath.Join(root, "documents")
	cfg.RAG.IndexDir = filepath.Join(root, "index")
	cfg.RAG.EmbeddingsModel = "hashing-128"

	rag, err := service.New(cfg.RAG)
	require.NoError(t, err)
	a := assistant.New(rag, staticCompleter("I hear you."), history.NewMemoryStore(),
		assistant.Options{RAGEnabled: true, MaxHistory: 10})
	ts := httptest.NewServer(New(a, cfg.Server).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := do(t, ts, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestCategories(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/categories")
	require.NoError(t, err)
	defer resp.Body.Close()

	var cats []category
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cats))
	require.NotEmpty(t, cats)
	assert.Equal(t, "General", cats[0].Name)
	assert.NotEmpty(t, cats[0].Resources)
}

func TestChatFlow(t *testing.T) {
	ts := newTestServer(t)

	resp, body := do(t, ts, http.MethodPost, "/v1/chat", chatRequest{Category: "Stress", Message: "Work is overwhelming"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "I hear you.", body["reply"])
	assert.Equal(t, false, body["crisis"])
	session, _ := body["session_id"].(string)
	require.NotEmpty(t, session)

	resp, err := http.Get(ts.URL + "/v1/sessions/" + session)
	require.NoError(t, err)
	var msgs []llm.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	resp.Body.Close()
	assert.Len(t, msgs, 2)

	resp, _ = do(t, ts, http.MethodDelete, "/v1/sessions/"+session, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestChatCrisis(t *testing.T) {
	ts := newTestServer(t)
	resp, body := do(t, ts, http.MethodPost, "/v1/chat", chatRequest{Message: "I want to end my life"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["crisis"])
	assert.NotEqual(t, "I hear you.", body["reply"])
}

func TestChatRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := do(t, ts, http.MethodPost, "/v1/chat", chatRequest{Message: "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPost, "/v1/chat", map[string]string{"unknown": "field"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDocumentsAndSearch(t *testing.T) {
	ts := newTestServer(t)
	const text = "Progressive muscle relaxation: tense each muscle group, then release."

	resp, body := do(t, ts, http.MethodPost, "/v1/search", searchRequest{Query: text})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "uninitialized", body["state"])
	assert.Empty(t, body["results"])

	resp, body = do(t, ts, http.MethodPost, "/v1/documents", documentRequest{Text: text, Title: "PMR", Category: "Stress"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 1, body["documents_indexed"])

	resp, body = do(t, ts, http.MethodPost, "/v1/search", searchRequest{Query: text, K: 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "populated", body["state"])
	results, _ := body["results"].([]any)
	require.Len(t, results, 1)
	first, _ := results[0].(map[string]any)
	assert.Equal(t, "PMR", first["source"])

	zero := float32(0)
	resp, body = do(t, ts, http.MethodPost, "/v1/search", searchRequest{Query: text, Threshold: &zero})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["results"])

	resp, _ = do(t, ts, http.MethodPost, "/v1/documents", documentRequest{Text: "   "})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPost, "/v1/search", searchRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReindexEmptyCorpus(t *testing.T) {
	ts := newTestServer(t)
	resp, body := do(t, ts, http.MethodPost, "/v1/index", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	resp, body := do(t, ts, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "flat-l2", body["index_type"])
	assert.Equal(t, "hashing-128", body["embeddings_model"])
}
