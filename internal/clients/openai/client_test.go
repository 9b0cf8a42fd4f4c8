package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/signals-backend/internal/pkg/httpx"
	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server, retries int) Client {
	t.Helper()
	c, err := NewClient(Config{
		APIKey:      "sk-test",
		BaseURL:     srv.URL,
		Model:       "judge-model",
		EmbedModel:  "embed-model",
		Timeout:     5 * time.Second,
		MaxRetries:  retries,
		InitBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}, logger.Nop())
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{}, logger.Nop())
	assert.Error(t, err)
}

func TestEmbedOrdersByIndexAndRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv, 2).Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestGenerateJSONStrictSchemaAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/responses", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		format := body["text"].(map[string]any)["format"].(map[string]any)
		assert.Equal(t, "json_schema", format["type"])
		assert.Equal(t, true, format["strict"])
		assert.EqualValues(t, 0, body["temperature"])

		_, _ = w.Write([]byte(`{
			"model": "judge-model-2025",
			"output": [{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{\"overallScore\":55}"}]}],
			"usage": {"input_tokens": 1200, "output_tokens": 80, "total_tokens": 1280}
		}`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv, 0).GenerateJSON(context.Background(), JSONRequest{
		System:     "sys",
		User:       "user",
		SchemaName: "verdict",
		Schema:     map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 55, res.Object["overallScore"])
	assert.Equal(t, 1200, res.Usage.InputTokens)
	assert.Equal(t, 80, res.Usage.OutputTokens)
	assert.Equal(t, "judge-model-2025", res.Model)
}

func TestGenerateJSONSingleAttemptAndErrorClass(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 3).GenerateJSON(context.Background(), JSONRequest{
		SchemaName: "verdict",
		Schema:     map[string]any{"type": "object"},
	})
	require.Error(t, err)
	assert.Equal(t, "rate_limited", httpx.ErrorClass(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGenerateJSONMalformedOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"not json"}]}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 0).GenerateJSON(context.Background(), JSONRequest{
		SchemaName: "verdict",
		Schema:     map[string]any{"type": "object"},
	})
	require.Error(t, err)
	assert.Equal(t, "malformed", httpx.ErrorClass(err))
}
