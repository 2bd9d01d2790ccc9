package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpa-strategie/aia-backend/pkg/circuitbreaker"
	"github.com/alpa-strategie/aia-backend/pkg/retry"
)

func embeddingServer(t *testing.T, hits *atomic.Int32, handler func(n int32, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		handler(hits.Add(1), w)
	}))
}

func writeVector(t *testing.T, w http.ResponseWriter, vec []float32) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"model":  "text-embedding-3-small",
		"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": vec}},
		"usage":  map[string]int{"prompt_tokens": 3, "total_tokens": 3},
	}))
}

func newTestClient(url string) *OpenAIClient {
	return NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: url + "/v1"})
}

func TestOpenAIClient_Embed(t *testing.T) {
	var hits atomic.Int32
	srv := embeddingServer(t, &hits, func(_ int32, w http.ResponseWriter) {
		writeVector(t, w, []float32{0.1, 0.2, 0.3})
	})
	defer srv.Close()

	vec, err := newTestClient(srv.URL).Embed(context.Background(), "What is a PMO?")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int32(1), hits.Load())
}

func TestOpenAIClient_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := embeddingServer(t, &hits, func(n int32, w http.ResponseWriter) {
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		writeVector(t, w, []float32{1, 0})
	})
	defer srv.Close()

	vec, err := newTestClient(srv.URL).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
	assert.Equal(t, int32(2), hits.Load())
}

func TestOpenAIClient_AuthErrorIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := embeddingServer(t, &hits, func(_ int32, w http.ResponseWriter) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})
	defer srv.Close()

	_, err := newTestClient(srv.URL).Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestOpenAIClient_EmptyResponse(t *testing.T) {
	var hits atomic.Int32
	srv := embeddingServer(t, &hits, func(_ int32, w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	})
	defer srv.Close()

	_, err := newTestClient(srv.URL).Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestOpenAIClient_OpenBreakerRejectsWithoutCalling(t *testing.T) {
	var hits atomic.Int32
	srv := embeddingServer(t, &hits, func(_ int32, w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	})
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.retryConfig.MaxAttempts = 1

	for i := 0; i < 5; i++ {
		_, err := c.Embed(context.Background(), "hello")
		require.Error(t, err)
	}

	_, err := c.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Contains(t, err.Error(), "embedding")
	assert.Equal(t, int32(5), hits.Load())
}
