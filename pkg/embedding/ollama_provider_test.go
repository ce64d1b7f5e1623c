package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-feed-curator/pkg/errs"
)

func fakeOllama(t *testing.T, handler http.HandlerFunc) *OllamaProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaProvider(srv.URL, "nomic-embed-text")
}

func TestOllamaProbe(t *testing.T) {
	t.Run("running daemon passes", func(t *testing.T) {
		p := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("Ollama is running"))
		})
		assert.NoError(t, p.Probe(context.Background()))
	})

	t.Run("closed port reports network error", func(t *testing.T) {
		p := NewOllamaProvider("http://127.0.0.1:1", "")
		err := p.Probe(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrNetwork)
	})

	t.Run("error status reports server error", func(t *testing.T) {
		p := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		err := p.Probe(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrServer)
	})
}

func TestOllamaInitialize(t *testing.T) {
	t.Run("served api passes", func(t *testing.T) {
		p := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/version", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]string{"version": "0.5.1"})
		})
		assert.NoError(t, p.Initialize(context.Background()))
	})

	t.Run("broken api reports library error", func(t *testing.T) {
		p := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		err := p.Initialize(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrLibrary)
	})
}

func TestOllamaPullStreamsProgress(t *testing.T) {
	p := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/pull", r.URL.Path)
		var req ollamaPullRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		enc := json.NewEncoder(w)
		enc.Encode(PullProgress{Status: "pulling manifest"})
		enc.Encode(PullProgress{Status: "downloading", Completed: 50, Total: 100})
		enc.Encode(PullProgress{Status: "success", Completed: 100, Total: 100})
	})

	var seen []PullProgress
	err := p.Pull(context.Background(), func(prog PullProgress) {
		seen = append(seen, prog)
	})
	require.NoError(t, err)
	require.Len(t, seen, 3)
	assert.Equal(t, "pulling manifest", seen[0].Status)
	assert.Equal(t, int64(50), seen[1].Completed)
	assert.Equal(t, "success", seen[2].Status)
}

func TestOllamaGenerateNormalizes(t *testing.T) {
	p := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Prompt)

		json.NewEncoder(w).Encode(ollamaEmbeddingResponse{Embedding: []float64{3, 4}})
	})

	vec, err := p.Generate(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vec, 2)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	assert.InDelta(t, 0.6, float64(vec[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(vec[1]), 1e-6)
}

func TestOllamaGenerateServerError(t *testing.T) {
	p := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	})

	_, err := p.Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrServer)
}
