package synth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPModelGenerate(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"text":"Mesh 2;\n","finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	m := NewHTTPModel(HTTPConfig{BaseURL: srv.URL + "/", Model: "gmsh-qwen", APIKey: "secret"}, srv.Client())
	out, err := m.Generate(context.Background(), "prompt text", Limits{MaxTokens: 128, Temperature: 0})
	require.NoError(t, err)
	assert.Equal(t, "Mesh 2;\n", out)
	assert.Equal(t, "gmsh-qwen", got.Model)
	assert.Equal(t, "prompt text", got.Prompt)
	assert.Equal(t, 128, got.MaxTokens)
	assert.Equal(t, []string{"<|im_end|>"}, got.Stop)
}

func TestHTTPModelGenerateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"context length exceeded"}}`))
	}))
	defer srv.Close()

	m := NewHTTPModel(HTTPConfig{BaseURL: srv.URL}, srv.Client())
	_, err := m.Generate(context.Background(), "p", Limits{MaxTokens: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
	assert.Contains(t, err.Error(), "context length exceeded")
}

func TestHTTPModelGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewHTTPModel(HTTPConfig{BaseURL: srv.URL}, srv.Client()).Generate(context.Background(), "p", Limits{MaxTokens: 1})
	assert.Error(t, err)
}

func TestHTTPLoaderProbesModels(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"loading"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"gmsh-qwen"}]}`))
	}))
	defer srv.Close()

	loader := &HTTPLoader{Config: HTTPConfig{BaseURL: srv.URL, Model: "gmsh-qwen"}, Client: srv.Client()}
	m, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gmsh-qwen", m.Describe().Name)

	healthy = false
	_, err = loader.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading")

	_, err = (&HTTPLoader{}).Load(context.Background())
	assert.ErrorIs(t, err, ErrNoBackend)
}
