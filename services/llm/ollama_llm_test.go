package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOllamaClient(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &OllamaClient{
		httpClient: server.Client(),
		baseURL:    server.URL,
		model:      "llama3",
	}
}

func TestOllamaGenerate(t *testing.T) {
	var captured ollamaGenerateRequest
	client := newTestOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:    "llama3",
			Response: "hello back",
			Done:     true,
		})
	})

	temp := float32(0.3)
	maxTokens := 200
	out, err := client.Generate(context.Background(), "say hello", GenerationParams{
		System:      "be brief",
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)

	assert.Equal(t, "llama3", captured.Model)
	assert.Equal(t, "say hello", captured.Prompt)
	assert.Equal(t, "be brief", captured.System)
	assert.False(t, captured.Stream)
	assert.InDelta(t, 0.3, captured.Options["temperature"], 1e-6)
	assert.EqualValues(t, 200, captured.Options["num_predict"])
}

func TestOllamaGenerateDefaultsOptions(t *testing.T) {
	var captured ollamaGenerateRequest
	client := newTestOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "ok", Done: true})
	})

	_, err := client.Generate(context.Background(), "p", GenerationParams{})
	require.NoError(t, err)
	assert.InDelta(t, 0.7, captured.Options["temperature"], 1e-6)
	assert.EqualValues(t, 1024, captured.Options["num_predict"])
	assert.EqualValues(t, 20, captured.Options["top_k"])
}

func TestOllamaGenerateModelNotFound(t *testing.T) {
	client := newTestOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "model 'llama3' not found"}`))
	})

	_, err := client.Generate(context.Background(), "p", GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama pull")
}

func TestOllamaGenerateServerError(t *testing.T) {
	client := newTestOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("overloaded"))
	})

	_, err := client.Generate(context.Background(), "p", GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestOllamaGenerateRespectsContext(t *testing.T) {
	client := newTestOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Generate(ctx, "p", GenerationParams{})
	require.Error(t, err)
}

func TestNewOllamaClientRequiresBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	_, err := NewOllamaClient()
	require.Error(t, err)
}

func TestNewOllamaClientTrimsTrailingSlash(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434/")
	t.Setenv("OLLAMA_MODEL", "mistral")
	client, err := NewOllamaClient()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", client.baseURL)
	assert.Equal(t, "mistral", client.model)
}
