package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChatCompletion(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Ease the pace."}},
			},
		})
	}))
	defer srv.Close()

	c := New("test-key", "gpt-4o-mini", WithEndpoint(srv.URL))
	got, err := c.ChatCompletion(context.Background(), []Message{
		{Role: "system", Content: "You are a coach."},
		{Role: "user", Content: "HR is climbing."},
	}, ChatOptions{Temperature: 0.2, MaxTokens: 100, JSONObject: true})

	require.NoError(t, err)
	require.Equal(t, "Ease the pace.", got)
	require.Equal(t, "gpt-4o-mini", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	require.NotNil(t, gotReq.ResponseFormat)
	require.Equal(t, "json_object", gotReq.ResponseFormat.Type)
}

func TestChatCompletionNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := New("test-key", "gpt-4o-mini", WithEndpoint(srv.URL))
	_, err := c.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	require.Error(t, err)
}

func TestChatCompletionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New("test-key", "gpt-4o-mini", WithEndpoint(srv.URL))
	_, err := c.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "custom-embed", req.Model)
		require.Equal(t, "situation text", req.Input)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	c := New("test-key", "gpt-4o-mini", WithEndpoint(srv.URL), WithEmbeddingModel("custom-embed"))
	got, err := c.Embed(context.Background(), "situation text")
	require.NoError(t, err)
	require.Equal(t, []float64{0.1, 0.2, 0.3}, got)
}

func TestEmbedEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer srv.Close()

	c := New("test-key", "gpt-4o-mini", WithEndpoint(srv.URL))
	_, err := c.Embed(context.Background(), "text")
	require.Error(t, err)
}
