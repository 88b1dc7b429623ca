package mem0

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("")
	require.Error(t, err)

	c, err := New("m0-test")
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/memories/search", r.URL.Path)
		require.Equal(t, "Bearer m0-test", r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "coaching strategies that worked well", req.Query)
		require.Equal(t, "user-1", req.UserID)
		require.Equal(t, 3, req.Limit)

		_ = json.NewEncoder(w).Encode(searchResponse{Results: []SearchResult{
			{ID: "m1", Memory: "Cadence cues worked well", Score: 0.92,
				Metadata: map[string]any{"category": "strategy"}},
		}})
	}))
	defer srv.Close()

	c, err := New("m0-test", WithBaseURL(srv.URL))
	require.NoError(t, err)

	got, err := c.Search(context.Background(), "coaching strategies that worked well", "user-1", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "m1", got[0].ID)
	require.Equal(t, 0.92, got[0].Score)
	require.Equal(t, "strategy", got[0].Metadata["category"])
}

func TestSearchAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New("bad-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Search(context.Background(), "query", "user-1", 3)
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}
