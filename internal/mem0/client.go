// Package mem0 is a client for the Mem0 memory-search API, the
// personalization store behind coaching memories.
package mem0

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
)

const DefaultBaseURL = "https://api.mem0.ai/v1"

// Client talks to the Mem0 HTTP API.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	apiKey  string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil {
			c.baseURL = u
		}
	}
}

func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("apiKey required")
	}
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		http:    http.DefaultClient,
		baseURL: u,
		apiKey:  apiKey,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// SearchResult is one memory hit.
type SearchResult struct {
	ID       string         `json:"id"`
	Memory   string         `json:"memory"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// Search runs a semantic memory search scoped to a user.
func (c *Client) Search(ctx context.Context, query, userID string, limit int) ([]SearchResult, error) {
	var resp searchResponse
	if err := c.doJSON(ctx, "/memories/search", searchRequest{Query: query, UserID: userID, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) doJSON(ctx context.Context, p string, in, out any) error {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)

	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s: %s: %s", p, resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
