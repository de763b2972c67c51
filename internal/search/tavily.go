// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/httputil"
)

// tavilyURL is the Tavily search endpoint. Declared as a var so tests can
// substitute an httptest server.
var tavilyURL = "https://api.tavily.com/search"

// Tavily calls the Tavily web search API.
type Tavily struct {
	APIKey string

	// Depth is Tavily's search_depth parameter: basic or advanced.
	Depth string

	MaxResults int

	retrier httputil.Retrier
}

// NewTavily constructs a Tavily search provider. A nil client gets a
// 30 second timeout.
func NewTavily(apiKey, depth string, maxResults int, client *http.Client, logger *zap.Logger) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Tavily{
		APIKey:     apiKey,
		Depth:      depth,
		MaxResults: maxResults,
		retrier:    httputil.Retrier{Client: client, MaxRetries: 3, Logger: logger},
	}
}

// Name returns the backend identifier.
func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	Query       string `json:"query"`
	APIKey      string `json:"api_key"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Content       string `json:"content"`
		PublishedDate string `json:"published_date"`
	} `json:"results"`
}

// Search posts a query to Tavily and returns at most MaxResults hits.
func (t *Tavily) Search(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	payload, err := json.Marshal(tavilyRequest{
		Query:       query,
		APIKey:      t.APIKey,
		SearchDepth: t.Depth,
		MaxResults:  t.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.retrier.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.CheckStatus("Tavily API", resp); err != nil {
		return nil, err
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding Tavily response: %w", err)
	}

	results := make([]Result, 0, len(tr.Results))
	for _, r := range tr.Results {
		res := Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			PDFURL:  pdfLink(r.URL),
			Source:  "tavily",
		}
		if r.PublishedDate != "" {
			for _, layout := range []string{time.RFC3339, "2006-01-02", time.RFC1123} {
				if ts, perr := time.Parse(layout, r.PublishedDate); perr == nil {
					res.Published = ts
					break
				}
			}
		}
		results = append(results, res)
		if len(results) >= t.MaxResults {
			break
		}
	}
	return results, nil
}
