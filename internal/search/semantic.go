// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pdiddy/paper-analyst/internal/httputil"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,authors,externalIds,year,publicationDate,url,openAccessPdf"

// SemanticScholar queries the Semantic Scholar API.
type SemanticScholar struct {
	Client     *http.Client
	APIKey     string
	UserAgent  string
	MaxResults int

	// MinYear restricts results to papers published in or after this year.
	// Zero disables the filter.
	MinYear int
}

// Name returns the backend identifier.
func (b *SemanticScholar) Name() string { return "semantic_scholar" }

// Search queries the Semantic Scholar API. Open-access PDFs are preferred
// for PDFURL; papers with an arXiv ID fall back to the arXiv PDF.
func (b *SemanticScholar) Search(ctx context.Context, query string) ([]Result, error) {
	q := buildSemanticQuery(query)
	if q == "" {
		return nil, fmt.Errorf("empty Semantic Scholar query")
	}

	maxResults := b.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{
		"query":  {q},
		"limit":  {fmt.Sprintf("%d", maxResults)},
		"fields": {semanticFields},
	}
	if b.MinYear > 0 {
		params.Set("year", fmt.Sprintf("%d-", b.MinYear))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, semanticAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}
	if b.APIKey != "" {
		req.Header.Set("x-api-key", b.APIKey)
	}

	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("Semantic Scholar API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Semantic Scholar API returned HTTP %d", resp.StatusCode)
	}

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}

	var results []Result
	for _, paper := range sr.Data {
		r := Result{
			Title:   paper.Title,
			URL:     paper.URL,
			Snippet: paper.Abstract,
			Source:  "semantic_scholar",
		}
		for _, a := range paper.Authors {
			r.Authors = append(r.Authors, a.Name)
		}

		if paper.PublicationDate != "" {
			if t, parseErr := time.Parse("2006-01-02", paper.PublicationDate); parseErr == nil {
				r.Published = t
			}
		} else if paper.Year > 0 {
			r.Published = time.Date(paper.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		}

		switch {
		case paper.OpenAccessPDF != nil && paper.OpenAccessPDF.URL != "":
			r.PDFURL = paper.OpenAccessPDF.URL
		case paper.ExternalIDs.ArXiv != "":
			r.PDFURL = "https://arxiv.org/pdf/" + paper.ExternalIDs.ArXiv
		}
		if r.URL == "" && paper.ExternalIDs.DOI != "" {
			r.URL = "https://doi.org/" + paper.ExternalIDs.DOI
		}

		results = append(results, r)
	}
	return results, nil
}

// buildSemanticQuery drops web-engine operators such as site: from query.
func buildSemanticQuery(query string) string {
	var parts []string
	for _, f := range strings.Fields(query) {
		if strings.Contains(f, ":") {
			continue
		}
		parts = append(parts, f)
	}
	return strings.Join(parts, " ")
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Data   []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID         string              `json:"paperId"`
	Title           string              `json:"title"`
	Abstract        string              `json:"abstract"`
	URL             string              `json:"url"`
	Year            int                 `json:"year"`
	PublicationDate string              `json:"publicationDate"`
	Authors         []semanticAuthor    `json:"authors"`
	ExternalIDs     semanticExternalIDs `json:"externalIds"`
	OpenAccessPDF   *semanticPDF        `json:"openAccessPdf"`
}

type semanticAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type semanticExternalIDs struct {
	DOI      string `json:"DOI"`
	ArXiv    string `json:"ArXiv"`
	CorpusID int    `json:"CorpusId"`
}

type semanticPDF struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}
