// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search finds candidate papers on the web and in academic indexes.
// Each backend implements Searcher; Multi fans a query out to several
// backends and merges their results.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/logging"
)

// Searcher runs a free-text query against one source.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string) ([]Result, error)
}

// Result is one search hit.
type Result struct {
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Snippet string   `json:"snippet,omitempty"`
	Authors []string `json:"authors,omitempty"`

	// PDFURL is a direct link to the full text when one is known.
	PDFURL string `json:"pdf_url,omitempty"`

	Published time.Time `json:"published,omitempty"`

	// Source names the backend(s) that returned the hit.
	Source string `json:"source"`
}

// Output holds merged results and per-backend failures.
type Output struct {
	Results       []Result `json:"results"`
	DupsRemoved   int      `json:"dups_removed"`
	BackendErrors []string `json:"backend_errors,omitempty"`
}

// Multi queries several backends concurrently. A failing backend is logged
// and skipped; Run fails only when every backend fails.
type Multi struct {
	Backends   []Searcher
	MaxResults int
	Logger     *zap.Logger
}

// Name returns the combined backend names.
func (m *Multi) Name() string {
	names := make([]string, len(m.Backends))
	for i, b := range m.Backends {
		names[i] = b.Name()
	}
	return strings.Join(names, "+")
}

// Search implements Searcher over the merged results.
func (m *Multi) Search(ctx context.Context, query string) ([]Result, error) {
	out, err := m.Run(ctx, query)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Run fans query out to all backends, then merges duplicates in backend
// order. Results keep the order of the first backend that returned them.
func (m *Multi) Run(ctx context.Context, query string) (Output, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Output{}, fmt.Errorf("query is empty")
	}
	if len(m.Backends) == 0 {
		return Output{}, fmt.Errorf("no search backends configured")
	}
	logger := logging.OrNop(m.Logger)

	type backendResult struct {
		results []Result
		err     error
	}
	slots := make([]backendResult, len(m.Backends))

	var wg sync.WaitGroup
	for i, b := range m.Backends {
		wg.Add(1)
		go func(i int, b Searcher) {
			defer wg.Done()
			results, err := b.Search(ctx, query)
			slots[i] = backendResult{results: results, err: err}
		}(i, b)
	}
	wg.Wait()

	var all []Result
	var backendErrors []string
	for i, br := range slots {
		name := m.Backends[i].Name()
		if br.err != nil {
			backendErrors = append(backendErrors, fmt.Sprintf("%s: %v", name, br.err))
			logger.Warn("search backend failed", zap.String("backend", name), zap.Error(br.err))
			continue
		}
		all = append(all, br.results...)
	}
	if len(backendErrors) == len(m.Backends) {
		return Output{BackendErrors: backendErrors}, fmt.Errorf("all search backends failed: %s", strings.Join(backendErrors, "; "))
	}

	deduped, removed := deduplicate(all)
	if m.MaxResults > 0 && len(deduped) > m.MaxResults {
		deduped = deduped[:m.MaxResults]
	}
	return Output{Results: deduped, DupsRemoved: removed, BackendErrors: backendErrors}, nil
}

// deduplicate merges results that point at the same paper, either by
// normalized link or by normalized title.
func deduplicate(results []Result) ([]Result, int) {
	seen := make(map[string]int)
	var deduped []Result
	removed := 0

	for _, r := range results {
		keys := dedupKeys(r)
		idx, dup := -1, false
		for _, k := range keys {
			if i, ok := seen[k]; ok {
				idx, dup = i, true
				break
			}
		}
		if dup {
			mergeInto(&deduped[idx], r)
			removed++
		} else {
			idx = len(deduped)
			deduped = append(deduped, r)
		}
		for _, k := range dedupKeys(deduped[idx]) {
			seen[k] = idx
		}
	}
	return deduped, removed
}

func dedupKeys(r Result) []string {
	var keys []string
	if id := ArxivID(r.URL); id != "" {
		keys = append(keys, "arxiv:"+id)
	}
	if id := ArxivID(r.PDFURL); id != "" {
		keys = append(keys, "arxiv:"+id)
	}
	if r.URL != "" {
		keys = append(keys, "url:"+normalizeURL(r.URL))
	}
	if t := normalizeTitle(r.Title); t != "" {
		keys = append(keys, "title:"+t)
	}
	return keys
}

// mergeInto fills empty fields of dst from src.
func mergeInto(dst *Result, src Result) {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Snippet == "" {
		dst.Snippet = src.Snippet
	}
	if len(dst.Authors) == 0 {
		dst.Authors = src.Authors
	}
	if dst.PDFURL == "" {
		dst.PDFURL = src.PDFURL
	}
	if dst.Published.IsZero() {
		dst.Published = src.Published
	}
	if src.Source != "" && !strings.Contains(dst.Source, src.Source) {
		dst.Source = dst.Source + "," + src.Source
	}
}

func normalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimRight(u, "/")
}

// normalizeTitle returns a lowercased, punctuation-stripped version of the title.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var arxivURLRe = regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/([0-9]{4}\.[0-9]{4,5})(?:v[0-9]+)?`)

// ArxivID extracts a new-style arXiv ID from an abs or pdf URL, without
// version suffix. It returns "" for other URLs.
func ArxivID(u string) string {
	if m := arxivURLRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}

// pdfLink derives a direct PDF link for u when the host is known to serve
// one, or when u already names a PDF.
func pdfLink(u string) string {
	if id := ArxivID(u); id != "" {
		return "https://arxiv.org/pdf/" + id
	}
	if strings.HasSuffix(strings.ToLower(strings.SplitN(u, "?", 2)[0]), ".pdf") {
		return u
	}
	return ""
}

// FormatTable writes results as a human-readable table to w.
func FormatTable(out Output, w io.Writer) {
	if len(out.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-4s  %-16s  %s\n", "Rank", "Title", "Year", "Source", "Link")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for i, r := range out.Results {
		title := r.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		year := ""
		if !r.Published.IsZero() {
			year = fmt.Sprintf("%d", r.Published.Year())
		}
		link := r.PDFURL
		if link == "" {
			link = r.URL
		}
		fmt.Fprintf(w, "%-4d  %-60s  %-4s  %-16s  %s\n", i+1, title, year, r.Source, link)
	}

	fmt.Fprintf(w, "\n%d results", len(out.Results))
	if out.DupsRemoved > 0 {
		fmt.Fprintf(w, " (%d duplicates removed)", out.DupsRemoved)
	}
	fmt.Fprintln(w)
}

// FormatJSON writes results as indented JSON to w.
func FormatJSON(out Output, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
