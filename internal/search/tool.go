// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"strings"
)

// Tool exposes a Searcher to an agent loop. It satisfies agent.Tool.
type Tool struct {
	name        string
	description string
	searcher    Searcher
}

// NewTool wraps s under the given tool name.
func NewTool(name, description string, s Searcher) *Tool {
	return &Tool{name: name, description: description, searcher: s}
}

func (t *Tool) Name() string        { return t.name }
func (t *Tool) Description() string { return t.description }

// Call runs the search and renders the hits as an observation.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "The search query was empty.", nil
	}
	results, err := t.searcher.Search(ctx, input)
	if err != nil {
		return "", err
	}
	deduped, _ := deduplicate(results)
	return FormatResults(deduped), nil
}

// FormatResults renders results as a numbered list with PDF links.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No results found."
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(r.Title))
		fmt.Fprintf(&b, "   URL: %s\n", r.URL)
		if r.PDFURL != "" {
			fmt.Fprintf(&b, "   PDF: %s\n", r.PDFURL)
		}
		if !r.Published.IsZero() {
			fmt.Fprintf(&b, "   Published: %s\n", r.Published.Format("2006-01-02"))
		}
		if s := snippet(r.Snippet, 300); s != "" {
			fmt.Fprintf(&b, "   %s\n", s)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndex(s[:n], " ")
	if cut <= 0 {
		cut = n
	}
	return s[:cut] + "..."
}
