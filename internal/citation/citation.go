// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package citation turns the opening text of a paper into a bibliographic
// record. A single completion is asked for a JSON object; the record is
// parsed best-effort from whatever the model wraps around it.
package citation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/agent"
	"github.com/pdiddy/paper-analyst/internal/llm"
	"github.com/pdiddy/paper-analyst/internal/logging"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

// MaxSnippetChars is the default number of characters sent to the model.
// Title, authors and year sit on the first page.
const MaxSnippetChars = 4000

// Placeholders for fields the model did not supply.
const (
	UnknownTitle = "untitled"
	NotAvailable = "N/A"
)

// FailureMessage is shown to users when no record could be extracted.
const FailureMessage = "Could not extract citation details from this document."

// ExtractionFailure means the model reply held no usable JSON record.
type ExtractionFailure struct {
	Err error
}

func (e *ExtractionFailure) Error() string {
	return fmt.Sprintf("extracting citation: %v", e.Err)
}

func (e *ExtractionFailure) Unwrap() error { return e.Err }

// SystemPrompt is the extractor's system prompt.
const SystemPrompt = "You are a meticulous research librarian. You read the first page of academic papers and report their bibliographic details as JSON."

var taskTmpl = template.Must(template.New("citation").Parse(`Extract the bibliographic details of the paper below.

Respond with a single JSON object with these fields:
- title: the full paper title
- authors: an array of author names in the order they appear, each as "Given Family"
- year: the four-digit publication year as a string
- venue: the journal or conference, if stated
- doi: the DOI, if stated

Omit fields you cannot find. Do not include any text outside the JSON object.

Example response:
{"title": "Attention Is All You Need", "authors": ["Ashish Vaswani", "Noam Shazeer"], "year": "2017", "venue": "NeurIPS"}

Paper text:
{{.}}
`))

// Extractor runs citation extraction.
type Extractor struct {
	agent    agent.ReasoningAgent
	maxChars int
	logger   *zap.Logger
}

// New returns an Extractor over a. maxChars <= 0 means MaxSnippetChars.
func New(a agent.ReasoningAgent, maxChars int, logger *zap.Logger) *Extractor {
	if maxChars <= 0 {
		maxChars = MaxSnippetChars
	}
	return &Extractor{agent: a, maxChars: maxChars, logger: logging.OrNop(logger)}
}

// NewFromCompleter returns an Extractor backed by a tool-less agent.
func NewFromCompleter(completer llm.Completer, logger *zap.Logger) *Extractor {
	return New(agent.NewSingleShotAgent("citation", SystemPrompt, completer), MaxSnippetChars, logger)
}

// Extract returns the record for the paper whose text starts with text.
// Every failure, including an agent error, is an *ExtractionFailure.
func (e *Extractor) Extract(ctx context.Context, text string) (types.BibliographicRecord, error) {
	snippet := truncate(strings.TrimSpace(text), e.maxChars)
	if snippet == "" {
		return types.BibliographicRecord{}, &ExtractionFailure{Err: fmt.Errorf("document has no text")}
	}

	var task bytes.Buffer
	if err := taskTmpl.Execute(&task, snippet); err != nil {
		return types.BibliographicRecord{}, &ExtractionFailure{Err: err}
	}

	reply, err := e.agent.Run(ctx, task.String())
	if err != nil {
		e.logger.Warn("citation agent failed", zap.Error(err))
		return types.BibliographicRecord{}, &ExtractionFailure{Err: err}
	}

	rec, err := ParseRecord(reply)
	if err != nil {
		e.logger.Debug("unparseable citation reply", zap.String("reply", logging.Truncate(reply, 200)))
		return types.BibliographicRecord{}, err
	}
	e.logger.Debug("citation extracted", zap.String("title", rec.Title), zap.Int("authors", len(rec.Authors)))
	return rec, nil
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

type rawRecord struct {
	Title   string          `json:"title"`
	Authors json.RawMessage `json:"authors"`
	Author  json.RawMessage `json:"author"`
	Year    json.RawMessage `json:"year"`
	Venue   string          `json:"venue"`
	Journal string          `json:"journal"`
	DOI     string          `json:"doi"`
}

// ParseRecord finds the outermost brace-delimited substring of reply and
// decodes it. Missing fields become placeholders; a reply with no object
// or an object that does not decode is an *ExtractionFailure.
func ParseRecord(reply string) (types.BibliographicRecord, error) {
	m := jsonObjectRe.FindString(reply)
	if m == "" {
		return types.BibliographicRecord{}, &ExtractionFailure{Err: fmt.Errorf("no JSON object in reply")}
	}

	var raw rawRecord
	if err := json.Unmarshal([]byte(m), &raw); err != nil {
		return types.BibliographicRecord{}, &ExtractionFailure{Err: fmt.Errorf("decoding record: %w", err)}
	}

	authorsField := raw.Authors
	if isAbsent(authorsField) {
		authorsField = raw.Author
	}
	authors, err := parseAuthors(authorsField)
	if err != nil {
		return types.BibliographicRecord{}, &ExtractionFailure{Err: err}
	}
	year, err := parseYear(raw.Year)
	if err != nil {
		return types.BibliographicRecord{}, &ExtractionFailure{Err: err}
	}

	rec := types.BibliographicRecord{
		Title:   strings.TrimSpace(raw.Title),
		Authors: authors,
		Year:    year,
		Venue:   strings.TrimSpace(raw.Venue),
		DOI:     strings.TrimSpace(raw.DOI),
	}
	if rec.Venue == "" {
		rec.Venue = strings.TrimSpace(raw.Journal)
	}
	if rec.Title == "" {
		rec.Title = UnknownTitle
	}
	if len(rec.Authors) == 0 {
		rec.Authors = []string{NotAvailable}
	}
	if rec.Year == "" {
		rec.Year = NotAvailable
	}
	return rec, nil
}

func isAbsent(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

var authorSepRe = regexp.MustCompile(`\s*,\s*|\s+and\s+`)

// parseAuthors accepts an array of names or one string of names separated
// by commas or "and".
func parseAuthors(raw json.RawMessage) ([]string, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return cleanNames(list), nil
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err != nil {
		return nil, fmt.Errorf("authors is neither a list nor a string")
	}
	return cleanNames(authorSepRe.Split(joined, -1)), nil
}

func cleanNames(names []string) []string {
	var out []string
	for _, n := range names {
		if n = strings.Join(strings.Fields(n), " "); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// parseYear accepts the year as a string or a number.
func parseYear(raw json.RawMessage) (string, error) {
	if isAbsent(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("year is neither a string nor a number")
	}
	return strconv.FormatFloat(n, 'f', -1, 64), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
