// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/paper-analyst/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType IdentifierType
		wantNorm string
	}{
		{"arxiv bare", "2301.07041", TypeArxiv, "2301.07041"},
		{"arxiv prefixed", "arXiv:2301.07041", TypeArxiv, "2301.07041"},
		{"arxiv versioned", "2301.07041v2", TypeArxiv, "2301.07041v2"},
		{"arxiv abs url", "https://arxiv.org/abs/2305.12345", TypeArxiv, "2305.12345"},
		{"arxiv pdf url", "https://arxiv.org/pdf/2401.54321.pdf", TypeArxiv, "2401.54321"},
		{"arxiv pdf url versioned", "http://arxiv.org/pdf/2401.54321v3", TypeArxiv, "2401.54321v3"},
		{"doi simple", "10.1145/1234567.1234568", TypeDOI, "10.1145/1234567.1234568"},
		{"doi nature", "10.1038/s41586-024-07487-w", TypeDOI, "10.1038/s41586-024-07487-w"},
		{"url https", "https://example.com/paper.pdf", TypeURL, "https://example.com/paper.pdf"},
		{"url http", "http://example.com/paper.pdf", TypeURL, "http://example.com/paper.pdf"},
		{"unknown bare word", "not-an-id", TypeUnknown, "not-an-id"},
		{"unknown scheme", "ftp://example.com/paper.pdf", TypeUnknown, "ftp://example.com/paper.pdf"},
		{"unknown empty", "", TypeUnknown, ""},
		{"whitespace trimmed", "  2301.07041  ", TypeArxiv, "2301.07041"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotNorm := Classify(tt.input)
			if gotType != tt.wantType {
				t.Errorf("Classify(%q) type = %v, want %v", tt.input, gotType, tt.wantType)
			}
			if gotNorm != tt.wantNorm {
				t.Errorf("Classify(%q) norm = %q, want %q", tt.input, gotNorm, tt.wantNorm)
			}
		})
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		name     string
		idType   IdentifierType
		norm     string
		wantSlug string
	}{
		{"arxiv", TypeArxiv, "2301.07041", "2301.07041"},
		{"doi", TypeDOI, "10.1145/1234567.1234568", "10.1145-1234567.1234568"},
		{"url with filename", TypeURL, "https://example.com/my-paper.pdf", "my-paper"},
		{"url no filename", TypeURL, "https://example.com/", urlHashSlug("https://example.com/")},
		{"unknown", TypeUnknown, "x", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slug(tt.idType, tt.norm)
			if got != tt.wantSlug {
				t.Errorf("Slug(%v, %q) = %q, want %q", tt.idType, tt.norm, got, tt.wantSlug)
			}
		})
	}
}

func TestPDFURL(t *testing.T) {
	tests := []struct {
		name    string
		idType  IdentifierType
		norm    string
		wantURL string
	}{
		{"arxiv", TypeArxiv, "2301.07041", arxivPDFBase + "2301.07041"},
		{"doi", TypeDOI, "10.1145/1234567", doiBase + "10.1145/1234567"},
		{"url passthrough", TypeURL, "https://example.com/paper.pdf", "https://example.com/paper.pdf"},
		{"abs rewritten", TypeURL, "https://arxiv.org/abs/hep-th/9901001", "https://arxiv.org/pdf/hep-th/9901001"},
		{"unknown empty", TypeUnknown, "foo", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PDFURL(tt.idType, tt.norm)
			if got != tt.wantURL {
				t.Errorf("PDFURL(%v, %q) = %q, want %q", tt.idType, tt.norm, got, tt.wantURL)
			}
		})
	}
}

const sampleArxivXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>Test Paper
      Title</title>
    <summary>This is the abstract of the test paper.</summary>
    <published>2023-01-17T18:58:28Z</published>
    <author><name>Alice Smith</name></author>
    <author><name>Bob Jones</name></author>
  </entry>
</feed>`

const sampleCrossRefJSON = `{
  "status": "ok",
  "message": {
    "title": ["CrossRef Paper Title"],
    "abstract": "Abstract from CrossRef.",
    "author": [
      {"given": "Carol", "family": "White"},
      {"given": "Dave", "family": "Brown"}
    ],
    "created": {
      "date-parts": [[2023, 6, 15]]
    }
  }
}`

const fakePDFContent = "%PDF-1.4 fake"

// newTestServer serves fake PDF downloads and arXiv, CrossRef and OpenAlex
// API responses based on URL path.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/pdf/missing"):
			http.NotFound(w, r)
		case strings.HasPrefix(r.URL.Path, "/pdf/empty"):
			w.Header().Set("Content-Type", "application/pdf")
		case strings.HasPrefix(r.URL.Path, "/pdf/"):
			if r.Header.Get("Accept") != "application/pdf" {
				http.Error(w, "bad accept", http.StatusNotAcceptable)
				return
			}
			w.Header().Set("Content-Type", "application/pdf")
			fmt.Fprint(w, fakePDFContent)
		case r.URL.Path == "/api/query":
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, sampleArxivXML)
		case strings.HasPrefix(r.URL.Path, "/works/"):
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, sampleCrossRefJSON)
		case strings.HasPrefix(r.URL.Path, "/openalex/"):
			// No OA location, so DOIs fall back to doi.org.
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"best_oa_location": null}`)
		case strings.HasPrefix(r.URL.Path, "/doi/"):
			w.Header().Set("Content-Type", "application/pdf")
			fmt.Fprint(w, fakePDFContent)
		default:
			http.NotFound(w, r)
		}
	}))
}

// overrideBaseURLs points the package-level base URLs at the test server
// and returns a function restoring the originals.
func overrideBaseURLs(tsURL string) func() {
	origPDF := arxivPDFBase
	origAPI := arxivAPIBase
	origDOI := doiBase
	origCR := crossrefAPIBase
	origOA := openAlexAPIBase

	arxivPDFBase = tsURL + "/pdf/"
	arxivAPIBase = tsURL + "/api/query"
	doiBase = tsURL + "/doi/"
	crossrefAPIBase = tsURL + "/works/"
	openAlexAPIBase = tsURL + "/openalex/"

	return func() {
		arxivPDFBase = origPDF
		arxivAPIBase = origAPI
		doiBase = origDOI
		crossrefAPIBase = origCR
		openAlexAPIBase = origOA
	}
}

func testConfig(dir string) types.AcquisitionConfig {
	return types.AcquisitionConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   10 * time.Second,
			UserAgent: "paper-analyst-test/0.1",
		},
		PapersDir: dir,
	}
}

func TestDownloadArxiv(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()
	defer overrideBaseURLs(ts.URL)()

	dir := t.TempDir()
	var buf bytes.Buffer

	paper, skipped, err := Download(context.Background(), ts.Client(), "2301.07041", testConfig(dir), &buf)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if skipped {
		t.Error("expected download, got skipped")
	}
	if paper.ID != "2301.07041" {
		t.Errorf("paper.ID = %q, want %q", paper.ID, "2301.07041")
	}
	if paper.Title != "Test Paper Title" {
		t.Errorf("paper.Title = %q, want %q", paper.Title, "Test Paper Title")
	}
	if len(paper.Authors) != 2 || paper.Authors[0] != "Alice Smith" {
		t.Errorf("paper.Authors = %v", paper.Authors)
	}
	if paper.Source != "arxiv" {
		t.Errorf("paper.Source = %q, want arxiv", paper.Source)
	}

	data, err := os.ReadFile(filepath.Join(dir, "raw", "2301.07041.pdf"))
	if err != nil {
		t.Fatalf("reading PDF: %v", err)
	}
	if string(data) != fakePDFContent {
		t.Errorf("PDF content = %q, want %q", string(data), fakePDFContent)
	}
	if _, err := os.Stat(filepath.Join(dir, "metadata", "2301.07041.yaml")); err != nil {
		t.Fatalf("metadata file missing: %v", err)
	}
	if !strings.Contains(buf.String(), "downloading:") {
		t.Error("output should contain 'downloading:'")
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "raw", ".acquire-*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestDownloadURL(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	var buf bytes.Buffer
	pdfURL := ts.URL + "/pdf/direct-paper.pdf"
	paper, skipped, err := Download(context.Background(), ts.Client(), pdfURL, testConfig(t.TempDir()), &buf)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if skipped {
		t.Error("expected download, got skipped")
	}
	if paper.ID != "direct-paper" {
		t.Errorf("paper.ID = %q, want direct-paper", paper.ID)
	}
	if paper.Title != "" {
		t.Errorf("URL paper should have empty title, got %q", paper.Title)
	}
	if paper.SourceURL != pdfURL {
		t.Errorf("paper.SourceURL = %q, want %q", paper.SourceURL, pdfURL)
	}
}

func TestDownloadSkipExisting(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()
	defer overrideBaseURLs(ts.URL)()

	dir := t.TempDir()
	rawPath := filepath.Join(dir, "raw")
	if err := os.MkdirAll(rawPath, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rawPath, "2301.07041.pdf"), []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	paper, skipped, err := Download(context.Background(), ts.Client(), "https://arxiv.org/abs/2301.07041", testConfig(dir), &buf)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !skipped {
		t.Error("expected skipped, got download")
	}
	if paper.ID != "2301.07041" {
		t.Errorf("paper.ID = %q, want %q", paper.ID, "2301.07041")
	}
	if !strings.Contains(buf.String(), "skipped:") {
		t.Error("output should contain 'skipped:'")
	}
}

func TestDownloadFailure(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	tests := []struct {
		name string
		path string
	}{
		{"not found", "/pdf/missing.pdf"},
		{"empty body", "/pdf/empty.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			var buf bytes.Buffer
			_, _, err := Download(context.Background(), ts.Client(), ts.URL+tt.path, testConfig(dir), &buf)

			var df *DownloadFailure
			if !errors.As(err, &df) {
				t.Fatalf("err = %v, want *DownloadFailure", err)
			}
			if df.URL != ts.URL+tt.path {
				t.Errorf("DownloadFailure.URL = %q", df.URL)
			}
			entries, _ := os.ReadDir(filepath.Join(dir, "raw"))
			if len(entries) != 0 {
				t.Errorf("raw dir should be empty, has %d entries", len(entries))
			}
		})
	}
}

func TestDownloadDOIViaOpenAlex(t *testing.T) {
	var tsURL string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/openalex/"):
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"best_oa_location":{"pdf_url":"%s/pdf/oa-paper.pdf","landing_page_url":"https://example.com"}}`, tsURL)
		case strings.HasPrefix(r.URL.Path, "/pdf/"):
			w.Header().Set("Content-Type", "application/pdf")
			fmt.Fprint(w, fakePDFContent)
		case strings.HasPrefix(r.URL.Path, "/works/"):
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, sampleCrossRefJSON)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	tsURL = ts.URL
	defer overrideBaseURLs(ts.URL)()

	dir := t.TempDir()
	var buf bytes.Buffer
	paper, _, err := Download(context.Background(), ts.Client(), "10.1145/1234567.1234568", testConfig(dir), &buf)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if paper.Source != "openalex" {
		t.Errorf("paper.Source = %q, want %q", paper.Source, "openalex")
	}
	if paper.Title != "CrossRef Paper Title" {
		t.Errorf("paper.Title = %q, want %q", paper.Title, "CrossRef Paper Title")
	}
	if _, err := os.Stat(filepath.Join(dir, "raw", "10.1145-1234567.1234568.pdf")); err != nil {
		t.Fatalf("PDF file missing: %v", err)
	}
}

func TestDownloadDOIFallbackWhenNoOA(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()
	defer overrideBaseURLs(ts.URL)()

	var buf bytes.Buffer
	paper, _, err := Download(context.Background(), ts.Client(), "10.1145/1234567.1234568", testConfig(t.TempDir()), &buf)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if paper.Source != "doi" {
		t.Errorf("paper.Source = %q, want %q", paper.Source, "doi")
	}
}

func TestDownloadMetadataWarning(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/pdf/") {
			fmt.Fprint(w, fakePDFContent)
			return
		}
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer ts.Close()
	defer overrideBaseURLs(ts.URL)()

	var buf bytes.Buffer
	paper, _, err := Download(context.Background(), ts.Client(), "2301.07041", testConfig(t.TempDir()), &buf)
	if err != nil {
		t.Fatalf("metadata failure must not fail the download: %v", err)
	}
	if paper.Title != "" {
		t.Errorf("Title = %q, want empty", paper.Title)
	}
	if !strings.Contains(buf.String(), "warning: arXiv metadata fetch failed") {
		t.Errorf("output should warn about metadata:\n%s", buf.String())
	}
}

func TestDownloadUnknownIdentifier(t *testing.T) {
	var buf bytes.Buffer
	_, _, err := Download(context.Background(), http.DefaultClient, "not-a-valid-id", testConfig(t.TempDir()), &buf)
	if err == nil {
		t.Fatal("expected error for unknown identifier")
	}
	if !strings.Contains(err.Error(), "unrecognized identifier format") {
		t.Errorf("error = %q, want 'unrecognized identifier format'", err.Error())
	}
}

func TestDownloadBatch(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()
	defer overrideBaseURLs(ts.URL)()

	var buf bytes.Buffer
	identifiers := []string{
		"2301.07041",
		ts.URL + "/pdf/missing.pdf",
		"bad-identifier",
		ts.URL + "/pdf/direct.pdf",
	}

	result := DownloadBatch(context.Background(), ts.Client(), identifiers, testConfig(t.TempDir()), &buf)

	if result.Downloaded != 2 {
		t.Errorf("Downloaded = %d, want 2", result.Downloaded)
	}
	if result.Failed != 2 {
		t.Errorf("Failed = %d, want 2", result.Failed)
	}
	if result.Total() != 4 {
		t.Errorf("Total = %d, want 4", result.Total())
	}
	if !result.HasFailures() {
		t.Error("HasFailures should be true")
	}
	if len(result.Papers) != 2 {
		t.Errorf("len(Papers) = %d, want 2", len(result.Papers))
	}
	if len(result.Errors) != 2 {
		t.Fatalf("len(Errors) = %d, want 2", len(result.Errors))
	}
	var df *DownloadFailure
	if !errors.As(result.Errors[0], &df) {
		t.Errorf("first error = %v, want *DownloadFailure", result.Errors[0])
	}
	if !strings.Contains(buf.String(), "Batch summary: 2 downloaded, 0 skipped, 2 failed (total: 4)") {
		t.Errorf("output should contain batch summary:\n%s", buf.String())
	}
}

func TestDownloadBatchCanceled(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()
	defer overrideBaseURLs(ts.URL)()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	cfg := testConfig(t.TempDir())
	cfg.DownloadDelay = time.Hour
	result := DownloadBatch(ctx, ts.Client(), []string{"2301.07041", "2301.07042"}, cfg, &buf)
	if result.Failed != 2 {
		t.Errorf("Failed = %d, want 2", result.Failed)
	}
	if !errors.Is(result.Errors[1], context.Canceled) {
		t.Errorf("Errors[1] = %v, want context.Canceled", result.Errors[1])
	}
}

func TestFetchArxivMetadata(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()
	defer overrideBaseURLs(ts.URL)()

	paper := &types.Paper{}
	if err := fetchArxivMetadata(context.Background(), ts.Client(), "2301.07041", paper, testConfig(t.TempDir())); err != nil {
		t.Fatalf("fetchArxivMetadata: %v", err)
	}
	if paper.Title != "Test Paper Title" {
		t.Errorf("Title = %q, want %q", paper.Title, "Test Paper Title")
	}
	if paper.Abstract != "This is the abstract of the test paper." {
		t.Errorf("Abstract = %q", paper.Abstract)
	}
	if len(paper.Authors) != 2 || paper.Authors[1] != "Bob Jones" {
		t.Fatalf("Authors = %v", paper.Authors)
	}
	expectedDate := time.Date(2023, 1, 17, 18, 58, 28, 0, time.UTC)
	if !paper.Date.Equal(expectedDate) {
		t.Errorf("Date = %v, want %v", paper.Date, expectedDate)
	}
}

func TestFetchCrossRefMetadata(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()
	defer overrideBaseURLs(ts.URL)()

	paper := &types.Paper{}
	if err := fetchCrossRefMetadata(context.Background(), ts.Client(), "10.1145/1234567", paper, testConfig(t.TempDir())); err != nil {
		t.Fatalf("fetchCrossRefMetadata: %v", err)
	}
	if paper.Title != "CrossRef Paper Title" {
		t.Errorf("Title = %q, want %q", paper.Title, "CrossRef Paper Title")
	}
	if len(paper.Authors) != 2 || paper.Authors[0] != "Carol White" {
		t.Fatalf("Authors = %v", paper.Authors)
	}
	expectedDate := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	if !paper.Date.Equal(expectedDate) {
		t.Errorf("Date = %v, want %v", paper.Date, expectedDate)
	}
}

func TestWriteAndReadMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	paper := &types.Paper{
		ID:        "2301.07041",
		SourceURL: "https://arxiv.org/pdf/2301.07041",
		PDFPath:   "/papers/raw/2301.07041.pdf",
		Title:     "Test Paper",
		Authors:   []string{"Alice", "Bob"},
		Date:      time.Date(2023, 1, 17, 0, 0, 0, 0, time.UTC),
		Abstract:  "An abstract.",
	}

	if err := writeMetadata(paper, path); err != nil {
		t.Fatalf("writeMetadata: %v", err)
	}
	got, err := readMetadata(path)
	if err != nil {
		t.Fatalf("readMetadata: %v", err)
	}
	if got.ID != paper.ID || got.Title != paper.Title || got.SourceURL != paper.SourceURL {
		t.Errorf("round trip = %+v", got)
	}
	if len(got.Authors) != 2 {
		t.Errorf("len(Authors) = %d, want 2", len(got.Authors))
	}
}
