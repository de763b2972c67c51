// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire downloads papers named by arXiv ID, DOI, or URL and
// records their metadata next to the PDF.
package acquire

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-analyst/pkg/types"
)

const (
	rawDir      = "raw"
	metadataDir = "metadata"
)

// DownloadFailure reports a PDF that could not be fetched. In a batch it
// affects only its own URL.
type DownloadFailure struct {
	URL string
	Err error
}

func (e *DownloadFailure) Error() string {
	return fmt.Sprintf("downloading %s: %v", e.URL, e.Err)
}

func (e *DownloadFailure) Unwrap() error { return e.Err }

// BatchResult holds the outcome of a batch download.
type BatchResult struct {
	Downloaded int
	Skipped    int
	Failed     int
	Papers     []*types.Paper

	// Errors holds one entry per failed identifier, in input order.
	Errors []error
}

// Total returns the total number of identifiers processed.
func (r BatchResult) Total() int {
	return r.Downloaded + r.Skipped + r.Failed
}

// HasFailures reports whether any papers failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// Download resolves identifier, downloads the PDF, and writes metadata. A
// PDF already on disk is reused; skipped reports that case.
func Download(ctx context.Context, client *http.Client, identifier string, cfg types.AcquisitionConfig, w io.Writer) (paper *types.Paper, skipped bool, err error) {
	idType, normalized := Classify(identifier)
	if idType == TypeUnknown {
		return nil, false, fmt.Errorf("unrecognized identifier format: %q", identifier)
	}

	slug := Slug(idType, normalized)
	pdfPath := filepath.Join(cfg.PapersDir, rawDir, slug+".pdf")
	metaPath := filepath.Join(cfg.PapersDir, metadataDir, slug+".yaml")

	if _, err := os.Stat(pdfPath); err == nil {
		fmt.Fprintf(w, "skipped: %s (already exists)\n", slug)
		p, readErr := readMetadata(metaPath)
		if readErr != nil {
			p = &types.Paper{ID: slug, PDFPath: pdfPath}
		}
		return p, true, nil
	}

	// DOIs prefer an open-access copy over the publisher landing page.
	var source string
	pdfURL := PDFURL(idType, normalized)
	if idType == TypeDOI {
		if oaURL, err := resolveOpenAlex(ctx, client, normalized, cfg); err == nil && oaURL != "" {
			pdfURL = oaURL
			source = "openalex"
		}
	}

	for _, dir := range []string{
		filepath.Join(cfg.PapersDir, rawDir),
		filepath.Join(cfg.PapersDir, metadataDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, false, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	fmt.Fprintf(w, "downloading: %s (%s)\n", slug, idType)
	if err := downloadFile(ctx, client, pdfURL, pdfPath, cfg); err != nil {
		return nil, false, &DownloadFailure{URL: pdfURL, Err: err}
	}

	if source == "" {
		source = idType.String()
	}
	p := &types.Paper{
		ID:               slug,
		SourceURL:        pdfURL,
		PDFPath:          pdfPath,
		Source:           source,
		ConversionStatus: types.ConversionNone,
	}

	switch idType {
	case TypeArxiv:
		if err := fetchArxivMetadata(ctx, client, normalized, p, cfg); err != nil {
			fmt.Fprintf(w, "  warning: arXiv metadata fetch failed: %v\n", err)
		}
	case TypeDOI:
		if err := fetchCrossRefMetadata(ctx, client, normalized, p, cfg); err != nil {
			fmt.Fprintf(w, "  warning: CrossRef metadata fetch failed: %v\n", err)
		}
	}

	if err := writeMetadata(p, metaPath); err != nil {
		return nil, false, fmt.Errorf("writing metadata for %s: %w", slug, err)
	}
	return p, false, nil
}

// DownloadBatch processes identifiers in order, printing per-item status
// and a summary. It continues after individual failures and waits
// cfg.DownloadDelay between consecutive downloads.
func DownloadBatch(ctx context.Context, client *http.Client, identifiers []string, cfg types.AcquisitionConfig, w io.Writer) BatchResult {
	var result BatchResult
	for i, id := range identifiers {
		if i > 0 && cfg.DownloadDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.DownloadDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", id, err)
			result.Failed++
			result.Errors = append(result.Errors, err)
			continue
		}
		paper, wasSkipped, err := Download(ctx, client, id, cfg, w)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", id, err)
			result.Failed++
			result.Errors = append(result.Errors, err)
			continue
		}
		if wasSkipped {
			result.Skipped++
		} else {
			result.Downloaded++
		}
		result.Papers = append(result.Papers, paper)
	}
	fmt.Fprintf(w, "\nBatch summary: %d downloaded, %d skipped, %d failed (total: %d)\n",
		result.Downloaded, result.Skipped, result.Failed, result.Total())
	return result
}

// downloadFile fetches rawURL to destPath through a temporary file. The
// HTTP client handles redirects.
func downloadFile(ctx context.Context, client *http.Client, rawURL, destPath string, cfg types.AcquisitionConfig) error {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".acquire-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	n, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if n == 0 {
		os.Remove(tmpPath)
		return fmt.Errorf("empty response body from %s", rawURL)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func apiGet(ctx context.Context, client *http.Client, apiURL, userAgent, name string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned HTTP %d", name, resp.StatusCode)
	}
	return resp, nil
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []arxivAuthor `xml:"author"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

// fetchArxivMetadata fills title, authors, abstract and date from the arXiv
// API.
func fetchArxivMetadata(ctx context.Context, client *http.Client, arxivID string, paper *types.Paper, cfg types.AcquisitionConfig) error {
	apiURL := fmt.Sprintf("%s?id_list=%s", arxivAPIBase, url.QueryEscape(arxivID))
	resp, err := apiGet(ctx, client, apiURL, cfg.UserAgent, "arXiv API")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return fmt.Errorf("parsing arXiv response: %w", err)
	}
	if len(feed.Entries) == 0 {
		return fmt.Errorf("no entries found for arXiv ID %s", arxivID)
	}

	entry := feed.Entries[0]
	paper.Title = strings.Join(strings.Fields(entry.Title), " ")
	paper.Abstract = strings.TrimSpace(entry.Summary)
	for _, a := range entry.Authors {
		paper.Authors = append(paper.Authors, strings.TrimSpace(a.Name))
	}
	if t, parseErr := time.Parse(time.RFC3339, entry.Published); parseErr == nil {
		paper.Date = t
	}
	return nil
}

// CrossRef API JSON structures.
type crossrefResponse struct {
	Message crossrefWork `json:"message"`
}

type crossrefWork struct {
	Title    []string         `json:"title"`
	Abstract string           `json:"abstract"`
	Author   []crossrefAuthor `json:"author"`
	Created  crossrefDate     `json:"created"`
}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type crossrefDate struct {
	DateParts [][]int `json:"date-parts"`
}

// fetchCrossRefMetadata fills title, authors, abstract and date from
// CrossRef.
func fetchCrossRefMetadata(ctx context.Context, client *http.Client, doi string, paper *types.Paper, cfg types.AcquisitionConfig) error {
	resp, err := apiGet(ctx, client, crossrefAPIBase+doi, cfg.UserAgent, "CrossRef API")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var cr crossrefResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return fmt.Errorf("parsing CrossRef response: %w", err)
	}

	if len(cr.Message.Title) > 0 {
		paper.Title = cr.Message.Title[0]
	}
	paper.Abstract = cr.Message.Abstract
	for _, a := range cr.Message.Author {
		paper.Authors = append(paper.Authors, strings.TrimSpace(a.Given+" "+a.Family))
	}
	if len(cr.Message.Created.DateParts) > 0 && len(cr.Message.Created.DateParts[0]) >= 3 {
		parts := cr.Message.Created.DateParts[0]
		paper.Date = time.Date(parts[0], time.Month(parts[1]), parts[2], 0, 0, 0, 0, time.UTC)
	}
	return nil
}

func writeMetadata(paper *types.Paper, path string) error {
	data, err := yaml.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func readMetadata(path string) (*types.Paper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var paper types.Paper
	if err := yaml.Unmarshal(data, &paper); err != nil {
		return nil, err
	}
	return &paper, nil
}
