// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns source files into the plain text the analysis
// pipeline consumes. PDFs go through a pluggable backend (pdftotext or the
// markitdown container); Markdown and text files are read directly.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-analyst/internal/container"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

// markdownDir is the subdirectory under the papers base for converted text.
const markdownDir = "markdown"

// ErrEmptyDocument is returned when a source yields no text.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// Converter transforms a PDF file into text. Different backends (markitdown,
// pdftotext) implement this interface.
type Converter interface {
	// Convert reads the file at path and returns its text content.
	Convert(ctx context.Context, path string) (string, error)
}

// New returns the converter selected by cfg.Backend. The markitdown backend
// needs a working docker or podman runtime with the image present.
func New(ctx context.Context, cfg types.ConversionConfig) (Converter, error) {
	switch cfg.Backend {
	case types.BackendMarkitdown:
		rt, err := container.DetectRuntime(ctx)
		if err != nil {
			return nil, err
		}
		return NewMarkitdownConverter(ctx, rt, cfg.Image)
	case types.BackendPdftotext, "":
		return NewPdftotextConverter()
	default:
		return nil, fmt.Errorf("unknown conversion backend %q", cfg.Backend)
	}
}

// textExts are read as-is instead of being converted.
var textExts = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// NeedsConversion reports whether path must go through a Converter, i.e.
// it is not a Markdown or text file.
func NeedsConversion(path string) bool {
	return !textExts[strings.ToLower(filepath.Ext(path))]
}

// LoadDocument reads path into a Document. Markdown and text files are read
// directly with any YAML frontmatter removed; everything else goes through
// c. A source with no text after trimming returns ErrEmptyDocument.
func LoadDocument(ctx context.Context, c Converter, path string) (types.Document, error) {
	doc := types.Document{
		Name:   filepath.Base(path),
		Source: path,
	}

	var text string
	if !NeedsConversion(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return types.Document{}, fmt.Errorf("reading %s: %w", path, err)
		}
		fm, body := splitFrontmatter(string(data))
		if fm.Title != "" {
			doc.Name = fm.Title
		}
		text = body
	} else {
		if c == nil {
			return types.Document{}, fmt.Errorf("no converter available for %s", path)
		}
		out, err := c.Convert(ctx, path)
		if err != nil {
			return types.Document{}, err
		}
		text = out
	}

	if strings.TrimSpace(text) == "" {
		return types.Document{}, fmt.Errorf("%s: %w", path, ErrEmptyDocument)
	}
	doc.Text = text
	return doc, nil
}

// ConvertPaper converts a downloaded paper's PDF and caches the text under
// <papersDir>/markdown. It returns the Markdown path and the conversion
// status. An existing Markdown file is reused and reported as
// ConversionNone.
func ConvertPaper(ctx context.Context, c Converter, paper types.Paper, papersDir string, w io.Writer) (string, types.ConversionStatus) {
	outDir := filepath.Join(papersDir, markdownDir)
	base := strings.TrimSuffix(filepath.Base(paper.PDFPath), filepath.Ext(paper.PDFPath))
	mdPath := filepath.Join(outDir, base+".md")

	if _, err := os.Stat(mdPath); err == nil {
		fmt.Fprintf(w, "skipped: %s (already converted)\n", base)
		return mdPath, types.ConversionNone
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", base, err)
		return "", types.ConversionFailed
	}

	raw, err := c.Convert(ctx, paper.PDFPath)
	if err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", base, err)
		return "", types.ConversionFailed
	}
	if strings.TrimSpace(raw) == "" {
		fmt.Fprintf(w, "failed:  %s (%v)\n", base, ErrEmptyDocument)
		return "", types.ConversionFailed
	}

	content, err := addFrontmatter(paper, raw)
	if err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", base, err)
		return "", types.ConversionFailed
	}
	if err := os.WriteFile(mdPath, []byte(content), 0o644); err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", base, err)
		return "", types.ConversionFailed
	}

	fmt.Fprintf(w, "converted: %s\n", base)
	return mdPath, types.ConversionDone
}

// PaperDocument converts paper (or reuses its cached Markdown) and loads the
// result. The document is named after the paper title when known.
func PaperDocument(ctx context.Context, c Converter, paper types.Paper, papersDir string, w io.Writer) (types.Document, error) {
	mdPath, status := ConvertPaper(ctx, c, paper, papersDir, w)
	if status == types.ConversionFailed {
		return types.Document{}, fmt.Errorf("converting %s failed", paper.ID)
	}
	doc, err := LoadDocument(ctx, c, mdPath)
	if err != nil {
		return types.Document{}, err
	}
	doc.Name = paper.DisplayName()
	if paper.SourceURL != "" {
		doc.Source = paper.SourceURL
	}
	return doc, nil
}

// frontmatter is the header written ahead of converted text.
type frontmatter struct {
	PaperID     string `yaml:"paper_id"`
	Title       string `yaml:"title,omitempty"`
	SourcePDF   string `yaml:"source_pdf"`
	ConvertedAt string `yaml:"converted_at"`
}

// addFrontmatter prepends YAML frontmatter to the converted content.
func addFrontmatter(paper types.Paper, body string) (string, error) {
	fm := frontmatter{
		PaperID:     paper.ID,
		Title:       paper.Title,
		SourcePDF:   paper.PDFPath,
		ConvertedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("marshaling frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(data)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String(), nil
}

// splitFrontmatter separates a leading "---" YAML block from the body. Text
// without a well-formed block is returned unchanged.
func splitFrontmatter(s string) (frontmatter, string) {
	var fm frontmatter
	if !strings.HasPrefix(s, "---\n") {
		return fm, s
	}
	rest := s[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		return fm, s
	}
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return frontmatter{}, s
	}
	body := rest[end+len("\n---\n"):]
	return fm, strings.TrimLeft(body, "\n")
}
