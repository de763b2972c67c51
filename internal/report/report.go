// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders an analysis result as Markdown, YAML, or JSON and
// writes it to disk.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-analyst/internal/citation"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

// Format names an output encoding.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name, with "md" and "yml" as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want markdown, yaml, or json)", s)
	}
}

// FormatFromPath guesses the format from a file extension, defaulting to
// Markdown.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatMarkdown
	}
}

// Options controls Markdown rendering.
type Options struct {
	// Sections appends each specialist's raw report after the synthesis.
	Sections bool
}

// Markdown renders the result with an "Analysis of" heading followed by the
// synthesized report and, when present, the citation as a BibTeX block.
func Markdown(result *types.AnalysisResult, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Analysis of: *%s*\n\n", result.Title)
	b.WriteString(strings.TrimSpace(result.Report))
	b.WriteString("\n")

	if result.Citation != nil {
		b.WriteString("\n## Citation\n\n```bibtex\n")
		b.WriteString(citation.FormatBibTeX(*result.Citation))
		b.WriteString("\n```\n")
	}

	if opts.Sections && len(result.Sections) > 0 {
		b.WriteString("\n---\n\n## Specialist Reports\n")
		for _, s := range result.Sections {
			fmt.Fprintf(&b, "\n### %s\n\n", s.Role.Title())
			if s.Failed {
				fmt.Fprintf(&b, "_Failed: %s_\n", s.Err)
				continue
			}
			b.WriteString(strings.TrimSpace(s.Text))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// YAML serializes the full result.
func YAML(result *types.AnalysisResult) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(result); err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// JSON serializes the full result with indentation.
func JSON(result *types.AnalysisResult) ([]byte, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Render writes result to w in the given format.
func Render(w io.Writer, format Format, result *types.AnalysisResult, opts Options) error {
	var data []byte
	var err error
	switch format {
	case FormatMarkdown:
		data = []byte(Markdown(result, opts))
	case FormatYAML:
		data, err = YAML(result)
	case FormatJSON:
		data, err = JSON(result)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Write renders result to path through a temporary file in the same
// directory, so a reader never sees a partial report.
func Write(path string, format Format, result *types.AnalysisResult, opts Options) error {
	var buf bytes.Buffer
	if err := Render(&buf, format, result, opts); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(buf.Bytes())
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing report: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
