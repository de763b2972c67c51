// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const binPdftotext = "pdftotext"

// Command hooks, replaced in tests.
var (
	lookPath   = exec.LookPath
	runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Stderr = &stderr
		out, err := cmd.Output()
		if err != nil && stderr.Len() > 0 {
			return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return out, err
	}
)

// PdftotextConverter extracts text with poppler's pdftotext, keeping the
// physical layout of each page.
type PdftotextConverter struct {
	bin string
}

// NewPdftotextConverter locates pdftotext on PATH.
func NewPdftotextConverter() (*PdftotextConverter, error) {
	bin, err := lookPath(binPdftotext)
	if err != nil {
		return nil, fmt.Errorf("%s not found on PATH (install poppler-utils): %w", binPdftotext, err)
	}
	return &PdftotextConverter{bin: bin}, nil
}

// Convert runs pdftotext on pdfPath and returns its stdout.
func (p *PdftotextConverter) Convert(ctx context.Context, pdfPath string) (string, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("file not found: %s", pdfPath)
		}
		return "", fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	out, err := runCommand(ctx, p.bin, "-layout", pdfPath, "-")
	if err != nil {
		return "", fmt.Errorf("converting %s with pdftotext: %w", pdfPath, err)
	}
	return string(out), nil
}
