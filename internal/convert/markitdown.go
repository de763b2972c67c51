// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pdiddy/paper-analyst/internal/container"
)

// DefaultMarkitdownImage is used when the config names no image.
const DefaultMarkitdownImage = "markitdown:latest"

// MarkitdownConverter pipes PDFs through a markitdown container image run by
// docker or podman.
type MarkitdownConverter struct {
	runtime container.Runtime
	image   string
}

// NewMarkitdownConverter checks that image is present in rt before
// returning. An empty image selects DefaultMarkitdownImage.
func NewMarkitdownConverter(ctx context.Context, rt container.Runtime, image string) (*MarkitdownConverter, error) {
	if image == "" {
		image = DefaultMarkitdownImage
	}
	if err := rt.ImageExists(ctx, image); err != nil {
		return nil, fmt.Errorf("%s image not available in %s (build or pull it first): %w", image, rt.Name(), err)
	}
	return &MarkitdownConverter{runtime: rt, image: image}, nil
}

// Convert streams the PDF at pdfPath into the container and returns the
// tidied Markdown. Output with no text wraps ErrEmptyDocument.
func (m *MarkitdownConverter) Convert(ctx context.Context, pdfPath string) (string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := m.runtime.Run(ctx, m.image, f, &out); err != nil {
		return "", fmt.Errorf("converting %s in %s: %w", pdfPath, m.runtime.Name(), err)
	}

	text := tidyMarkdown(out.String())
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("markitdown in %s produced no text for %s: %w", m.runtime.Name(), pdfPath, ErrEmptyDocument)
	}
	return text, nil
}

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// tidyMarkdown normalizes line endings, strips trailing spaces, and collapses
// runs of blank lines left by PDF layout. Form feeds are kept as page breaks.
func tidyMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	s = blankRunRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.Trim(s, "\n") + "\n"
}
