// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// chunk is one retrievable unit of document text.
type chunk struct {
	section string
	page    int
	text    string
}

// section represents the text under one heading.
type section struct {
	heading string
	body    string
	page    int
}

// chunkDocument splits text by heading, then splits each section into
// windows of at most size bytes, with overlap bytes shared between adjacent
// windows of the same section.
func chunkDocument(text string, size, overlap int) []chunk {
	var chunks []chunk
	for _, sec := range chunkByHeadings(text) {
		for _, w := range splitWindows(sec.body, size, overlap) {
			chunks = append(chunks, chunk{section: sec.heading, page: sec.page, text: w})
		}
	}
	return chunks
}

// chunkByHeadings splits Markdown into sections based on heading boundaries
// (## or ###). Each section carries the heading text and the body up to the
// next heading. Page numbers are tracked from HTML comments like
// <!-- page 3 --> and form feeds emitted by pdftotext.
func chunkByHeadings(content string) []section {
	lines := strings.Split(content, "\n")
	var sections []section
	currentHeading := ""
	currentPage := 0
	sectionPage := 0
	var bodyLines []string

	flush := func() {
		body := strings.Join(bodyLines, "\n")
		if strings.TrimSpace(body) != "" {
			sections = append(sections, section{
				heading: currentHeading,
				body:    body,
				page:    sectionPage,
			})
		}
		bodyLines = nil
	}

	for _, line := range lines {
		if n := strings.Count(line, "\f"); n > 0 {
			if currentPage == 0 {
				currentPage = 1
			}
			currentPage += n
			line = strings.ReplaceAll(line, "\f", "")
		}
		trimmed := strings.TrimSpace(line)

		if page, ok := parsePageMarker(trimmed); ok {
			currentPage = page
			if len(bodyLines) == 0 {
				sectionPage = page
			}
			continue
		}

		if isHeading(trimmed) {
			flush()
			currentHeading = stripHeadingPrefix(trimmed)
			sectionPage = currentPage
			continue
		}

		if len(bodyLines) == 0 && sectionPage == 0 {
			sectionPage = currentPage
		}
		bodyLines = append(bodyLines, line)
	}

	flush()
	return sections
}

// isHeading returns true if the line starts with ## or ###.
func isHeading(line string) bool {
	return strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ")
}

// stripHeadingPrefix removes the leading # characters and whitespace.
func stripHeadingPrefix(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "#"))
}

// parsePageMarker extracts the page number from an HTML comment like <!-- page 3 -->.
func parsePageMarker(line string) (int, bool) {
	if !strings.HasPrefix(line, "<!-- page ") || !strings.HasSuffix(line, " -->") {
		return 0, false
	}
	inner := strings.TrimPrefix(line, "<!-- page ")
	inner = strings.TrimSuffix(inner, " -->")
	var page int
	if _, err := fmt.Sscanf(inner, "%d", &page); err != nil {
		return 0, false
	}
	return page, true
}

// splitWindows cuts text into pieces of at most size bytes, preferring to
// break at whitespace. Consecutive pieces share roughly overlap bytes,
// rounded forward to the next word start.
func splitWindows(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var out []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			if piece := strings.TrimSpace(text[start:]); piece != "" {
				out = append(out, piece)
			}
			break
		}

		if i := strings.LastIndexAny(text[start:end], " \n\t"); i > 0 {
			end = start + i
		} else {
			for end > start+1 && !utf8.RuneStart(text[end]) {
				end--
			}
		}

		if piece := strings.TrimSpace(text[start:end]); piece != "" {
			out = append(out, piece)
		}

		next := end - overlap
		if next <= start {
			next = end
		} else if j := strings.IndexAny(text[next:end], " \n\t"); j >= 0 {
			next += j + 1
		} else {
			for next < end && !utf8.RuneStart(text[next]) {
				next++
			}
		}
		start = next
	}
	return out
}
