// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citation

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-analyst/pkg/types"
)

// FormatBibTeX renders rec as an @article entry. Placeholder authors are
// left out; empty venue and DOI fields are omitted.
func FormatBibTeX(rec types.BibliographicRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@article{%s,\n", BibKey(rec))
	fmt.Fprintf(&b, "  title = {%s},\n", bibEscape(rec.Title))
	if authors := knownAuthors(rec.Authors); len(authors) > 0 {
		fmt.Fprintf(&b, "  author = {%s},\n", bibEscape(strings.Join(authors, " and ")))
	}
	if rec.Venue != "" {
		fmt.Fprintf(&b, "  journal = {%s},\n", bibEscape(rec.Venue))
	}
	if rec.DOI != "" {
		fmt.Fprintf(&b, "  doi = {%s},\n", bibEscape(rec.DOI))
	}
	fmt.Fprintf(&b, "  year = {%s}\n}", bibEscape(rec.Year))
	return b.String()
}

// BibKey is the lowercase first-author surname followed by the year, or
// "paper" when no surname is known.
func BibKey(rec types.BibliographicRecord) string {
	var surname string
	if authors := knownAuthors(rec.Authors); len(authors) > 0 {
		name := parseAuthorName(authors[0])
		surname = name.Family
		if surname == "" {
			surname = name.Literal
		}
	}
	key := asciiLetters(strings.ToLower(surname))
	if key == "" {
		key = "paper"
	}
	if rec.Year != NotAvailable {
		key += digits(rec.Year)
	}
	return key
}

func knownAuthors(authors []string) []string {
	var out []string
	for _, a := range authors {
		if a != "" && a != NotAvailable {
			out = append(out, a)
		}
	}
	return out
}

func asciiLetters(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// bibEscape drops braces that would unbalance the field.
func bibEscape(s string) string {
	return strings.NewReplacer("{", "", "}", "").Replace(s)
}

// CSLItem is a bibliographic entry in CSL (Citation Style Language) form,
// consumable by Pandoc and reference managers.
type CSLItem struct {
	ID     string    `yaml:"id"`
	Type   string    `yaml:"type"`
	Title  string    `yaml:"title"`
	Author []CSLName `yaml:"author,omitempty"`
	Issued *CSLDate  `yaml:"issued,omitempty"`
	Venue  string    `yaml:"container-title,omitempty"`
	DOI    string    `yaml:"DOI,omitempty"`
}

// CSLName is a person's name in CSL form.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate is a date in CSL date-parts form.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// FormatCSL writes records as a CSL-YAML list to w.
func FormatCSL(records []types.BibliographicRecord, w io.Writer) error {
	items := make([]CSLItem, len(records))
	for i, r := range records {
		items[i] = ToCSLItem(r)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

// ToCSLItem converts rec, keyed like its BibTeX entry.
func ToCSLItem(rec types.BibliographicRecord) CSLItem {
	item := CSLItem{
		ID:    BibKey(rec),
		Type:  "article-journal",
		Title: rec.Title,
		Venue: rec.Venue,
		DOI:   rec.DOI,
	}
	for _, a := range knownAuthors(rec.Authors) {
		item.Author = append(item.Author, parseAuthorName(a))
	}
	if y, err := strconv.Atoi(rec.Year); err == nil {
		item.Issued = &CSLDate{DateParts: [][]int{{y}}}
	}
	return item
}

// parseAuthorName splits on the last space: the last token is the family
// name. Single-token names use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{
		Given:  name[:idx],
		Family: name[idx+1:],
	}
}
