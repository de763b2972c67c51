// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ConversionStatus indicates the state of text extraction for a paper.
type ConversionStatus string

const (
	ConversionNone   ConversionStatus = "none"
	ConversionDone   ConversionStatus = "converted"
	ConversionFailed ConversionStatus = "failed"
)

// Paper holds metadata and file paths for a downloaded paper.
type Paper struct {
	// ID is a slug derived from the paper identifier (e.g. "2301.07041").
	ID string `json:"id" yaml:"id"`

	// SourceURL is the URL from which the paper was downloaded.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// PDFPath is the local filesystem path to the downloaded PDF.
	PDFPath string `json:"pdf_path" yaml:"pdf_path"`

	// Title is the paper title, when metadata was available.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Date is the publication or preprint date.
	Date time.Time `json:"date,omitempty" yaml:"date,omitempty"`

	// Abstract is the paper abstract.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Source identifies how the PDF was resolved (e.g. "arxiv", "doi", "url").
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// ConversionStatus tracks whether the PDF text has been extracted.
	ConversionStatus ConversionStatus `json:"conversion_status" yaml:"conversion_status"`
}

// DisplayName returns the title when known and the ID otherwise.
func (p Paper) DisplayName() string {
	if p.Title != "" {
		return p.Title
	}
	return p.ID
}
