// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/paper-analyst/pkg/types"
)

// openAlexAPIBase is the OpenAlex works endpoint. Tests point it at an
// httptest server.
var openAlexAPIBase = "https://api.openalex.org/works/"

// openAlexWork holds the fields of an OpenAlex work that locate a free copy.
type openAlexWork struct {
	BestOALocation *openAlexLocation  `json:"best_oa_location"`
	Locations      []openAlexLocation `json:"locations"`
	OpenAccess     struct {
		IsOA  bool   `json:"is_oa"`
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
}

type openAlexLocation struct {
	IsOA       bool   `json:"is_oa"`
	PDFURL     string `json:"pdf_url"`
	LandingURL string `json:"landing_page_url"`
}

// pdfURL picks the first open-access PDF link: the best location, then any
// other open-access location, then oa_url when it points at a PDF.
func (w openAlexWork) pdfURL() string {
	if w.BestOALocation != nil && w.BestOALocation.PDFURL != "" {
		return w.BestOALocation.PDFURL
	}
	for _, loc := range w.Locations {
		if loc.IsOA && loc.PDFURL != "" {
			return loc.PDFURL
		}
	}
	if w.OpenAccess.IsOA && strings.HasSuffix(strings.ToLower(w.OpenAccess.OAURL), ".pdf") {
		return w.OpenAccess.OAURL
	}
	return ""
}

// resolveOpenAlex returns an open-access PDF URL for doi, or "" when
// OpenAlex knows of none. Lookup failures are returned so callers can fall
// back to doi.org.
func resolveOpenAlex(ctx context.Context, client *http.Client, doi string, cfg types.AcquisitionConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := apiGet(ctx, client, openAlexAPIBase+"doi:"+strings.ToLower(doi), cfg.UserAgent, "OpenAlex API")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var work openAlexWork
	if err := json.NewDecoder(resp.Body).Decode(&work); err != nil {
		return "", fmt.Errorf("parsing OpenAlex response for %s: %w", doi, err)
	}
	return work.pdfURL(), nil
}
