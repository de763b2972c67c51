// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pdiddy/paper-analyst/pkg/types"
)

func openAlexConfig() types.AcquisitionConfig {
	return types.AcquisitionConfig{
		HTTPConfig: types.HTTPConfig{UserAgent: "paper-analyst-test/0.1"},
	}
}

func TestResolveOpenAlex(t *testing.T) {
	tests := []struct {
		name     string
		response string
		status   int
		want     string
		wantErr  bool
	}{
		{
			name:     "best location PDF",
			response: `{"best_oa_location":{"is_oa":true,"pdf_url":"https://example.com/best.pdf"}}`,
			status:   http.StatusOK,
			want:     "https://example.com/best.pdf",
		},
		{
			name: "best location without PDF falls back to other OA locations",
			response: `{"best_oa_location":{"is_oa":true,"pdf_url":"","landing_page_url":"https://example.com/landing"},
				"locations":[{"is_oa":false,"pdf_url":"https://paywall.example.com/p.pdf"},
				             {"is_oa":true,"pdf_url":"https://repo.example.org/preprint.pdf"}]}`,
			status: http.StatusOK,
			want:   "https://repo.example.org/preprint.pdf",
		},
		{
			name:     "oa_url used when it is a PDF",
			response: `{"best_oa_location":null,"open_access":{"is_oa":true,"oa_url":"https://example.com/Paper.PDF"}}`,
			status:   http.StatusOK,
			want:     "https://example.com/Paper.PDF",
		},
		{
			name:     "oa_url landing page ignored",
			response: `{"best_oa_location":null,"open_access":{"is_oa":true,"oa_url":"https://example.com/abstract"}}`,
			status:   http.StatusOK,
			want:     "",
		},
		{
			name:     "closed access",
			response: `{"best_oa_location":null,"locations":[{"is_oa":false,"pdf_url":"https://paywall.example.com/p.pdf"}],"open_access":{"is_oa":false}}`,
			status:   http.StatusOK,
			want:     "",
		},
		{
			name:     "malformed JSON",
			response: `{"best_oa_location":`,
			status:   http.StatusOK,
			wantErr:  true,
		},
		{
			name:     "unknown DOI",
			response: `{"error":"not found"}`,
			status:   http.StatusNotFound,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotUA string
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath, gotUA = r.URL.Path, r.Header.Get("User-Agent")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.response)
			}))
			defer ts.Close()

			origBase := openAlexAPIBase
			openAlexAPIBase = ts.URL + "/works/"
			defer func() { openAlexAPIBase = origBase }()

			got, err := resolveOpenAlex(context.Background(), ts.Client(), "10.1145/ABC.123", openAlexConfig())
			if gotPath != "/works/doi:10.1145/abc.123" {
				t.Errorf("request path = %q, want lowercased doi: lookup", gotPath)
			}
			if gotUA != "paper-analyst-test/0.1" {
				t.Errorf("User-Agent = %q", gotUA)
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveOpenAlex: %v", err)
			}
			if got != tt.want {
				t.Errorf("resolveOpenAlex() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveOpenAlexCanceled(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	origBase := openAlexAPIBase
	openAlexAPIBase = ts.URL + "/works/"
	defer func() { openAlexAPIBase = origBase }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := resolveOpenAlex(ctx, ts.Client(), "10.1145/1234567", openAlexConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if called {
		t.Error("no request should be sent after cancellation")
	}
}

func TestResolveOpenAlexNetworkError(t *testing.T) {
	origBase := openAlexAPIBase
	openAlexAPIBase = "http://127.0.0.1:1/"
	defer func() { openAlexAPIBase = origBase }()

	if _, err := resolveOpenAlex(context.Background(), http.DefaultClient, "10.1145/1234567", openAlexConfig()); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}

// An open-access link that turns out to be dead is a download failure for
// that paper, reported with the link that was tried.
func TestDownloadDOIDeadOpenAccessLink(t *testing.T) {
	var tsURL string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/openalex/") {
			fmt.Fprintf(w, `{"best_oa_location":{"is_oa":true,"pdf_url":"%s/gone/paper.pdf"}}`, tsURL)
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()
	tsURL = ts.URL
	defer overrideBaseURLs(ts.URL)()

	var buf bytes.Buffer
	_, _, err := Download(context.Background(), ts.Client(), "10.1145/1234567.1234568", testConfig(t.TempDir()), &buf)

	var df *DownloadFailure
	if !errors.As(err, &df) {
		t.Fatalf("err = %v, want *DownloadFailure", err)
	}
	if df.URL != ts.URL+"/gone/paper.pdf" {
		t.Errorf("DownloadFailure.URL = %q, want the open-access link", df.URL)
	}
}
