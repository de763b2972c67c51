// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package web serves a browser UI and a small JSON API over the analysis
// pipeline, the scout, and the citation extractor.
package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/citation"
	"github.com/pdiddy/paper-analyst/internal/logging"
	"github.com/pdiddy/paper-analyst/internal/scout"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

// User-facing error messages. Details go to the log, never the response.
const (
	MsgAnalyzeFailed = "An error occurred while analyzing the paper."
	MsgExploreFailed = "An error occurred while exploring the topic."
	MsgNoFile        = "Please upload a PDF file."
	MsgNoTopic       = "Please enter a research topic."
	MsgInvalidURL    = "Invalid URL."
)

const defaultMaxUpload = 32 << 20

//go:embed index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

// Analyzer runs the analysis pipeline on a document.
type Analyzer interface {
	Run(ctx context.Context, doc types.Document) (*types.AnalysisResult, error)
}

// Explorer returns the scout's raw answer for a topic.
type Explorer interface {
	Run(ctx context.Context, topic string) (string, error)
}

// Citer extracts a bibliographic record from document text.
type Citer interface {
	Extract(ctx context.Context, text string) (types.BibliographicRecord, error)
}

// LoadFunc turns a local file into a Document.
type LoadFunc func(ctx context.Context, path string) (types.Document, error)

// FetchFunc downloads the paper at a URL and returns its Document.
type FetchFunc func(ctx context.Context, rawURL string) (types.Document, error)

// Deps are the services behind the handlers. A nil service disables its
// endpoints with 503.
type Deps struct {
	Analyzer Analyzer
	Explorer Explorer
	Citer    Citer
	Load     LoadFunc
	Fetch    FetchFunc
}

// Server holds the HTTP handlers.
type Server struct {
	deps      Deps
	maxUpload int64
	logger    *zap.Logger
}

// New creates a Server. cfg.MaxUploadBytes caps multipart bodies.
func New(deps Deps, cfg types.ServeConfig, logger *zap.Logger) *Server {
	limit := cfg.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	return &Server{deps: deps, maxUpload: limit, logger: logging.OrNop(logger)}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/explore", s.handleExplore)
	mux.HandleFunc("POST /api/analyze-url", s.handleAnalyzeURL)
	mux.HandleFunc("POST /api/cite", s.handleCite)
	return s.logRequests(mux)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web UI listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, struct{ Title string }{"Research Paper Analyst"}); err != nil {
		s.logger.Error("rendering index", zap.Error(err))
	}
}

type analyzeResponse struct {
	Report string `json:"report"`
	Title  string `json:"title,omitempty"`
}

type exploreResponse struct {
	URLs []string `json:"urls"`
	Raw  string   `json:"raw"`
}

type citeResponse struct {
	BibTeX string `json:"bibtex"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyzer == nil || s.deps.Load == nil {
		writeError(w, http.StatusServiceUnavailable, "Analysis is not configured.")
		return
	}
	doc, status, msg := s.loadUpload(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	result, err := s.deps.Analyzer.Run(r.Context(), doc)
	if err != nil {
		s.logger.Error("analysis failed", zap.String("document", doc.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, MsgAnalyzeFailed)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Report: result.Report, Title: result.Title})
}

func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	if s.deps.Explorer == nil {
		writeError(w, http.StatusServiceUnavailable, "Topic exploration is not configured.")
		return
	}
	topic := strings.TrimSpace(requestValue(r, "topic"))
	if topic == "" {
		writeError(w, http.StatusBadRequest, MsgNoTopic)
		return
	}
	raw, err := s.deps.Explorer.Run(r.Context(), topic)
	if err != nil {
		s.logger.Error("exploration failed", zap.String("topic", topic), zap.Error(err))
		writeError(w, http.StatusInternalServerError, MsgExploreFailed)
		return
	}
	urls := scout.Candidates(raw)
	if urls == nil {
		urls = []string{}
	}
	writeJSON(w, http.StatusOK, exploreResponse{URLs: urls, Raw: raw})
}

func (s *Server) handleAnalyzeURL(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyzer == nil || s.deps.Fetch == nil {
		writeError(w, http.StatusServiceUnavailable, "URL analysis is not configured.")
		return
	}
	rawURL := strings.TrimSpace(requestValue(r, "url"))
	if !validHTTPURL(rawURL) {
		writeError(w, http.StatusBadRequest, MsgInvalidURL)
		return
	}
	doc, err := s.deps.Fetch(r.Context(), scout.NormalizePDFURL(rawURL))
	if err != nil {
		s.logger.Error("fetching paper failed", zap.String("url", rawURL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, MsgAnalyzeFailed)
		return
	}
	result, err := s.deps.Analyzer.Run(r.Context(), doc)
	if err != nil {
		s.logger.Error("analysis failed", zap.String("url", rawURL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, MsgAnalyzeFailed)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Report: result.Report, Title: result.Title})
}

// handleCite answers 200 in both outcomes; a failed extraction carries the
// fixed failure message in the error field.
func (s *Server) handleCite(w http.ResponseWriter, r *http.Request) {
	if s.deps.Citer == nil || s.deps.Load == nil {
		writeError(w, http.StatusServiceUnavailable, "Citation extraction is not configured.")
		return
	}
	doc, status, msg := s.loadUpload(r)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	rec, err := s.deps.Citer.Extract(r.Context(), doc.Text)
	if err != nil {
		s.logger.Warn("citation extraction failed", zap.String("document", doc.Name), zap.Error(err))
		writeJSON(w, http.StatusOK, errorResponse{Error: citation.FailureMessage})
		return
	}
	writeJSON(w, http.StatusOK, citeResponse{BibTeX: citation.FormatBibTeX(rec)})
}

// loadUpload stores the "file" part in a temporary file, keeping its
// extension, and loads it. It returns an HTTP status and user message on
// failure.
func (s *Server) loadUpload(r *http.Request) (types.Document, int, string) {
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return types.Document{}, http.StatusBadRequest, MsgNoFile
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return types.Document{}, http.StatusBadRequest, MsgNoFile
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "upload-*"+strings.ToLower(filepath.Ext(header.Filename)))
	if err != nil {
		s.logger.Error("creating upload file", zap.Error(err))
		return types.Document{}, http.StatusInternalServerError, MsgAnalyzeFailed
	}
	defer os.Remove(tmp.Name())

	_, copyErr := io.Copy(tmp, file)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		s.logger.Error("saving upload", zap.Error(err))
		return types.Document{}, http.StatusInternalServerError, MsgAnalyzeFailed
	}

	doc, err := s.deps.Load(r.Context(), tmp.Name())
	if err != nil {
		s.logger.Error("loading upload", zap.String("file", header.Filename), zap.Error(err))
		return types.Document{}, http.StatusInternalServerError, MsgAnalyzeFailed
	}
	if doc.Name == "" || doc.Name == filepath.Base(tmp.Name()) {
		doc.Name = header.Filename
	}
	doc.Source = header.Filename
	return doc, http.StatusOK, ""
}

// requestValue reads key from a JSON object body or from form values.
func requestValue(r *http.Request, key string) string {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body map[string]any
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
			return ""
		}
		v, _ := body[key].(string)
		return v
	}
	return r.FormValue(key)
}

func validHTTPURL(raw string) bool {
	if !strings.HasPrefix(raw, "http") {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
