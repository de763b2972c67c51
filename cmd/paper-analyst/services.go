package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/acquire"
	"github.com/pdiddy/paper-analyst/internal/analysis"
	"github.com/pdiddy/paper-analyst/internal/citation"
	"github.com/pdiddy/paper-analyst/internal/convert"
	"github.com/pdiddy/paper-analyst/internal/knowledge"
	"github.com/pdiddy/paper-analyst/internal/llm"
	"github.com/pdiddy/paper-analyst/internal/scout"
	"github.com/pdiddy/paper-analyst/internal/secrets"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

// providerSecret maps a provider name to its key file.
func providerSecret(provider string) string {
	switch provider {
	case types.ProviderAnthropic:
		return secrets.AnthropicAPIKey
	case types.ProviderGemini:
		return secrets.GeminiAPIKey
	default:
		return secrets.MistralAPIKey
	}
}

func newCompleter(ctx context.Context) (llm.Completer, error) {
	c := cfg.LLM
	if c.APIKey == "" {
		key, err := keys.Require(providerSecret(c.Provider))
		if err != nil {
			return nil, err
		}
		c.APIKey = key
	}
	return llm.NewCompleter(ctx, c, logger)
}

// newEmbedder returns nil for provider "none"; retrieval is then lexical.
func newEmbedder(ctx context.Context) (llm.Embedder, error) {
	c := cfg.Embedding
	if c.Provider != types.ProviderNone && c.APIKey == "" {
		key, err := keys.Require(providerSecret(c.Provider))
		if err != nil {
			return nil, err
		}
		c.APIKey = key
	}
	return llm.NewEmbedder(ctx, c, logger)
}

// progressObserver prints pipeline stages to w.
func progressObserver(w io.Writer) analysis.Observer {
	var mu sync.Mutex
	return func(e analysis.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch e.Stage {
		case analysis.StageIndexing:
			fmt.Fprintln(w, "indexing document...")
		case analysis.StageIndexed:
			fmt.Fprintf(w, "indexed %d chunks\n", e.Chunks)
		case analysis.StageRoleStarted:
			fmt.Fprintf(w, "  %s: started\n", e.Role)
		case analysis.StageRoleFinished:
			if e.Err != "" {
				fmt.Fprintf(w, "  %s: failed (%s)\n", e.Role, e.Err)
			} else {
				fmt.Fprintf(w, "  %s: done\n", e.Role)
			}
		case analysis.StageSynthesis:
			fmt.Fprintln(w, "synthesizing report...")
		}
	}
}

// newPipeline wires the completer, embedder and knowledge base builder into
// an analysis pipeline configured by ac.
func newPipeline(ctx context.Context, completer llm.Completer, ac types.AnalysisConfig, progress io.Writer) (*analysis.Pipeline, error) {
	embedder, err := newEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	builder := knowledge.NewBuilder(embedder, cfg.Knowledge, cfg.Embedding.BatchSize, logger)
	opts := []analysis.Option{analysis.WithLogger(logger)}
	if progress != nil {
		opts = append(opts, analysis.WithObserver(progressObserver(progress)))
	}
	return analysis.New(builder, completer, ac, cfg.Agent, opts...), nil
}

func newScout(completer llm.Completer) (*scout.Scout, error) {
	sc := cfg.Scout
	if sc.TavilyAPIKey == "" {
		sc.TavilyAPIKey = keys.Get(secrets.TavilyAPIKey)
	}
	return scout.NewFromConfig(completer, sc, cfg.Agent, logger)
}

func newCiter(completer llm.Completer) *citation.Extractor {
	return citation.NewFromCompleter(completer, logger)
}

func httpClient() *http.Client {
	return &http.Client{Timeout: cfg.Acquisition.Timeout}
}

// loadDocument reads path, building a converter only when the file is not
// already text.
func loadDocument(ctx context.Context, path string) (types.Document, error) {
	if _, err := os.Stat(path); err != nil {
		return types.Document{}, fmt.Errorf("file not found: %s", path)
	}
	var conv convert.Converter
	if convert.NeedsConversion(path) {
		c, err := convert.New(ctx, cfg.Conversion)
		if err != nil {
			return types.Document{}, err
		}
		conv = c
	}
	return convert.LoadDocument(ctx, conv, path)
}

// fetcher downloads and converts papers by URL, writing progress to w.
type fetcher struct {
	client *http.Client
	conv   convert.Converter
	w      io.Writer
}

func newFetcher(ctx context.Context, w io.Writer) (*fetcher, error) {
	conv, err := convert.New(ctx, cfg.Conversion)
	if err != nil {
		return nil, err
	}
	return &fetcher{client: httpClient(), conv: conv, w: w}, nil
}

// Fetch downloads identifier (URL, arXiv ID, or DOI) and loads its text.
func (f *fetcher) Fetch(ctx context.Context, identifier string) (types.Document, error) {
	paper, _, err := acquire.Download(ctx, f.client, identifier, cfg.Acquisition, f.w)
	if err != nil {
		return types.Document{}, err
	}
	return f.Document(ctx, *paper)
}

// Document converts an already downloaded paper.
func (f *fetcher) Document(ctx context.Context, paper types.Paper) (types.Document, error) {
	doc, err := convert.PaperDocument(ctx, f.conv, paper, cfg.Acquisition.PapersDir, f.w)
	if err != nil {
		return types.Document{}, err
	}
	logger.Debug("paper loaded", zap.String("paper", paper.ID), zap.Int("chars", len(doc.Text)))
	return doc, nil
}
