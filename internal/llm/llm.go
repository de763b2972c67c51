// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm provides completion and embedding clients for the hosted model
// APIs the pipeline consumes. Callers depend on the Completer and Embedder
// interfaces; tests substitute fakes.
package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/pkg/types"
)

// Request is one text-to-text completion.
type Request struct {
	// System is the role prompt. May be empty.
	System string

	// Prompt is the user message.
	Prompt string

	// MaxTokens overrides the client default when positive.
	MaxTokens int
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// NewCompleter builds the completion client named by cfg.Provider.
func NewCompleter(ctx context.Context, cfg types.LLMConfig, logger *zap.Logger) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is missing", cfg.Provider)
	}
	switch cfg.Provider {
	case types.ProviderMistral, "":
		return NewMistral(cfg.APIKey, cfg, logger), nil
	case types.ProviderAnthropic:
		return NewClaude(cfg, logger), nil
	case types.ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model, "", cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q: use mistral, anthropic, or gemini", cfg.Provider)
	}
}

// NewEmbedder builds the embedding client named by cfg.Provider. It returns
// (nil, nil) for provider "none"; the knowledge base then retrieves lexically.
func NewEmbedder(ctx context.Context, cfg types.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if cfg.Provider == types.ProviderNone {
		return nil, nil
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s embeddings: API key is missing", cfg.Provider)
	}
	switch cfg.Provider {
	case types.ProviderMistral, "":
		m := NewMistral(cfg.APIKey, types.LLMConfig{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}, logger)
		if cfg.Model != "" {
			m.embedModel = cfg.Model
		}
		return m, nil
	case types.ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, "", cfg.Model, 0)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q: use mistral, gemini, or none", cfg.Provider)
	}
}

var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinkBlocks removes <think>...</think> blocks that some models emit
// before their answer.
func StripThinkBlocks(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}
