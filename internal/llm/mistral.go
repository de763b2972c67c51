// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/httputil"
	"github.com/pdiddy/paper-analyst/internal/logging"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

// mistralBaseURL is the Mistral API root. Package-level var for test substitution.
var mistralBaseURL = "https://api.mistral.ai"

const (
	defaultMistralModel      = "mistral-small-latest"
	defaultMistralEmbedModel = "mistral-embed"
	defaultMaxTokens         = 4096
)

// Mistral calls the Mistral chat completions and embeddings endpoints.
type Mistral struct {
	apiKey     string
	model      string
	embedModel string
	baseURL    string
	maxTokens  int
	retrier    httputil.Retrier
	logger     *zap.Logger
}

// NewMistral creates a client. Zero fields in cfg take the defaults
// (mistral-small-latest, 240s timeout).
func NewMistral(apiKey string, cfg types.LLMConfig, logger *zap.Logger) *Mistral {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 240 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = defaultMistralModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = mistralBaseURL
	}
	logger = logging.OrNop(logger)
	return &Mistral{
		apiKey:     apiKey,
		model:      model,
		embedModel: defaultMistralEmbedModel,
		baseURL:    baseURL,
		maxTokens:  maxTokens,
		retrier: httputil.Retrier{
			Client:     &http.Client{Timeout: timeout},
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		},
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mistralChatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type mistralChatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type mistralEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type mistralEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Complete sends one chat completion.
func (m *Mistral) Complete(ctx context.Context, req Request) (string, error) {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	maxTokens := m.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	var out mistralChatResponse
	if err := m.post(ctx, "/v1/chat/completions", mistralChatRequest{
		Model:     m.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}, &out); err != nil {
		return "", err
	}

	if len(out.Choices) == 0 {
		return "", fmt.Errorf("mistral returned no choices")
	}
	return StripThinkBlocks(out.Choices[0].Message.Content), nil
}

// Embed embeds texts in one request and returns vectors in input order.
func (m *Mistral) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var out mistralEmbedResponse
	if err := m.post(ctx, "/v1/embeddings", mistralEmbedRequest{
		Model: m.embedModel,
		Input: texts,
	}, &out); err != nil {
		return nil, err
	}

	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("mistral returned %d embeddings for %d inputs", len(out.Data), len(texts))
	}
	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })

	vectors := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func (m *Mistral) post(ctx context.Context, path string, body, out any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	start := time.Now()
	resp, err := m.retrier.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("calling Mistral API: %w", err)
	}
	defer resp.Body.Close()

	m.logger.Debug("mistral request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if err := httputil.CheckStatus("Mistral API", resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding Mistral response: %w", err)
	}
	return nil
}
