// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scout proposes candidate papers for a research topic. A
// search-grounded agent answers with PDF links, one per line; the caller
// keeps the lines that look like URLs.
package scout

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/agent"
	"github.com/pdiddy/paper-analyst/internal/llm"
	"github.com/pdiddy/paper-analyst/internal/logging"
	"github.com/pdiddy/paper-analyst/internal/search"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

// Prompt is the scout's system prompt.
const Prompt = `You are a highly skilled research scout for an AI research team.
Your sole purpose is to find the most relevant and recent research papers based on a user's query.
You must use your search tools to find 2 of the most relevant papers from the last 2-3 years, prioritizing sources like arxiv.org.

If the user's query is very broad (e.g., 'Software Engineering', 'Machine Learning'), refine your search to look for 'survey papers' or 'review articles' on that topic.

Your final answer MUST be ONLY a list of direct links to the PDF versions of these papers, separated by newlines. Do not add any commentary or explanation.

Example final answer:
https://arxiv.org/pdf/2305.12345.pdf
https://arxiv.org/pdf/2401.54321.pdf`

// Tool names offered to the scout.
const (
	WebSearchTool      = "web_search"
	ArxivSearchTool    = "arxiv_search"
	SemanticSearchTool = "semantic_scholar_search"
)

// Scout runs the discovery agent.
type Scout struct {
	agent  agent.ReasoningAgent
	logger *zap.Logger
}

// New returns a Scout backed by a.
func New(a agent.ReasoningAgent, logger *zap.Logger) *Scout {
	return &Scout{agent: a, logger: logging.OrNop(logger)}
}

// NewFromConfig builds the search tools named by cfg and a tool-using agent
// over them. Web search is enabled when a Tavily key is present.
func NewFromConfig(completer llm.Completer, cfg types.ScoutConfig, agentCfg types.AgentConfig, logger *zap.Logger) (*Scout, error) {
	logger = logging.OrNop(logger)
	tools := Tools(cfg, &http.Client{Timeout: 30 * time.Second}, logger)
	if len(tools) == 0 {
		return nil, fmt.Errorf("no search tools configured: set tavily-api-key or enable arxiv or semantic scholar search")
	}
	a := agent.NewToolAgent("scout", Prompt, completer, tools,
		agent.WithMaxToolCalls(agentCfg.MaxToolCalls),
		agent.WithVerbose(agentCfg.Verbose),
		agent.WithLogger(logger),
	)
	return New(a, logger), nil
}

// Tools returns the search tools enabled by cfg, in a fixed order.
func Tools(cfg types.ScoutConfig, client *http.Client, logger *zap.Logger) []agent.Tool {
	var tools []agent.Tool
	if strings.TrimSpace(cfg.TavilyAPIKey) != "" {
		tv := search.NewTavily(cfg.TavilyAPIKey, cfg.SearchDepth, cfg.MaxResults, client, logger)
		tools = append(tools, search.NewTool(WebSearchTool,
			"Search the web. Input is a search query; results include URLs and PDF links when known.", tv))
	}
	if cfg.EnableArxiv {
		ax := &search.Arxiv{Client: client, UserAgent: cfg.UserAgent, MaxResults: cfg.MaxResults}
		tools = append(tools, search.NewTool(ArxivSearchTool,
			"Search arXiv preprints. Input is a few keywords; results include PDF links.", ax))
	}
	if cfg.EnableSemanticScholar {
		ss := &search.SemanticScholar{
			Client:     client,
			APIKey:     cfg.SemanticScholarAPIKey,
			UserAgent:  cfg.UserAgent,
			MaxResults: cfg.MaxResults,
			MinYear:    time.Now().Year() - 3,
		}
		tools = append(tools, search.NewTool(SemanticSearchTool,
			"Search Semantic Scholar for papers from the last three years. Input is a few keywords.", ss))
	}
	return tools
}

// FormatQuery scopes topic to arXiv for web search.
func FormatQuery(topic string) string {
	return strings.TrimSpace(topic) + " site:arxiv.org"
}

// Run returns the agent's raw answer for topic.
func (s *Scout) Run(ctx context.Context, topic string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", fmt.Errorf("topic is empty")
	}
	query := FormatQuery(topic)
	s.logger.Info("scouting", zap.String("query", query))

	out, err := s.agent.Run(ctx, query)
	if err != nil {
		return "", err
	}
	return out, nil
}

// Discover runs the scout and returns the proposed PDF URLs in order.
func (s *Scout) Discover(ctx context.Context, topic string) ([]string, error) {
	raw, err := s.Run(ctx, topic)
	if err != nil {
		return nil, err
	}
	urls := Candidates(raw)
	s.logger.Info("scout finished", zap.Int("urls", len(urls)))
	return urls, nil
}

// Candidates extracts the URLs from a scout answer and rewrites arXiv
// abstract links to PDF links.
func Candidates(raw string) []string {
	urls := ParseURLs(raw)
	for i, u := range urls {
		urls[i] = NormalizePDFURL(u)
	}
	return dedupe(urls)
}

// ParseURLs keeps the lines of text whose trimmed form begins with "http",
// in order, dropping duplicates. Other lines are discarded.
func ParseURLs(text string) []string {
	var urls []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http") {
			urls = append(urls, line)
		}
	}
	return dedupe(urls)
}

// NormalizePDFURL rewrites an arXiv abstract page link to its PDF link.
func NormalizePDFURL(u string) string {
	if strings.Contains(u, "arxiv.org/abs/") {
		return strings.Replace(u, "/abs/", "/pdf/", 1)
	}
	return u
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
