// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/knowledge"
	"github.com/pdiddy/paper-analyst/internal/llm"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

// QueryToolName is the name agents use to query the paper.
const QueryToolName = "research_paper_query_tool"

// QueryTool exposes a knowledge.Retriever to an agent.
type QueryTool struct {
	retriever knowledge.Retriever
	topK      int
}

// NewQueryTool wraps r. A non-positive topK uses knowledge.DefaultTopK.
func NewQueryTool(r knowledge.Retriever, topK int) *QueryTool {
	if topK <= 0 {
		topK = knowledge.DefaultTopK
	}
	return &QueryTool{retriever: r, topK: topK}
}

func (t *QueryTool) Name() string { return QueryToolName }

func (t *QueryTool) Description() string {
	return "A tool for querying specific information from the indexed research paper. Input is a natural-language question."
}

// Call retrieves passages for input and renders them as numbered text.
func (t *QueryTool) Call(ctx context.Context, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "The query was empty. Provide a question about the paper.", nil
	}
	passages, err := t.retriever.Retrieve(ctx, input, t.topK)
	if err != nil {
		return "", err
	}
	return FormatPassages(passages), nil
}

// FormatPassages renders passages as numbered blocks with their section and
// page when known.
func FormatPassages(passages []types.Passage) string {
	if len(passages) == 0 {
		return "No relevant passages found."
	}
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d]", i+1)
		switch {
		case p.Section != "" && p.Page > 0:
			fmt.Fprintf(&b, " (%s, p. %d)", p.Section, p.Page)
		case p.Section != "":
			fmt.Fprintf(&b, " (%s)", p.Section)
		case p.Page > 0:
			fmt.Fprintf(&b, " (p. %d)", p.Page)
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(p.Text))
	}
	return b.String()
}

// NewSpecialist builds the tool-using agent for role over retriever.
func NewSpecialist(role types.Role, completer llm.Completer, retriever knowledge.Retriever, cfg types.AgentConfig, logger *zap.Logger) (*ToolAgent, error) {
	system, err := RolePrompt(role)
	if err != nil {
		return nil, err
	}
	return NewToolAgent(string(role), system, completer,
		[]Tool{NewQueryTool(retriever, knowledge.DefaultTopK)},
		WithMaxToolCalls(cfg.MaxToolCalls),
		WithVerbose(cfg.Verbose),
		WithLogger(logger),
	), nil
}
