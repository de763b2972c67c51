// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analysis runs the paper analysis pipeline: build a knowledge base
// over the document, run one specialist agent per role concurrently over it,
// then merge the role reports with a single synthesis completion.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paper-analyst/internal/agent"
	"github.com/pdiddy/paper-analyst/internal/knowledge"
	"github.com/pdiddy/paper-analyst/internal/llm"
	"github.com/pdiddy/paper-analyst/internal/logging"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

// ErrIncompleteReport means a role had no outcome after fan-in.
var ErrIncompleteReport = errors.New("role report is incomplete")

// SynthesisError reports a failed synthesis completion. No partial report
// is returned with it.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// AgentFactory builds the agent for role over a shared retriever.
type AgentFactory func(role types.Role, r knowledge.Retriever) (agent.ReasoningAgent, error)

// Pipeline analyzes documents. A Pipeline holds no per-run state and may
// serve concurrent runs.
type Pipeline struct {
	builder  *knowledge.Builder
	llm      llm.Completer
	factory  AgentFactory
	roles    []types.Role
	cfg      types.AnalysisConfig
	observer Observer
	logger   *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAgentFactory replaces the specialist constructor.
func WithAgentFactory(f AgentFactory) Option {
	return func(p *Pipeline) { p.factory = f }
}

// WithRoles sets the roster. The default is types.Roles.
func WithRoles(roles []types.Role) Option {
	return func(p *Pipeline) { p.roles = roles }
}

// WithObserver registers a progress callback.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logging.OrNop(l) }
}

// New creates a Pipeline. Specialists are tool-using agents over the
// document index unless WithAgentFactory overrides them.
func New(builder *knowledge.Builder, completer llm.Completer, cfg types.AnalysisConfig, agentCfg types.AgentConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		builder: builder,
		llm:     completer,
		roles:   types.Roles,
		cfg:     cfg,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.factory == nil {
		logger := p.logger
		p.factory = func(role types.Role, r knowledge.Retriever) (agent.ReasoningAgent, error) {
			return agent.NewSpecialist(role, completer, r, agentCfg, logger)
		}
	}
	return p
}

// Run analyzes doc in the configured mode.
func (p *Pipeline) Run(ctx context.Context, doc types.Document) (*types.AnalysisResult, error) {
	if p.cfg.Mode == types.ModeSingle {
		return p.Comprehensive(ctx, doc)
	}
	return p.Analyze(ctx, doc)
}

// Analyze runs the multi-agent pipeline on doc. Indexing and synthesis
// failures are returned; a failing specialist only degrades its section.
func (p *Pipeline) Analyze(ctx context.Context, doc types.Document) (*types.AnalysisResult, error) {
	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", runID))
	started := time.Now()

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	idx, err := p.index(ctx, runID, doc, logger)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	report, err := p.fanOut(ctx, runID, idx, logger)
	if err != nil {
		return nil, err
	}

	prompt, err := BuildSynthesisPrompt(doc, report, p.roles)
	if err != nil {
		return nil, err
	}

	p.emit(Event{RunID: runID, Stage: StageSynthesis})
	logger.Info("synthesizing report", zap.Int("failed_roles", report.Failures()))
	text, err := p.llm.Complete(ctx, llm.Request{System: synthesisSystem, Prompt: prompt})
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &SynthesisError{Err: fmt.Errorf("model returned an empty report")}
	}

	result := &types.AnalysisResult{
		RunID:     runID,
		Title:     doc.Name,
		Source:    doc.Source,
		Mode:      types.ModeAgents,
		Sections:  report.Ordered(p.roles),
		Report:    text,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	p.emit(Event{RunID: runID, Stage: StageDone})
	logger.Info("analysis complete", zap.Duration("duration", result.Duration))
	return result, nil
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, p.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (p *Pipeline) index(ctx context.Context, runID string, doc types.Document, logger *zap.Logger) (*knowledge.Index, error) {
	p.emit(Event{RunID: runID, Stage: StageIndexing})
	logger.Info("building knowledge base", zap.String("document", doc.Name), zap.Int("chars", len(doc.Text)))

	idx, err := p.builder.Build(ctx, doc.Text)
	if err != nil {
		return nil, err
	}
	stats := idx.Stats()
	p.emit(Event{RunID: runID, Stage: StageIndexed, Chunks: stats.Chunks})
	logger.Debug("knowledge base ready",
		zap.Int("chunks", stats.Chunks),
		zap.Int("sections", stats.Sections),
		zap.Bool("vector", stats.Vector),
	)
	return idx, nil
}

// fanOut runs one agent per role with bounded concurrency. Each task owns
// one slot of outcomes and never returns an error, so a failing role cannot
// cancel its siblings.
func (p *Pipeline) fanOut(ctx context.Context, runID string, r knowledge.Retriever, logger *zap.Logger) (types.RoleReport, error) {
	agents := make([]agent.ReasoningAgent, len(p.roles))
	tasks := make([]string, len(p.roles))
	for i, role := range p.roles {
		task, err := agent.RoleTask(role)
		if err != nil {
			return nil, err
		}
		a, err := p.factory(role, r)
		if err != nil {
			return nil, fmt.Errorf("creating %s agent: %w", role, err)
		}
		agents[i], tasks[i] = a, task
	}

	limit := len(p.roles)
	if p.cfg.MaxConcurrency > 0 && p.cfg.MaxConcurrency < limit {
		limit = p.cfg.MaxConcurrency
	}

	outcomes := make([]types.RoleOutcome, len(p.roles))
	var g errgroup.Group
	g.SetLimit(max(limit, 1))
	for i, role := range p.roles {
		g.Go(func() error {
			outcomes[i] = p.runRole(ctx, runID, role, agents[i], tasks[i], logger)
			return nil
		})
	}
	g.Wait()

	report := make(types.RoleReport, len(p.roles))
	for _, o := range outcomes {
		if o.Role != "" {
			report[o.Role] = o
		}
	}
	if missing := report.Missing(p.roles); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %v", ErrIncompleteReport, missing)
	}
	return report, nil
}

func (p *Pipeline) runRole(ctx context.Context, runID string, role types.Role, a agent.ReasoningAgent, task string, logger *zap.Logger) (out types.RoleOutcome) {
	p.emit(Event{RunID: runID, Stage: StageRoleStarted, Role: role})
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out = types.RoleOutcome{Role: role, Err: fmt.Sprintf("panic: %v", r), Failed: true}
		}
		if out.Failed {
			logger.Warn("specialist failed", zap.String("role", string(role)), zap.String("error", out.Err))
		} else {
			logger.Debug("specialist finished", zap.String("role", string(role)), zap.Duration("took", time.Since(start)))
		}
		p.emit(Event{RunID: runID, Stage: StageRoleFinished, Role: role, Err: out.Err})
	}()

	text, err := a.Run(ctx, task)
	if err != nil {
		return types.RoleOutcome{Role: role, Err: err.Error(), Failed: true}
	}
	return types.RoleOutcome{Role: role, Text: text}
}

// Comprehensive answers the five-section analysis prompt in one completion
// over passages retrieved for each section.
func (p *Pipeline) Comprehensive(ctx context.Context, doc types.Document) (*types.AnalysisResult, error) {
	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", runID))
	started := time.Now()

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	idx, err := p.index(ctx, runID, doc, logger)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	passages, err := gatherPassages(ctx, idx, comprehensiveQueries, knowledge.DefaultTopK)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	prompt, err := BuildComprehensivePrompt(doc, passages)
	if err != nil {
		return nil, err
	}

	p.emit(Event{RunID: runID, Stage: StageSynthesis})
	logger.Info("running comprehensive query", zap.Int("passages", len(passages)))
	text, err := p.llm.Complete(ctx, llm.Request{System: synthesisSystem, Prompt: prompt})
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &SynthesisError{Err: fmt.Errorf("model returned an empty report")}
	}

	p.emit(Event{RunID: runID, Stage: StageDone})
	return &types.AnalysisResult{
		RunID:     runID,
		Title:     doc.Name,
		Source:    doc.Source,
		Mode:      types.ModeSingle,
		Report:    text,
		StartedAt: started,
		Duration:  time.Since(started),
	}, nil
}
