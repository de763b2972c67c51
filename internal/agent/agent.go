// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package agent implements the reasoning agents the pipeline runs: a bounded
// tool-using loop and a single-shot completion. Both satisfy ReasoningAgent,
// so callers can substitute deterministic fakes.
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-analyst/internal/llm"
	"github.com/pdiddy/paper-analyst/internal/logging"
)

// DefaultMaxToolCalls bounds the number of tool invocations per Run.
const DefaultMaxToolCalls = 5

// ReasoningAgent produces free text for a task.
type ReasoningAgent interface {
	Run(ctx context.Context, task string) (string, error)
}

// Tool is a capability an agent may invoke by name.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input string) (string, error)
}

// AgentError reports a failed agent run.
type AgentError struct {
	Agent string
	Err   error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %s: %v", e.Agent, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// Option configures a ToolAgent.
type Option func(*ToolAgent)

// WithMaxToolCalls sets the tool-call bound. Non-positive values are ignored.
func WithMaxToolCalls(n int) Option {
	return func(a *ToolAgent) {
		if n > 0 {
			a.maxToolCalls = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *ToolAgent) { a.logger = logging.OrNop(l) }
}

// WithVerbose logs every prompt and reply at debug level.
func WithVerbose(v bool) Option {
	return func(a *ToolAgent) { a.verbose = v }
}

// ToolAgent runs a bounded Action/Answer loop against a completer. Each
// reply either names a tool to call or gives the final answer. When the
// tool-call bound is reached the model is asked once more for an answer
// with no tools.
type ToolAgent struct {
	name         string
	system       string
	llm          llm.Completer
	tools        []Tool
	maxToolCalls int
	verbose      bool
	logger       *zap.Logger
}

// NewToolAgent creates a ToolAgent.
func NewToolAgent(name, system string, completer llm.Completer, tools []Tool, opts ...Option) *ToolAgent {
	a := &ToolAgent{
		name:         name,
		system:       system,
		llm:          completer,
		tools:        tools,
		maxToolCalls: DefaultMaxToolCalls,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the agent's name, used in errors and logs.
func (a *ToolAgent) Name() string { return a.name }

// step is one tool invocation recorded in the scratchpad.
type step struct {
	Tool        string
	Input       string
	Observation string
}

// Run executes the loop for task.
func (a *ToolAgent) Run(ctx context.Context, task string) (string, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return "", &AgentError{Agent: a.name, Err: fmt.Errorf("task is empty")}
	}

	var steps []step
	for len(steps) < a.maxToolCalls {
		prompt, err := renderStepPrompt(task, a.tools, steps, a.maxToolCalls-len(steps))
		if err != nil {
			return "", &AgentError{Agent: a.name, Err: err}
		}
		reply, err := a.complete(ctx, prompt)
		if err != nil {
			return "", &AgentError{Agent: a.name, Err: fmt.Errorf("completion: %w", err)}
		}

		d := parseDecision(reply)
		if d.answer {
			if d.text == "" {
				return "", &AgentError{Agent: a.name, Err: fmt.Errorf("model returned an empty answer")}
			}
			a.logger.Debug("agent answered",
				zap.String("agent", a.name),
				zap.Int("tool_calls", len(steps)),
			)
			return d.text, nil
		}

		obs, err := a.invoke(ctx, d.tool, d.input)
		if err != nil {
			return "", &AgentError{Agent: a.name, Err: err}
		}
		steps = append(steps, step{Tool: d.tool, Input: d.input, Observation: obs})
	}

	a.logger.Debug("tool-call bound reached, requesting final answer",
		zap.String("agent", a.name),
		zap.Int("tool_calls", len(steps)),
	)
	prompt, err := renderFinalPrompt(task, steps)
	if err != nil {
		return "", &AgentError{Agent: a.name, Err: err}
	}
	reply, err := a.complete(ctx, prompt)
	if err != nil {
		return "", &AgentError{Agent: a.name, Err: fmt.Errorf("final completion: %w", err)}
	}
	text := finalText(reply)
	if text == "" {
		return "", &AgentError{Agent: a.name, Err: fmt.Errorf("model returned an empty answer")}
	}
	return text, nil
}

func (a *ToolAgent) complete(ctx context.Context, prompt string) (string, error) {
	if a.verbose {
		a.logger.Debug("prompt", zap.String("agent", a.name), zap.String("text", prompt))
	}
	reply, err := a.llm.Complete(ctx, llm.Request{System: a.system, Prompt: prompt})
	if err == nil && a.verbose {
		a.logger.Debug("reply", zap.String("agent", a.name), zap.String("text", reply))
	}
	return reply, err
}

// invoke calls the named tool. An unknown tool becomes an observation so
// the model can correct itself.
func (a *ToolAgent) invoke(ctx context.Context, name, input string) (string, error) {
	for _, t := range a.tools {
		if !strings.EqualFold(t.Name(), name) {
			continue
		}
		a.logger.Debug("calling tool",
			zap.String("agent", a.name),
			zap.String("tool", t.Name()),
			zap.String("input", logging.Truncate(input, 120)),
		)
		out, err := t.Call(ctx, input)
		if err != nil {
			return "", fmt.Errorf("tool %s: %w", t.Name(), err)
		}
		return out, nil
	}

	names := make([]string, len(a.tools))
	for i, t := range a.tools {
		names[i] = t.Name()
	}
	if len(names) == 0 {
		return fmt.Sprintf("Unknown tool %q. No tools are available; reply with Answer:.", name), nil
	}
	return fmt.Sprintf("Unknown tool %q. Available tools: %s.", name, strings.Join(names, ", ")), nil
}

// SingleShotAgent answers with one completion and no tools.
type SingleShotAgent struct {
	name   string
	system string
	llm    llm.Completer
}

// NewSingleShotAgent creates a SingleShotAgent.
func NewSingleShotAgent(name, system string, completer llm.Completer) *SingleShotAgent {
	return &SingleShotAgent{name: name, system: system, llm: completer}
}

// Run sends task as the prompt.
func (a *SingleShotAgent) Run(ctx context.Context, task string) (string, error) {
	reply, err := a.llm.Complete(ctx, llm.Request{System: a.system, Prompt: task})
	if err != nil {
		return "", &AgentError{Agent: a.name, Err: fmt.Errorf("completion: %w", err)}
	}
	text := llm.StripThinkBlocks(reply)
	if text == "" {
		return "", &AgentError{Agent: a.name, Err: fmt.Errorf("model returned an empty answer")}
	}
	return text, nil
}
