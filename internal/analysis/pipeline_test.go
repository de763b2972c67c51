// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/paper-analyst/internal/agent"
	"github.com/pdiddy/paper-analyst/internal/knowledge"
	"github.com/pdiddy/paper-analyst/internal/llm"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose view worker starts in init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const testPaper = `Sparse Routing for Mixture of Experts

## Method
We route each token to two experts chosen by a learned gating network.
The router is trained with an auxiliary load balancing loss.

## Results
On the language modeling benchmark the model reaches 12.1 perplexity,
a 9 percent improvement over the dense baseline at equal compute.

## Related Work
Unlike switch transformers we keep two experts per token.

## Conclusion
Future work includes routing across devices and studying the limitations of
expert collapse.`

var testDoc = types.Document{Name: "sparse-routing.pdf", Source: "/tmp/sparse-routing.pdf", Text: testPaper}

type agentFunc func(ctx context.Context, task string) (string, error)

func (f agentFunc) Run(ctx context.Context, task string) (string, error) { return f(ctx, task) }

// callLog records the order of agent and completion calls.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func newBuilder() *knowledge.Builder {
	return knowledge.NewBuilder(nil, types.KnowledgeBaseConfig{}, 0, nil)
}

// echoFactory returns agents that answer with their role name.
func echoFactory(log *callLog, fail map[types.Role]error) AgentFactory {
	return func(role types.Role, _ knowledge.Retriever) (agent.ReasoningAgent, error) {
		return agentFunc(func(context.Context, string) (string, error) {
			log.add(string(role))
			if err := fail[role]; err != nil {
				return "", err
			}
			return "findings for " + string(role), nil
		}), nil
	}
}

func recordingCompleter(log *callLog, prompts *[]string, reply string, err error) llm.Completer {
	return llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		log.add("synthesis")
		*prompts = append(*prompts, req.Prompt)
		return reply, err
	})
}

func TestAnalyzeAllRolesPresent(t *testing.T) {
	var log callLog
	var prompts []string
	p := New(newBuilder(), recordingCompleter(&log, &prompts, "## 1. Abstract Summary\nDone.", nil),
		types.AnalysisConfig{}, types.AgentConfig{}, WithAgentFactory(echoFactory(&log, nil)))

	res, err := p.Analyze(context.Background(), testDoc)
	require.NoError(t, err)

	assert.Equal(t, types.ModeAgents, res.Mode)
	assert.Equal(t, "sparse-routing.pdf", res.Title)
	assert.Equal(t, "## 1. Abstract Summary\nDone.", res.Report)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Sections, len(types.Roles))
	for i, role := range types.Roles {
		assert.Equal(t, role, res.Sections[i].Role)
		assert.False(t, res.Sections[i].Failed)
		assert.Equal(t, "findings for "+string(role), res.Sections[i].Text)
	}
	require.Len(t, prompts, 1)
	for _, role := range types.Roles {
		assert.Contains(t, prompts[0], "### "+role.Title()+" Analysis\nfindings for "+string(role))
	}
}

func TestSynthesisRunsOnceAfterAllRoles(t *testing.T) {
	var log callLog
	var prompts []string
	p := New(newBuilder(), recordingCompleter(&log, &prompts, "report", nil),
		types.AnalysisConfig{}, types.AgentConfig{}, WithAgentFactory(echoFactory(&log, nil)))

	_, err := p.Analyze(context.Background(), testDoc)
	require.NoError(t, err)

	calls := log.snapshot()
	require.Len(t, calls, len(types.Roles)+1)
	assert.Equal(t, "synthesis", calls[len(calls)-1])
	n := 0
	for _, c := range calls {
		if c == "synthesis" {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestAnalyzeOneRoleFails(t *testing.T) {
	var log callLog
	var prompts []string
	fail := map[types.Role]error{
		types.RoleResults: &agent.AgentError{Agent: "results", Err: errors.New("boom")},
	}
	p := New(newBuilder(), recordingCompleter(&log, &prompts, "report", nil),
		types.AnalysisConfig{}, types.AgentConfig{}, WithAgentFactory(echoFactory(&log, fail)))

	res, err := p.Analyze(context.Background(), testDoc)
	require.NoError(t, err)

	require.Len(t, res.Sections, 4)
	failed := res.Sections[1]
	assert.Equal(t, types.RoleResults, failed.Role)
	assert.True(t, failed.Failed)
	assert.Empty(t, failed.Text)
	assert.Contains(t, failed.Err, "boom")
	assert.Equal(t, "findings for methodology", res.Sections[0].Text)
	assert.Equal(t, "findings for future-work", res.Sections[3].Text)

	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "### Results Analysis\n[error: "+failed.Err+"]")
}

func TestAnalyzeRecoversAgentPanic(t *testing.T) {
	var prompts []string
	var log callLog
	factory := func(role types.Role, _ knowledge.Retriever) (agent.ReasoningAgent, error) {
		return agentFunc(func(context.Context, string) (string, error) {
			if role == types.RoleCitations {
				panic("nil map")
			}
			return "ok", nil
		}), nil
	}
	p := New(newBuilder(), recordingCompleter(&log, &prompts, "report", nil),
		types.AnalysisConfig{}, types.AgentConfig{}, WithAgentFactory(factory))

	res, err := p.Analyze(context.Background(), testDoc)
	require.NoError(t, err)
	assert.True(t, res.Sections[2].Failed)
	assert.Equal(t, "panic: nil map", res.Sections[2].Err)
}

func TestIndexingFailureSkipsSpecialists(t *testing.T) {
	var created atomic.Int32
	factory := func(types.Role, knowledge.Retriever) (agent.ReasoningAgent, error) {
		created.Add(1)
		return agentFunc(func(context.Context, string) (string, error) { return "x", nil }), nil
	}
	var log callLog
	var prompts []string
	p := New(newBuilder(), recordingCompleter(&log, &prompts, "report", nil),
		types.AnalysisConfig{}, types.AgentConfig{}, WithAgentFactory(factory))

	res, err := p.Analyze(context.Background(), types.Document{Name: "empty.pdf", Text: "  \n "})
	assert.Nil(t, res)
	var ie *knowledge.IndexingError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "chunk", ie.Stage)
	assert.Zero(t, created.Load())
	assert.Empty(t, log.snapshot())
}

func TestSynthesisFailure(t *testing.T) {
	cause := errors.New("upstream 500")
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"completion error", "", cause},
		{"empty reply", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log callLog
			var prompts []string
			p := New(newBuilder(), recordingCompleter(&log, &prompts, tt.reply, tt.err),
				types.AnalysisConfig{}, types.AgentConfig{}, WithAgentFactory(echoFactory(&log, nil)))

			res, err := p.Analyze(context.Background(), testDoc)
			assert.Nil(t, res)
			var se *SynthesisError
			require.ErrorAs(t, err, &se)
			if tt.err != nil {
				assert.ErrorIs(t, err, cause)
			}
		})
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	run := func() (string, []types.Role) {
		var log callLog
		var prompts []string
		p := New(newBuilder(), recordingCompleter(&log, &prompts, "report", nil),
			types.AnalysisConfig{MaxConcurrency: 3}, types.AgentConfig{}, WithAgentFactory(echoFactory(&log, nil)))
		res, err := p.Analyze(context.Background(), testDoc)
		require.NoError(t, err)
		require.Len(t, prompts, 1)
		var roles []types.Role
		for _, s := range res.Sections {
			roles = append(roles, s.Role)
		}
		return prompts[0], roles
	}

	firstPrompt, firstRoles := run()
	secondPrompt, secondRoles := run()
	if diff := cmp.Diff(firstPrompt, secondPrompt); diff != "" {
		t.Errorf("synthesis prompt changed between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(firstRoles, secondRoles); diff != "" {
		t.Errorf("role keys changed between runs (-first +second):\n%s", diff)
	}
}

func TestMaxConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	factory := func(types.Role, knowledge.Retriever) (agent.ReasoningAgent, error) {
		return agentFunc(func(context.Context, string) (string, error) {
			n := active.Add(1)
			defer active.Add(-1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			return "ok", nil
		}), nil
	}
	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) { return "report", nil })
	p := New(newBuilder(), completer, types.AnalysisConfig{MaxConcurrency: 2}, types.AgentConfig{},
		WithAgentFactory(factory))

	_, err := p.Analyze(context.Background(), testDoc)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestAnalyzeTimeout(t *testing.T) {
	factory := func(types.Role, knowledge.Retriever) (agent.ReasoningAgent, error) {
		return agentFunc(func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}), nil
	}
	completer := llm.CompleterFunc(func(ctx context.Context, _ llm.Request) (string, error) {
		return "", ctx.Err()
	})
	p := New(newBuilder(), completer, types.AnalysisConfig{Timeout: 200 * time.Millisecond}, types.AgentConfig{},
		WithAgentFactory(factory))

	res, err := p.Analyze(context.Background(), testDoc)
	assert.Nil(t, res)
	var se *SynthesisError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAgentFactoryError(t *testing.T) {
	factory := func(role types.Role, _ knowledge.Retriever) (agent.ReasoningAgent, error) {
		return nil, fmt.Errorf("no prompt for %s", role)
	}
	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		t.Fatal("synthesis must not run")
		return "", nil
	})
	p := New(newBuilder(), completer, types.AnalysisConfig{}, types.AgentConfig{}, WithAgentFactory(factory))

	_, err := p.Analyze(context.Background(), testDoc)
	assert.ErrorContains(t, err, "creating methodology agent")
}

func TestUnknownRoleRejected(t *testing.T) {
	var log callLog
	var prompts []string
	p := New(newBuilder(), recordingCompleter(&log, &prompts, "report", nil),
		types.AnalysisConfig{}, types.AgentConfig{},
		WithAgentFactory(echoFactory(&log, nil)),
		WithRoles([]types.Role{types.RoleMethodology, "astrology"}))

	_, err := p.Analyze(context.Background(), testDoc)
	assert.Error(t, err)
	assert.Empty(t, log.snapshot())
}

func TestObserverEvents(t *testing.T) {
	var mu sync.Mutex
	counts := make(map[Stage]int)
	observer := func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		counts[e.Stage]++
	}
	var log callLog
	var prompts []string
	p := New(newBuilder(), recordingCompleter(&log, &prompts, "report", nil),
		types.AnalysisConfig{}, types.AgentConfig{},
		WithAgentFactory(echoFactory(&log, nil)), WithObserver(observer))

	_, err := p.Analyze(context.Background(), testDoc)
	require.NoError(t, err)

	want := map[Stage]int{
		StageIndexing:     1,
		StageIndexed:      1,
		StageRoleStarted:  4,
		StageRoleFinished: 4,
		StageSynthesis:    1,
		StageDone:         1,
	}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("event counts (-want +got):\n%s", diff)
	}
}

func TestDefaultFactoryUsesSpecialists(t *testing.T) {
	// Every specialist answers directly, then synthesis runs.
	var calls atomic.Int32
	completer := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		calls.Add(1)
		if req.System == synthesisSystem {
			return "final report", nil
		}
		return "Answer: the paper uses two experts per token.", nil
	})
	p := New(newBuilder(), completer, types.AnalysisConfig{}, types.AgentConfig{})

	res, err := p.Analyze(context.Background(), testDoc)
	require.NoError(t, err)
	assert.Equal(t, "final report", res.Report)
	assert.Equal(t, int32(len(types.Roles)+1), calls.Load())
	for _, s := range res.Sections {
		assert.Equal(t, "the paper uses two experts per token.", s.Text)
	}
}

func TestComprehensive(t *testing.T) {
	var got []string
	completer := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		got = append(got, req.Prompt)
		return "single report", nil
	})
	p := New(newBuilder(), completer, types.AnalysisConfig{Mode: types.ModeSingle}, types.AgentConfig{},
		WithAgentFactory(func(types.Role, knowledge.Retriever) (agent.ReasoningAgent, error) {
			t.Fatal("single mode must not create specialists")
			return nil, nil
		}))

	res, err := p.Run(context.Background(), testDoc)
	require.NoError(t, err)
	assert.Equal(t, types.ModeSingle, res.Mode)
	assert.Empty(t, res.Sections)
	assert.Equal(t, "single report", res.Report)

	require.Len(t, got, 1)
	assert.True(t, strings.HasSuffix(got[0], ComprehensivePrompt))
	assert.Contains(t, got[0], `Context from the paper "sparse-routing.pdf"`)
	assert.Contains(t, got[0], "12.1 perplexity")
}

func TestBuildSynthesisPrompt(t *testing.T) {
	report := types.RoleReport{
		types.RoleMethodology: {Role: types.RoleMethodology, Text: "  two experts  "},
		types.RoleResults:     {Role: types.RoleResults, Err: "agent results: timeout", Failed: true},
	}
	roles := []types.Role{types.RoleMethodology, types.RoleResults}

	got, err := BuildSynthesisPrompt(types.Document{Name: "Paper"}, report, roles)
	require.NoError(t, err)

	want := `You are compiling the final analysis of the paper "Paper".
Specialist analysts have each studied one aspect of the paper. Their reports follow.

### Methodology Analysis
two experts

### Results Analysis
[error: agent results: timeout]

Using only the reports above, write one coherent report.

` + ComprehensivePrompt + `

If a report above is an [error: ...] placeholder, state that this part of the analysis is unavailable. Do not invent content for it.`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("prompt (-want +got):\n%s", diff)
	}

	_, err = BuildSynthesisPrompt(types.Document{}, report, types.Roles)
	assert.ErrorIs(t, err, ErrIncompleteReport)
}

type stubRetriever map[string][]types.Passage

func (s stubRetriever) Retrieve(_ context.Context, q string, _ int) ([]types.Passage, error) {
	return s[q], nil
}

func TestGatherPassages(t *testing.T) {
	r := stubRetriever{
		"a": {{ChunkID: 4, Text: "four"}, {ChunkID: 1, Text: "one"}},
		"b": {{ChunkID: 1, Text: "one"}, {ChunkID: 2, Text: "two"}},
	}
	got, err := gatherPassages(context.Background(), r, []string{"a", "b", "c"}, 3)
	require.NoError(t, err)

	var ids []int
	for _, p := range got {
		ids = append(ids, p.ChunkID)
	}
	assert.Equal(t, []int{1, 2, 4}, ids)
}
