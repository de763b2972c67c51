// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/pdiddy/paper-analyst/internal/llm"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

// Role system prompts.
const (
	methodologyPrompt = `You are a world-class expert in scientific methodology.
Your sole purpose is to analyze the 'Methods' section of the provided research paper.
Break down the methodology, experimental setup, and any datasets used. Be critical and precise in your analysis.`

	resultsPrompt = `You are a data-driven analyst.
Your only job is to scrutinize the 'Results' and 'Discussion' sections of the paper.
Summarize the key findings, reported performance metrics, and the authors' interpretation of the results.`

	citationsPrompt = `You are a seasoned academic with a deep knowledge of this field.
Your task is to analyze the 'Introduction' and 'Related Work' sections.
Identify the 2-3 most foundational papers cited and explain why they are critical for understanding this work's context.`

	futureWorkPrompt = `You are a creative and forward-thinking researcher.
Your goal is to find opportunities for new research based on the 'Conclusion' and 'Future Work' sections.
List the potential research gaps, open questions, and suggested next steps identified by the authors.`
)

var rolePrompts = map[types.Role]string{
	types.RoleMethodology: methodologyPrompt,
	types.RoleResults:     resultsPrompt,
	types.RoleCitations:   citationsPrompt,
	types.RoleFutureWork:  futureWorkPrompt,
}

var roleTasks = map[types.Role]string{
	types.RoleMethodology: "Analyze the methodology of this paper: the overall approach, the experimental setup, and the datasets used.",
	types.RoleResults:     "Summarize the key results of this paper, including the reported performance metrics and how the authors interpret them.",
	types.RoleCitations:   "Identify the 2-3 most foundational papers this work cites and explain why each is critical to understanding it.",
	types.RoleFutureWork:  "List the research gaps, open questions and next steps suggested by this paper's conclusion and future work.",
}

// RolePrompt returns the system prompt for role.
func RolePrompt(role types.Role) (string, error) {
	p, ok := rolePrompts[role]
	if !ok {
		return "", fmt.Errorf("unknown role %q", role)
	}
	return p, nil
}

// RoleTask returns the fixed task string for role.
func RoleTask(role types.Role) (string, error) {
	t, ok := roleTasks[role]
	if !ok {
		return "", fmt.Errorf("unknown role %q", role)
	}
	return t, nil
}

var stepTmpl = template.Must(template.New("step").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`{{.Task}}

You can use these tools:
{{range .Tools}}- {{.Name}}: {{.Description}}
{{end}}
To use a tool, reply with exactly two lines and nothing else:
Action: <tool name>
Input: <tool input>

When you have enough information, reply with:
Answer: <your final answer>
{{if .Steps}}
Previous steps:
{{range $i, $s := .Steps}}
Step {{inc $i}}
Action: {{$s.Tool}}
Input: {{$s.Input}}
Observation:
{{$s.Observation}}
{{end}}{{end}}
Tool calls remaining: {{.Remaining}}
`))

var finalTmpl = template.Must(template.New("final").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`{{.Task}}
{{if .Steps}}
Information gathered so far:
{{range $i, $s := .Steps}}
Step {{inc $i}} ({{$s.Tool}}: {{$s.Input}})
{{$s.Observation}}
{{end}}{{end}}
You cannot use any more tools. Write your final answer now.
`))

type toolView struct {
	Name        string
	Description string
}

func renderStepPrompt(task string, tools []Tool, steps []step, remaining int) (string, error) {
	views := make([]toolView, len(tools))
	for i, t := range tools {
		views[i] = toolView{Name: t.Name(), Description: t.Description()}
	}
	var b strings.Builder
	err := stepTmpl.Execute(&b, struct {
		Task      string
		Tools     []toolView
		Steps     []step
		Remaining int
	}{task, views, steps, remaining})
	if err != nil {
		return "", fmt.Errorf("rendering step prompt: %w", err)
	}
	return b.String(), nil
}

func renderFinalPrompt(task string, steps []step) (string, error) {
	var b strings.Builder
	err := finalTmpl.Execute(&b, struct {
		Task  string
		Steps []step
	}{task, steps})
	if err != nil {
		return "", fmt.Errorf("rendering final prompt: %w", err)
	}
	return b.String(), nil
}

// decision is a parsed model reply.
type decision struct {
	answer bool
	text   string
	tool   string
	input  string
}

var (
	actionRe = regexp.MustCompile(`(?im)^\s*Action\s*:\s*(.+?)\s*$`)
	inputRe  = regexp.MustCompile(`(?is)^\s*Input\s*:\s*(.*)$`)
	answerRe = regexp.MustCompile(`(?im)^\s*(?:Final\s+)?Answer\s*:\s*`)
	obsRe    = regexp.MustCompile(`(?im)^\s*Observation\s*:`)
)

// parseDecision reads a reply. Whichever of Action or Answer appears first
// wins. A reply with neither is taken as the answer itself.
func parseDecision(reply string) decision {
	text := llm.StripThinkBlocks(reply)

	act := actionRe.FindStringSubmatchIndex(text)
	ans := answerRe.FindStringIndex(text)

	if act != nil && (ans == nil || act[0] < ans[0]) {
		tool := strings.Trim(text[act[2]:act[3]], "`*\"' ")
		rest := text[act[1]:]
		// Models sometimes invent the observation; drop it.
		if loc := obsRe.FindStringIndex(rest); loc != nil {
			rest = rest[:loc[0]]
		}
		if loc := answerRe.FindStringIndex(rest); loc != nil {
			rest = rest[:loc[0]]
		}
		var input string
		if m := inputRe.FindStringSubmatch(strings.TrimLeft(rest, "\r\n")); m != nil {
			input = strings.TrimSpace(m[1])
		}
		return decision{tool: tool, input: input}
	}
	if ans != nil {
		return decision{answer: true, text: strings.TrimSpace(text[ans[1]:])}
	}
	return decision{answer: true, text: text}
}

// finalText strips an optional Answer: prefix from a forced final reply.
func finalText(reply string) string {
	text := llm.StripThinkBlocks(reply)
	if loc := answerRe.FindStringIndex(text); loc != nil && strings.TrimSpace(text[:loc[0]]) == "" {
		return strings.TrimSpace(text[loc[1]:])
	}
	return text
}
