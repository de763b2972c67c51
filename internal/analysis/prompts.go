// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analysis

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/pdiddy/paper-analyst/internal/knowledge"
	"github.com/pdiddy/paper-analyst/pkg/types"
)

const synthesisSystem = "You are a senior researcher who writes precise, well-structured technical reports for graduate students and researchers."

// ComprehensivePrompt asks for the whole analysis in one answer. The
// synthesis step asks for the same five sections.
const ComprehensivePrompt = `Provide a comprehensive technical analysis of the document for a knowledgeable audience (e.g., graduate students, researchers). Structure your response in Markdown with the following sections, in this exact order:

## 1. Abstract Summary
(A concise summary of the paper's core contributions, methods, and key results, similar to a conference abstract.)

## 2. Core Architecture and Methodology
(Deconstruct the system's architecture and the flow of data or logic. Use bullet points to detail key components and algorithms. Be technically precise.)

## 3. Quantitative Results & Critical Analysis
(Present the main quantitative results in a list or responsive format (NO WIDE TABLES). Provide a brief but critical analysis of what these results mean.)

## 4. Positioning in the Field
(Situate this work by comparing it to 1-2 key alternative approaches mentioned in the paper, highlighting its unique technical differentiators.)

## 5. Proposed Future Research Directions
(Propose 2-3 concrete, technically-grounded hypotheses and experimental ideas for extending this research based on the paper's conclusion or limitations.)`

// comprehensiveQueries retrieve context for each section of
// ComprehensivePrompt.
var comprehensiveQueries = []string{
	"abstract main contributions summary",
	"system architecture method algorithm",
	"quantitative results evaluation benchmark",
	"related work comparison alternative approaches",
	"conclusion limitations future work",
}

var synthesisTmpl = template.Must(template.New("synthesis").Parse(
	`You are compiling the final analysis of the paper "{{.Title}}".
Specialist analysts have each studied one aspect of the paper. Their reports follow.
{{range .Sections}}
### {{.Heading}} Analysis
{{.Body}}
{{end}}
Using only the reports above, write one coherent report.

{{.Instructions}}

If a report above is an [error: ...] placeholder, state that this part of the analysis is unavailable. Do not invent content for it.`))

var comprehensiveTmpl = template.Must(template.New("comprehensive").Parse(
	`Context from the paper "{{.Title}}":
{{range .Passages}}
---
{{.}}
{{end}}---

{{.Instructions}}`))

type synthesisSection struct {
	Heading string
	Body    string
}

// BuildSynthesisPrompt renders the synthesis prompt for report. Sections
// follow roles; a failed role contributes its error placeholder. The same
// inputs always produce the same prompt.
func BuildSynthesisPrompt(doc types.Document, report types.RoleReport, roles []types.Role) (string, error) {
	if missing := report.Missing(roles); len(missing) > 0 {
		return "", fmt.Errorf("%w: missing %v", ErrIncompleteReport, missing)
	}
	sections := make([]synthesisSection, 0, len(roles))
	for _, o := range report.Ordered(roles) {
		sections = append(sections, synthesisSection{
			Heading: o.Role.Title(),
			Body:    strings.TrimSpace(o.SynthesisText()),
		})
	}

	var buf bytes.Buffer
	err := synthesisTmpl.Execute(&buf, struct {
		Title        string
		Sections     []synthesisSection
		Instructions string
	}{displayTitle(doc), sections, ComprehensivePrompt})
	if err != nil {
		return "", fmt.Errorf("rendering synthesis prompt: %w", err)
	}
	return buf.String(), nil
}

// BuildComprehensivePrompt renders ComprehensivePrompt over passages.
func BuildComprehensivePrompt(doc types.Document, passages []types.Passage) (string, error) {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = strings.TrimSpace(p.Text)
	}
	var buf bytes.Buffer
	err := comprehensiveTmpl.Execute(&buf, struct {
		Title        string
		Passages     []string
		Instructions string
	}{displayTitle(doc), texts, ComprehensivePrompt})
	if err != nil {
		return "", fmt.Errorf("rendering comprehensive prompt: %w", err)
	}
	return buf.String(), nil
}

// gatherPassages retrieves topK passages per query and returns the union in
// document order.
func gatherPassages(ctx context.Context, r knowledge.Retriever, queries []string, topK int) ([]types.Passage, error) {
	seen := make(map[int]bool)
	var out []types.Passage
	for _, q := range queries {
		ps, err := r.Retrieve(ctx, q, topK)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if seen[p.ChunkID] {
				continue
			}
			seen[p.ChunkID] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	return out, nil
}

func displayTitle(doc types.Document) string {
	if t := strings.TrimSpace(doc.Name); t != "" {
		return t
	}
	return "untitled"
}
