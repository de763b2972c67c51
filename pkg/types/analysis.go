// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paper-analyst pipeline:
// documents, roles and their reports, analysis results, bibliographic records,
// acquired papers, and the configuration of every component.
package types

import (
	"fmt"
	"time"
)

// Document is the extracted text of one source file or URL. It is immutable
// once produced and lives for a single pipeline run.
type Document struct {
	// Name is a display name, usually the file's base name or the paper title.
	Name string `json:"name" yaml:"name"`

	// Source is the local path or URL the text was extracted from.
	Source string `json:"source" yaml:"source"`

	// Text is the extracted content. Pages and sections are not distinguished.
	Text string `json:"-" yaml:"-"`
}

// Role identifies one analytical perspective assigned to a specialist agent.
type Role string

const (
	RoleMethodology Role = "methodology"
	RoleResults     Role = "results"
	RoleCitations   Role = "citations"
	RoleFutureWork  Role = "future-work"
)

// Roles lists the configured roster in report order.
var Roles = []Role{RoleMethodology, RoleResults, RoleCitations, RoleFutureWork}

// Title returns the heading used for the role in prompts and reports.
func (r Role) Title() string {
	switch r {
	case RoleMethodology:
		return "Methodology"
	case RoleResults:
		return "Results"
	case RoleCitations:
		return "Citations"
	case RoleFutureWork:
		return "Future Work"
	default:
		return string(r)
	}
}

// RoleOutcome is the tagged result of one specialist run. Failed is set when
// the agent errored; Text then holds nothing and Err carries the message.
type RoleOutcome struct {
	Role   Role   `json:"role" yaml:"role"`
	Text   string `json:"text,omitempty" yaml:"text,omitempty"`
	Err    string `json:"error,omitempty" yaml:"error,omitempty"`
	Failed bool   `json:"failed" yaml:"failed"`
}

// SynthesisText returns what the synthesis step sees for this role: the
// specialist text, or an inline error placeholder for a failed role.
func (o RoleOutcome) SynthesisText() string {
	if o.Failed {
		return fmt.Sprintf("[error: %s]", o.Err)
	}
	return o.Text
}

// RoleReport maps each configured role to its outcome.
type RoleReport map[Role]RoleOutcome

// Complete reports whether every role in roles has an entry.
func (r RoleReport) Complete(roles []Role) bool {
	for _, role := range roles {
		if _, ok := r[role]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the roles in roles that have no entry.
func (r RoleReport) Missing(roles []Role) []Role {
	var missing []Role
	for _, role := range roles {
		if _, ok := r[role]; !ok {
			missing = append(missing, role)
		}
	}
	return missing
}

// Ordered returns the outcomes in the order given by roles.
func (r RoleReport) Ordered(roles []Role) []RoleOutcome {
	out := make([]RoleOutcome, 0, len(roles))
	for _, role := range roles {
		if o, ok := r[role]; ok {
			out = append(out, o)
		}
	}
	return out
}

// Failures counts the failed outcomes.
func (r RoleReport) Failures() int {
	n := 0
	for _, o := range r {
		if o.Failed {
			n++
		}
	}
	return n
}

// AnalysisResult is the terminal output of one pipeline run.
type AnalysisResult struct {
	// RunID identifies the run in logs.
	RunID string `json:"run_id" yaml:"run_id"`

	// Title is the document display name.
	Title string `json:"title" yaml:"title"`

	// Source is the path or URL of the analyzed document.
	Source string `json:"source" yaml:"source"`

	// Mode records which analysis mode produced the report.
	Mode AnalysisMode `json:"mode" yaml:"mode"`

	// Sections holds the per-role outcomes in roster order. Empty in single mode.
	Sections []RoleOutcome `json:"sections,omitempty" yaml:"sections,omitempty"`

	// Report is the final synthesized Markdown report.
	Report string `json:"report" yaml:"report"`

	// Citation is set when a bibliographic record was requested and extracted.
	Citation *BibliographicRecord `json:"citation,omitempty" yaml:"citation,omitempty"`

	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// BibliographicRecord holds citation fields parsed from a model response.
type BibliographicRecord struct {
	Title   string   `json:"title" yaml:"title"`
	Authors []string `json:"authors" yaml:"authors"`
	Year    string   `json:"year" yaml:"year"`
	Venue   string   `json:"venue,omitempty" yaml:"venue,omitempty"`
	DOI     string   `json:"doi,omitempty" yaml:"doi,omitempty"`
}

// Passage is a chunk of document text returned by a retrieval.
type Passage struct {
	// ChunkID is the zero-based position of the chunk in the document.
	ChunkID int `json:"chunk_id" yaml:"chunk_id"`

	// Section is the heading under which the chunk was found, if any.
	Section string `json:"section,omitempty" yaml:"section,omitempty"`

	// Page is the page marker in effect at the chunk, or 0 when unknown.
	Page int `json:"page,omitempty" yaml:"page,omitempty"`

	Text string `json:"text" yaml:"text"`

	// Score is the similarity (vector mode) or negated bm25 rank (lexical mode).
	// Higher is better in both modes.
	Score float64 `json:"score" yaml:"score"`
}
