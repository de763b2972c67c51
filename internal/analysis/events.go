// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analysis

import "github.com/pdiddy/paper-analyst/pkg/types"

// Stage names a point in a pipeline run.
type Stage string

const (
	StageIndexing     Stage = "indexing"
	StageIndexed      Stage = "indexed"
	StageRoleStarted  Stage = "role-started"
	StageRoleFinished Stage = "role-finished"
	StageSynthesis    Stage = "synthesis"
	StageDone         Stage = "done"
)

// Event is one progress notification.
type Event struct {
	RunID string
	Stage Stage

	// Role is set for role events.
	Role types.Role

	// Err holds the failure message of a finished role, if any.
	Err string

	// Chunks is set on StageIndexed.
	Chunks int
}

// Observer receives progress events. Role events arrive from the worker
// goroutines, so an Observer must be safe for concurrent use.
type Observer func(Event)

func (p *Pipeline) emit(e Event) {
	if p.observer != nil {
		p.observer(e)
	}
}
