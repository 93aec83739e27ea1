package premium_query

import (
	"premiummeter/pkg/logger"
)

// State is a stage of the query pipeline
type State int

const (
	StateReceived State = iota
	StateValidated
	StateStrikesResolved
	StateCohortsBuilt
	StateAggregated
	StateResponded
	StateEmpty
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidated:
		return "validated"
	case StateStrikesResolved:
		return "strikes_resolved"
	case StateCohortsBuilt:
		return "cohorts_built"
	case StateAggregated:
		return "aggregated"
	case StateResponded:
		return "responded"
	case StateEmpty:
		return "empty"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateResponded || s == StateEmpty || s == StateFailed
}

// pipeline tracks one query through its states. Transitions only move forward.
type pipeline struct {
	kind    string
	state   State
	emptyAt State
	log     *logger.Logger
}

func newPipeline(kind string, log *logger.Logger) *pipeline {
	return &pipeline{kind: kind, state: StateReceived, log: log}
}

func (p *pipeline) advance(next State) {
	if p.state.Terminal() || next <= p.state {
		p.log.Warnw("Ignored pipeline transition", "from", p.state.String(), "to", next.String())
		return
	}
	p.log.Debugw("Query state", "kind", p.kind, "from", p.state.String(), "to", next.String())
	p.state = next
}

// empty ends the pipeline with a well-formed empty answer, remembering where it ran dry.
// The stage reported is the one that produced nothing.
func (p *pipeline) empty(stage State) {
	p.emptyAt = stage
	p.advance(StateEmpty)
}

func (p *pipeline) fail() {
	if !p.state.Terminal() {
		p.state = StateFailed
	}
}

func (p *pipeline) emptyStage() string {
	if p.state != StateEmpty {
		return ""
	}
	return p.emptyAt.String()
}
