package decision

import (
	"time"
)

// Source records which rung of the decision ladder produced a plan.
type Source string

const (
	// SourceReasoning is a reply with an explicit ACTION marker.
	SourceReasoning Source = "reasoning"
	// SourceParsedFallback is a reply where a bare command verb was found.
	SourceParsedFallback Source = "parsed-fallback"
	// SourceDefault is a reply with no recognizable command.
	SourceDefault Source = "default"
	// SourceHold is the holding action returned after a failed call.
	SourceHold Source = "hold"
	// SourceBreaker is the deterministic fallback used while the breaker is open.
	SourceBreaker Source = "breaker"
)

// Plan is one proposed next action and its justification.
type Plan struct {
	Action            string        `json:"action"`
	Reasoning         string        `json:"reasoning"`
	Priority          int           `json:"priority,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	Source            Source        `json:"source"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Trace is one prompt/response/plan triple from the decision log.
type Trace struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Prompt    string    `json:"prompt,omitempty"`
	Response  string    `json:"response,omitempty"`
	Plan      Plan      `json:"plan"`
	Error     string    `json:"error,omitempty"`
}
