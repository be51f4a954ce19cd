package domain

import (
	"time"
)

// InterventionKind identifies which trigger family produced an intervention.
type InterventionKind string

const (
	KindPause      InterventionKind = "pause"
	KindNoProgress InterventionKind = "no_progress"
	KindFailure    InterventionKind = "failure"
	KindManualHint InterventionKind = "manual_hint"
	KindChallenge  InterventionKind = "challenge"
)

// IsHint reports whether the kind consumes hint quota rather than the
// challenge cooldown.
func (k InterventionKind) IsHint() bool {
	switch k {
	case KindNoProgress, KindFailure, KindManualHint:
		return true
	}
	return false
}

// InterventionState tracks an intervention through its lifecycle:
// Triggered -> Dispatched -> (Open -> Resolved) | Failed.
type InterventionState string

const (
	StateTriggered  InterventionState = "triggered"
	StateDispatched InterventionState = "dispatched"
	StateOpen       InterventionState = "open"
	StateResolved   InterventionState = "resolved"
	StateFailed     InterventionState = "failed"
)

// ContextSnapshot captures the candidate's code and metrics at the moment an
// intervention was dispatched.
type ContextSnapshot struct {
	Code    string          `json:"code"`
	Metrics MetricsSnapshot `json:"metrics"`
	Reason  string          `json:"reason"`
}

// InterventionRecord is a surfaced question or hint requiring candidate
// acknowledgment. At most one record may be Dispatched or Open at a time.
type InterventionRecord struct {
	ID           string            `json:"id"`
	Kind         InterventionKind  `json:"kind"`
	State        InterventionState `json:"state"`
	Context      ContextSnapshot   `json:"context"`
	Content      string            `json:"content,omitempty"`
	Response     string            `json:"response,omitempty"`
	TriggeredAt  time.Time         `json:"triggeredAt"`
	DispatchedAt time.Time         `json:"dispatchedAt,omitzero"`
	OpenedAt     time.Time         `json:"openedAt,omitzero"`
	ResolvedAt   time.Time         `json:"resolvedAt,omitzero"`
	FailedAt     time.Time         `json:"failedAt,omitzero"`
}

// InFlight reports whether the record currently blocks new dispatches.
func (r *InterventionRecord) InFlight() bool {
	return r.State == StateDispatched || r.State == StateOpen
}

// SignalRecord is a logged (state, action, reward) tuple derived from a
// resolved intervention. Exactly one exists per Resolved record.
type SignalRecord struct {
	EventID   string           `json:"eventId"`
	EventType InterventionKind `json:"eventType"`
	Action    string           `json:"action"`
	Reward    float64          `json:"reward"`
	State     MetricsSnapshot  `json:"state"`
	NextState *MetricsSnapshot `json:"nextState,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
