package domain

import (
	"time"
)

// ActivityState captures what the candidate has typed so far. It is mutated
// only by the activity tracker on each edit.
type ActivityState struct {
	LastChangeAt   time.Time `json:"lastChangeAt"`
	TotalChanges   int       `json:"totalChanges"`
	LinesWritten   int       `json:"linesWritten"`
	CodeComplexity int       `json:"codeComplexity"` // 0-100
	CodeLength     int       `json:"codeLength"`
}

// Idle returns how long the candidate has been inactive at the given instant.
// Sessions with no edits yet report idle time since the zero value, so callers
// gate on CodeLength before treating a fresh session as paused.
func (a *ActivityState) Idle(now time.Time) time.Duration {
	return now.Sub(a.LastChangeAt)
}

// MetricsSnapshot is the strongly-typed metric payload shared by detectors,
// the dispatcher, and the generator. Every field is always populated; there
// is no free-form map to probe.
type MetricsSnapshot struct {
	LinesWritten        int           `json:"linesWritten"`
	CodeComplexity      int           `json:"codeComplexity"`
	TotalChanges        int           `json:"totalChanges"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	HintsRemaining      int           `json:"hintsRemaining"`
	Idle                time.Duration `json:"idleMs"`
}

// ExecutionAttempt records one run of the candidate's code in the sandbox.
type ExecutionAttempt struct {
	Timestamp   time.Time     `json:"timestamp"`
	Success     bool          `json:"success"`
	TestsPassed int           `json:"testsPassed"`
	TestsTotal  int           `json:"testsTotal"`
	Duration    time.Duration `json:"duration"`
}
