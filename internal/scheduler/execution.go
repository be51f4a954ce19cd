package scheduler

import (
	"github.com/codesight-dev/codesight/internal/domain"
)

// ExecutionTracker records pass/fail outcomes of sandbox runs and tracks the
// current failure streak. The streak resets to zero on the first success.
type ExecutionTracker struct {
	attempts            []domain.ExecutionAttempt
	consecutiveFailures int
}

// NewExecutionTracker creates an empty tracker.
func NewExecutionTracker() *ExecutionTracker {
	return &ExecutionTracker{}
}

// Record appends an execution attempt and updates the failure streak.
func (t *ExecutionTracker) Record(attempt domain.ExecutionAttempt) {
	t.attempts = append(t.attempts, attempt)
	if attempt.Success {
		t.consecutiveFailures = 0
	} else {
		t.consecutiveFailures++
	}
}

// ConsecutiveFailures returns the current failure streak.
func (t *ExecutionTracker) ConsecutiveFailures() int {
	return t.consecutiveFailures
}

// Attempts returns all recorded attempts in order.
func (t *ExecutionTracker) Attempts() []domain.ExecutionAttempt {
	return t.attempts
}
