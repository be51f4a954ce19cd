package domain

import (
	"time"
)

// UnboundedQuota is the capacity sentinel meaning hints never run out.
const UnboundedQuota = -1

// HintEntry records one consumed hint.
type HintEntry struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Context   string    `json:"context"`
}

// HintBudget holds the finite (or unbounded) number of hints a candidate may
// receive. Remaining never goes negative.
type HintBudget struct {
	Capacity  int         `json:"capacity"`
	Remaining int         `json:"remaining"`
	History   []HintEntry `json:"history"`
}

// NewHintBudget creates a budget with the given capacity.
// Pass UnboundedQuota for no limit.
func NewHintBudget(capacity int) HintBudget {
	return HintBudget{Capacity: capacity, Remaining: capacity}
}

// Unbounded reports whether the budget has no limit.
func (b *HintBudget) Unbounded() bool {
	return b.Capacity == UnboundedQuota
}

// Available reports whether at least one hint can still be issued.
func (b *HintBudget) Available() bool {
	return b.Unbounded() || b.Remaining > 0
}

// CooldownWindow enforces the minimum spacing between interventions of one
// trigger family. LastTrigger stays zero until the first trigger fires, so a
// fresh window never blocks.
type CooldownWindow struct {
	LastTrigger  time.Time     `json:"lastTrigger,omitzero"`
	Window       time.Duration `json:"window"`
	CodeSnapshot string        `json:"-"`
}

// Elapsed reports whether the window has passed since the last trigger.
func (w *CooldownWindow) Elapsed(now time.Time) bool {
	if w.LastTrigger.IsZero() {
		return true
	}
	return now.Sub(w.LastTrigger) >= w.Window
}
