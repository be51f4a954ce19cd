package scheduler

import (
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/codesight-dev/codesight/internal/domain"
)

// Cooldown gates one trigger family. Beyond the time window it can require
// that the candidate's code has moved on since the last trigger: at least
// minChange characters changed versus the snapshot, and the current code
// longer than minLength. Families without code gates pass zero for both.
//
// Only the dispatcher calls RecordTrigger, and only after a successful
// dispatch, so a failed generator call never advances the window.
type Cooldown struct {
	window    domain.CooldownWindow
	minChange int
	minLength int
	dmp       *diffmatchpatch.DiffMatchPatch
}

// NewCooldown creates a cooldown for one trigger family.
func NewCooldown(window time.Duration, minChange, minLength int) *Cooldown {
	return &Cooldown{
		window:    domain.CooldownWindow{Window: window},
		minChange: minChange,
		minLength: minLength,
		dmp:       diffmatchpatch.New(),
	}
}

// CanTrigger reports whether the family may fire at the given instant.
func (c *Cooldown) CanTrigger(now time.Time, code string) bool {
	if !c.window.Elapsed(now) {
		return false
	}
	if c.minLength > 0 && len(code) <= c.minLength {
		return false
	}
	if c.minChange > 0 && !c.window.LastTrigger.IsZero() {
		if c.changedChars(code) < c.minChange {
			return false
		}
	}
	return true
}

// RecordTrigger advances the window and snapshots the code it fired against.
func (c *Cooldown) RecordTrigger(now time.Time, code string) {
	c.window.LastTrigger = now
	c.window.CodeSnapshot = code
}

// LastTrigger returns when the family last fired (zero if never).
func (c *Cooldown) LastTrigger() time.Time {
	return c.window.LastTrigger
}

func (c *Cooldown) changedChars(code string) int {
	diffs := c.dmp.DiffMain(c.window.CodeSnapshot, code, false)
	changed := 0
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			changed += len(d.Text)
		}
	}
	return changed
}
