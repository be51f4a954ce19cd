package scheduler

import (
	"time"

	"github.com/codesight-dev/codesight/internal/domain"
	"github.com/codesight-dev/codesight/internal/generator"
)

// proposal is a detector's request to fire an intervention. The dispatcher
// accepts at most one per evaluation cycle, highest priority first.
type proposal struct {
	kind     domain.InterventionKind
	reason   string
	priority int
}

// Priority order when multiple detectors are eligible in the same cycle:
// failure-hint > no-progress-hint > pause-question.
const (
	priorityFailure    = 3
	priorityNoProgress = 2
	priorityPause      = 1
)

// detectorView is the read-only slice of session state detectors evaluate
// against. The scheduler builds one per cycle under its lock.
type detectorView struct {
	now        time.Time
	sessionAge time.Duration
	idle       time.Duration
	codeLength int
	quotaOK    bool
	// blocked is true while another intervention is dispatched or open;
	// no detector may propose until it settles.
	blocked bool
}

// PauseDetector proposes a question when the candidate has been idle between
// PAUSE_MIN and PAUSE_MAX, and escalates to a directive hint past PAUSE_MAX.
// Each unbroken idle interval yields at most one proposal per tier: the
// detector re-arms only when activity resumes or the idle crosses into the
// long-pause tier.
type PauseDetector struct {
	pauseThreshold     time.Duration
	longPauseThreshold time.Duration
	gracePeriod        time.Duration
	minCodeLength      int
	cooldown           *Cooldown

	// anchor is the LastChangeAt value the current proposal was made
	// against; proposedTier tracks how far the unbroken pause escalated.
	anchor       time.Time
	proposedTier int
}

// NewPauseDetector creates a pause detector over the pause-family cooldown.
func NewPauseDetector(pause, longPause, grace time.Duration, minCodeLength int, cooldown *Cooldown) *PauseDetector {
	return &PauseDetector{
		pauseThreshold:     pause,
		longPauseThreshold: longPause,
		gracePeriod:        grace,
		minCodeLength:      minCodeLength,
		cooldown:           cooldown,
	}
}

// Propose evaluates the pause rule. lastChange is the activity timestamp the
// idle measurement is anchored to.
func (d *PauseDetector) Propose(v detectorView, lastChange time.Time, code string) *proposal {
	if lastChange != d.anchor {
		// Activity resumed since the last proposal; re-arm.
		d.anchor = lastChange
		d.proposedTier = 0
	}

	if v.sessionAge < d.gracePeriod {
		return nil
	}
	if v.codeLength <= d.minCodeLength {
		return nil
	}
	if !d.cooldown.CanTrigger(v.now, code) {
		return nil
	}

	tier := 0
	reason := ""
	switch {
	case v.idle >= d.longPauseThreshold:
		tier, reason = 2, generator.ReasonLongPause
	case v.idle >= d.pauseThreshold:
		tier, reason = 1, generator.ReasonPause
	default:
		return nil
	}

	if tier <= d.proposedTier {
		return nil
	}
	d.proposedTier = tier

	return &proposal{kind: domain.KindPause, reason: reason, priority: priorityPause}
}

// NoProgressDetector proposes a hint offer after a long stretch without any
// code change. It draws on the hint quota, not the pause cooldown. One
// offer per unbroken stretch.
type NoProgressDetector struct {
	threshold time.Duration

	anchor   time.Time
	proposed bool
}

// NewNoProgressDetector creates a no-progress detector.
func NewNoProgressDetector(threshold time.Duration) *NoProgressDetector {
	return &NoProgressDetector{threshold: threshold}
}

// Propose evaluates the no-progress rule.
func (d *NoProgressDetector) Propose(v detectorView, lastChange time.Time) *proposal {
	if lastChange != d.anchor {
		d.anchor = lastChange
		d.proposed = false
	}

	if d.proposed || v.blocked || !v.quotaOK {
		return nil
	}
	if v.codeLength == 0 {
		// Nothing typed yet; the grace story belongs to the pause detector,
		// and offering a hint against empty code reads as nagging.
		return nil
	}
	if v.idle < d.threshold {
		return nil
	}

	d.proposed = true
	return &proposal{kind: domain.KindNoProgress, reason: generator.ReasonNoProgress, priority: priorityNoProgress}
}

// FailureMonitor proposes a hint offer when the failure streak reaches the
// configured threshold. It proposes once per streak: it re-arms when a run
// succeeds or when a hint is dispatched.
type FailureMonitor struct {
	threshold int
	armed     bool
}

// NewFailureMonitor creates an armed failure monitor.
func NewFailureMonitor(threshold int) *FailureMonitor {
	return &FailureMonitor{threshold: threshold, armed: true}
}

// OnExecution evaluates the rule after a run is recorded.
func (m *FailureMonitor) OnExecution(success bool, streak int, v detectorView) *proposal {
	if success {
		m.armed = true
		return nil
	}

	if !m.armed || streak < m.threshold {
		return nil
	}
	if v.blocked || !v.quotaOK {
		return nil
	}

	m.armed = false
	return &proposal{kind: domain.KindFailure, reason: generator.ReasonExecutionFailures, priority: priorityFailure}
}

// Rearm re-enables the monitor after a hint dispatch.
func (m *FailureMonitor) Rearm() {
	m.armed = true
}
