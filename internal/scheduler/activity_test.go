package scheduler

import (
	"testing"
	"time"

	"github.com/codesight-dev/codesight/internal/domain"
)

func TestActivityTrackerRecordEdit(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	tr := NewActivityTracker(clk, "python")

	tr.RecordEdit("def f():\n    return 1\n")
	state := tr.State()
	if state.TotalChanges != 1 {
		t.Errorf("total changes = %d, want 1", state.TotalChanges)
	}
	if state.LinesWritten != 3 {
		t.Errorf("lines = %d, want 3", state.LinesWritten)
	}
	if state.LastChangeAt != clk.Now() {
		t.Errorf("last change = %v, want %v", state.LastChangeAt, clk.Now())
	}

	// Identical payloads carry no signal and must not reset idle time.
	clk.Advance(10 * time.Second)
	tr.RecordEdit("def f():\n    return 1\n")
	state = tr.State()
	if state.TotalChanges != 1 {
		t.Errorf("zero-delta edit counted: total changes = %d, want 1", state.TotalChanges)
	}
	if got := state.Idle(clk.Now()); got != 10*time.Second {
		t.Errorf("idle = %v, want 10s", got)
	}

	clk.Advance(5 * time.Second)
	tr.RecordEdit("def f():\n    return 2\n")
	state = tr.State()
	if state.TotalChanges != 2 {
		t.Errorf("total changes = %d, want 2", state.TotalChanges)
	}
	if got := state.Idle(clk.Now()); got != 0 {
		t.Errorf("idle = %v after fresh edit, want 0", got)
	}
}

func TestComplexityScoring(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		language string
		code     string
		want     int
	}{
		{"empty", "python", "", 0},
		{"flat statements", "python", "a = 1\nb = 2", 1},
		{"control flow counts double", "python", "if a:\n    return b", 3},
		{"javascript keywords", "javascript", "if (a) { return b; }", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := complexity(tt.code, keywordsForLanguage(tt.language))
			if got != tt.want {
				t.Errorf("complexity(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestComplexityCapped(t *testing.T) {
	t.Parallel()
	code := ""
	for i := 0; i < 300; i++ {
		code += "if x:\n"
	}
	if got := complexity(code, pythonKeywords); got != 100 {
		t.Errorf("complexity = %d, want capped at 100", got)
	}
}

func TestCooldownWindowAndCodeGates(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	c := NewCooldown(2*time.Minute, 20, 30)

	longCode := "def solve(nums):\n    out = []\n    return out\n"
	if !c.CanTrigger(now, longCode) {
		t.Fatal("fresh cooldown must allow the first trigger")
	}
	if c.CanTrigger(now, "short") {
		t.Fatal("code below minimum length must not trigger")
	}

	c.RecordTrigger(now, longCode)
	if c.CanTrigger(now.Add(time.Minute), longCode+"# changed quite a lot since then\n") {
		t.Fatal("trigger allowed inside the window")
	}

	after := now.Add(2*time.Minute + time.Second)
	if c.CanTrigger(after, longCode) {
		t.Fatal("trigger allowed without sufficient code change")
	}
	if !c.CanTrigger(after, longCode+"# changed quite a lot since then\n") {
		t.Fatal("trigger blocked despite elapsed window and changed code")
	}
}

func TestCooldownWithoutCodeGates(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	c := NewCooldown(time.Minute, 0, 0)

	if !c.CanTrigger(now, "") {
		t.Fatal("gateless cooldown must allow empty code")
	}
	c.RecordTrigger(now, "")
	if c.CanTrigger(now.Add(30*time.Second), "") {
		t.Fatal("trigger allowed inside the window")
	}
	if !c.CanTrigger(now.Add(61*time.Second), "") {
		t.Fatal("trigger blocked after the window elapsed")
	}
}

func TestHintQuotaReserveCommitRelease(t *testing.T) {
	t.Parallel()
	q := NewHintQuota(2)

	if err := q.Reserve(); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	q.Commit(domain.HintEntry{Content: "first"})
	if err := q.Reserve(); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	q.Release() // generation failed, give it back
	if got := q.Remaining(); got != 1 {
		t.Errorf("remaining = %d, want 1", got)
	}

	if err := q.Reserve(); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := q.Reserve(); err != ErrQuotaExhausted {
		t.Fatalf("Reserve on empty budget: err = %v, want ErrQuotaExhausted", err)
	}
	if got := q.Remaining(); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}

	// Release never inflates the budget past capacity.
	q.Release()
	q.Release()
	q.Release()
	if got := q.Remaining(); got != 2 {
		t.Errorf("remaining = %d after over-release, want capacity 2", got)
	}
}

func TestHintQuotaUnbounded(t *testing.T) {
	t.Parallel()
	q := NewHintQuota(domain.UnboundedQuota)
	for i := 0; i < 10; i++ {
		if err := q.Reserve(); err != nil {
			t.Fatalf("Reserve %d: %v", i, err)
		}
	}
	if !q.Available() {
		t.Error("unbounded quota reported unavailable")
	}
	if got := q.Remaining(); got != domain.UnboundedQuota {
		t.Errorf("remaining = %d, want sentinel %d", got, domain.UnboundedQuota)
	}
}

func TestExecutionTrackerStreak(t *testing.T) {
	t.Parallel()
	tr := NewExecutionTracker()

	tr.Record(domain.ExecutionAttempt{Success: false})
	tr.Record(domain.ExecutionAttempt{Success: false})
	if got := tr.ConsecutiveFailures(); got != 2 {
		t.Errorf("streak = %d, want 2", got)
	}
	tr.Record(domain.ExecutionAttempt{Success: true})
	if got := tr.ConsecutiveFailures(); got != 0 {
		t.Errorf("streak = %d after success, want 0", got)
	}
	tr.Record(domain.ExecutionAttempt{Success: false})
	if got := tr.ConsecutiveFailures(); got != 1 {
		t.Errorf("streak = %d, want 1", got)
	}
	if got := len(tr.Attempts()); got != 4 {
		t.Errorf("attempts = %d, want 4", got)
	}
}
