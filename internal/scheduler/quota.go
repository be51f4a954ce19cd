package scheduler

import (
	"github.com/codesight-dev/codesight/internal/domain"
)

// HintQuota manages the finite (or unbounded) hint budget. Quota is reserved
// when a hint dispatch begins and either committed when the intervention
// opens or released if the generator fails, so transient LLM unavailability
// never costs the candidate a hint.
type HintQuota struct {
	budget domain.HintBudget
}

// NewHintQuota creates a quota with the given capacity.
// Pass domain.UnboundedQuota for no limit.
func NewHintQuota(capacity int) *HintQuota {
	return &HintQuota{budget: domain.NewHintBudget(capacity)}
}

// Available reports whether a hint can currently be reserved.
func (q *HintQuota) Available() bool {
	return q.budget.Available()
}

// Remaining returns the remaining hint count, or domain.UnboundedQuota.
func (q *HintQuota) Remaining() int {
	if q.budget.Unbounded() {
		return domain.UnboundedQuota
	}
	return q.budget.Remaining
}

// Reserve takes one hint from the budget. It returns ErrQuotaExhausted when
// none remain; remaining never goes below zero.
func (q *HintQuota) Reserve() error {
	if q.budget.Unbounded() {
		return nil
	}
	if q.budget.Remaining == 0 {
		return ErrQuotaExhausted
	}
	q.budget.Remaining--
	return nil
}

// Commit records the delivered hint in the budget history. The reservation
// made in Reserve becomes final.
func (q *HintQuota) Commit(entry domain.HintEntry) {
	q.budget.History = append(q.budget.History, entry)
}

// Release returns a reserved hint to the budget after a failed dispatch.
func (q *HintQuota) Release() {
	if q.budget.Unbounded() {
		return
	}
	if q.budget.Remaining < q.budget.Capacity {
		q.budget.Remaining++
	}
}

// Budget returns a copy of the underlying budget.
func (q *HintQuota) Budget() domain.HintBudget {
	return q.budget
}
