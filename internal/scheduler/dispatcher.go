package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codesight-dev/codesight/internal/domain"
	"github.com/codesight-dev/codesight/internal/generator"
)

// evaluate runs one detector cycle. Both timers call it; the anchors inside
// each detector make the cadence irrelevant to how often anything fires.
func (s *Scheduler) evaluate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.Active || s.inFlight != nil {
		return
	}

	now := s.clock.Now()
	view := s.viewLocked(now)
	state := s.activity.State()
	code := s.activity.Code()

	var best *proposal
	if p := s.noProg.Propose(view, state.LastChangeAt); p != nil {
		best = p
	}
	if p := s.pause.Propose(view, state.LastChangeAt, code); p != nil {
		if best == nil || p.priority > best.priority {
			best = p
		}
	}
	if best == nil {
		return
	}

	s.dispatchLocked(*best, now)
}

// dispatchLocked moves a proposal through Triggered into Dispatched and
// launches the generator call. Hint kinds reserve quota here so concurrent
// paths can never overdraw it; the reservation is committed when the content
// arrives and released if generation fails. Callers hold s.mu.
func (s *Scheduler) dispatchLocked(prop proposal, now time.Time) *domain.InterventionRecord {
	if s.inFlight != nil || !s.session.Active {
		return nil
	}

	if prop.kind.IsHint() {
		if err := s.quota.Reserve(); err != nil {
			s.logger.Debug("hint suppressed, quota exhausted",
				"session_id", s.session.ID, "kind", prop.kind)
			return nil
		}
		// A dispatched hint addresses the current streak; further failures
		// after it resolves may earn another.
		s.failure.Rearm()
	}

	code := s.activity.Code()
	rec := &domain.InterventionRecord{
		ID:    uuid.New().String(),
		Kind:  prop.kind,
		State: domain.StateTriggered,
		Context: domain.ContextSnapshot{
			Code:    code,
			Metrics: s.metricsLocked(now),
			Reason:  prop.reason,
		},
		TriggeredAt: now,
	}

	rec.State = domain.StateDispatched
	rec.DispatchedAt = now
	s.records = append(s.records, rec)
	s.byID[rec.ID] = rec
	s.inFlight = rec

	req := generator.Request{
		Code:               code,
		ProblemDescription: s.session.Problem.Description,
		Language:           s.session.Language,
		TriggerReason:      prop.reason,
		PauseDuration:      s.viewLocked(now).idle,
		Metrics:            rec.Context.Metrics,
		PriorContext:       s.priorContextLocked(),
	}

	s.logger.Info("intervention dispatched",
		"session_id", s.session.ID,
		"intervention_id", rec.ID,
		"kind", rec.Kind,
		"reason", prop.reason,
	)

	go s.invokeGenerator(rec, req)
	return rec
}

// invokeGenerator performs the bounded generator call outside the lock and
// settles the record to Open or Failed.
func (s *Scheduler) invokeGenerator(rec *domain.InterventionRecord, req generator.Request) {
	ctx, cancel := context.WithTimeout(s.lifeCtx, s.cfg.GeneratorTimeout)
	defer cancel()

	var (
		result *generator.Result
		err    error
	)
	if s.gen == nil {
		err = generator.ErrMalformedResponse
	} else {
		result, err = s.gen.Generate(ctx, req)
	}
	if err == nil && (result == nil || result.Content == "") {
		err = generator.ErrMalformedResponse
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.Active {
		// Submission landed mid-call. Discard whatever came back; the
		// reservation is moot because quota no longer gates anything.
		s.failLocked(rec, s.clock.Now())
		return
	}

	now := s.clock.Now()
	if err != nil {
		s.failLocked(rec, now)
		s.logger.Warn("intervention generation failed",
			"session_id", s.session.ID,
			"intervention_id", rec.ID,
			"kind", rec.Kind,
			"error", err,
		)
		return
	}

	rec.State = domain.StateOpen
	rec.OpenedAt = now
	rec.Content = result.Content

	if rec.Kind.IsHint() {
		s.quota.Commit(domain.HintEntry{
			Content:   result.Content,
			Timestamp: now,
			Context:   rec.Context.Reason,
		})
	}
	switch rec.Kind {
	case domain.KindPause, domain.KindChallenge:
		s.pauseCD.RecordTrigger(now, rec.Context.Code)
		s.challenge.RecordTrigger(now, rec.Context.Code)
	}

	if s.notify != nil {
		s.notify.Notify(s.session.ID, Event{
			Type: EventInterventionOpen,
			Payload: map[string]any{
				"id":      rec.ID,
				"kind":    rec.Kind,
				"content": rec.Content,
				"reason":  rec.Context.Reason,
			},
		})
	}
	s.notifyQuotaLocked()

	s.logger.Info("intervention open",
		"session_id", s.session.ID,
		"intervention_id", rec.ID,
		"kind", rec.Kind,
	)
}

// failLocked settles a dispatched record as Failed, returning any quota
// reservation. Failed records produce no signal entry. Idempotent: Submit
// and a late generator goroutine may both try to settle the same record.
// Callers hold s.mu.
func (s *Scheduler) failLocked(rec *domain.InterventionRecord, now time.Time) {
	if rec.State != domain.StateDispatched {
		return
	}
	rec.State = domain.StateFailed
	rec.FailedAt = now
	if rec.Kind.IsHint() {
		s.quota.Release()
	}
	s.clearInFlightLocked(rec)
}

// clearInFlightLocked drops the single-flight slot if rec holds it.
func (s *Scheduler) clearInFlightLocked(rec *domain.InterventionRecord) {
	if s.inFlight == rec {
		s.inFlight = nil
	}
}

// priorContextLocked summarizes earlier resolved interventions so the
// generator does not repeat itself. Callers hold s.mu.
func (s *Scheduler) priorContextLocked() string {
	var prior string
	for _, r := range s.records {
		if r.State != domain.StateResolved || r.Content == "" {
			continue
		}
		if prior != "" {
			prior += "\n"
		}
		prior += string(r.Kind) + ": " + r.Content
	}
	return prior
}
