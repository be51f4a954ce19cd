// Package scheduler implements the adaptive intervention scheduler: the
// state machine that watches idle time, execution failures, and code-change
// velocity, and decides if and when to surface an AI question or hint.
//
// All shared state for one session is owned by a single Scheduler guarded by
// one mutex, so detectors ticking on independent timers can never both read
// "no intervention open" and proceed to dispatch. The only suspension point
// is the generator call, which runs outside the lock; the Dispatched record
// it leaves behind is what blocks competing dispatches in the meantime.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codesight-dev/codesight/internal/config"
	"github.com/codesight-dev/codesight/internal/domain"
	"github.com/codesight-dev/codesight/internal/generator"
)

// Event is pushed to the UI surface when scheduler state changes.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Event types sent to the UI surface.
const (
	EventInterventionOpen = "intervention_open"
	EventQuotaUpdate      = "quota_update"
)

// Notifier receives UI events. Implementations must not block.
type Notifier interface {
	Notify(sessionID string, ev Event)
}

// SignalSink receives the append-only signal ledger entries.
type SignalSink interface {
	Append(sessionID string, sig domain.SignalRecord)
}

// Deps bundles the scheduler's collaborators.
type Deps struct {
	Clock     Clock
	Generator generator.Generator
	Evaluator generator.Evaluator
	Signals   SignalSink
	Notifier  Notifier
	Logger    *slog.Logger
}

// Scheduler arbitrates interventions for one assessment session.
type Scheduler struct {
	cfg    config.SchedulerConfig
	clock  Clock
	gen    generator.Generator
	eval   generator.Evaluator
	sink   SignalSink
	notify Notifier
	logger *slog.Logger

	// lifeCtx is cancelled at submission; it parents every generator call
	// so in-flight dispatches die with the session.
	lifeCtx  context.Context
	lifeStop context.CancelFunc

	mu        sync.Mutex
	session   *domain.Session
	activity  *ActivityTracker
	execution *ExecutionTracker
	quota     *HintQuota
	pauseCD   *Cooldown
	challenge *Cooldown
	pause     *PauseDetector
	noProg    *NoProgressDetector
	failure   *FailureMonitor

	records  []*domain.InterventionRecord
	byID     map[string]*domain.InterventionRecord
	signals  []domain.SignalRecord
	inFlight *domain.InterventionRecord
}

// New creates a scheduler for the given session.
func New(cfg config.SchedulerConfig, session *domain.Session, deps Deps) *Scheduler {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	pauseCD := NewCooldown(cfg.ChallengeCooldown, 0, 0)
	lifeCtx, lifeStop := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:       cfg,
		clock:     deps.Clock,
		gen:       deps.Generator,
		eval:      deps.Evaluator,
		sink:      deps.Signals,
		notify:    deps.Notifier,
		logger:    deps.Logger,
		lifeCtx:   lifeCtx,
		lifeStop:  lifeStop,
		session:   session,
		activity:  NewActivityTracker(deps.Clock, session.Language),
		execution: NewExecutionTracker(),
		quota:     NewHintQuota(cfg.HintQuota),
		pauseCD:   pauseCD,
		challenge: NewCooldown(cfg.ChallengeCooldown, cfg.MinCodeChangeChars, cfg.MinCodeLengthChars),
		pause:     NewPauseDetector(cfg.PauseThreshold, cfg.LongPauseThreshold, cfg.GracePeriod, cfg.MinCodeLengthChars, pauseCD),
		noProg:    NewNoProgressDetector(cfg.NoProgressThreshold),
		failure:   NewFailureMonitor(cfg.FailureThreshold),
		byID:      make(map[string]*domain.InterventionRecord),
	}
}

// RecordEdit feeds a full-code edit into the activity tracker.
func (s *Scheduler) RecordEdit(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.Active {
		return
	}
	s.activity.RecordEdit(code)
}

// RecordExecution feeds a sandbox run outcome into the execution tracker and
// gives the failure monitor a chance to propose a hint.
func (s *Scheduler) RecordExecution(attempt domain.ExecutionAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.Active {
		return
	}

	s.execution.Record(attempt)

	view := s.viewLocked(s.clock.Now())
	prop := s.failure.OnExecution(attempt.Success, s.execution.ConsecutiveFailures(), view)
	if prop != nil {
		s.dispatchLocked(*prop, view.now)
	}
}

// RequestHint is the candidate's manual hint request. It reserves quota
// immediately; when quota is spent it fails with ErrQuotaExhausted and the
// generator is never invoked.
func (s *Scheduler) RequestHint() (*domain.InterventionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.Active {
		return nil, ErrSessionEnded
	}
	if s.inFlight != nil {
		return nil, ErrInterventionInFlight
	}
	if !s.quota.Available() {
		return nil, ErrQuotaExhausted
	}

	now := s.clock.Now()
	rec := s.dispatchLocked(proposal{
		kind:   domain.KindManualHint,
		reason: generator.ReasonManualRequest,
	}, now)
	if rec == nil {
		return nil, ErrQuotaExhausted
	}
	return cloneRecord(rec), nil
}

// Resolve transitions an Open intervention to Resolved, computes its reward,
// and emits exactly one signal record.
func (s *Scheduler) Resolve(ctx context.Context, id, response string, isVoice bool) (*domain.SignalRecord, error) {
	s.mu.Lock()
	rec, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownIntervention
	}
	if !s.session.Active {
		s.mu.Unlock()
		return nil, ErrSessionEnded
	}
	if rec.State != domain.StateOpen {
		s.mu.Unlock()
		return nil, ErrInterventionNotOpen
	}

	eval := generator.Evaluation{
		Question: rec.Content,
		Response: response,
		Code:     s.activity.Code(),
		Problem:  s.session.Problem.Description,
	}
	isQuestion := !rec.Kind.IsHint()
	s.mu.Unlock()

	// Evaluate outside the lock: the evaluator is a remote call and holding
	// the scheduler lock across it would stall every detector tick.
	reward := 0.5 // neutral: hint effectiveness is measured later
	if isQuestion && response != "" && s.eval != nil {
		evalCtx, cancel := context.WithTimeout(ctx, s.cfg.GeneratorTimeout)
		verdict, err := s.eval.Evaluate(evalCtx, eval)
		cancel()
		switch {
		case err != nil:
			s.logger.Warn("response evaluation failed, using neutral reward",
				"intervention_id", id, "error", err)
		case verdict.OnRightTrack:
			reward = 0.8
		default:
			reward = 0.3
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check: submission may have landed while we were evaluating.
	if !s.session.Active {
		return nil, ErrSessionEnded
	}
	if rec.State != domain.StateOpen {
		return nil, ErrInterventionNotOpen
	}

	now := s.clock.Now()
	rec.State = domain.StateResolved
	rec.Response = response
	rec.ResolvedAt = now
	s.clearInFlightLocked(rec)

	next := s.metricsLocked(now)
	sig := domain.SignalRecord{
		EventID:   rec.ID,
		EventType: rec.Kind,
		Action:    rec.Context.Reason,
		Reward:    reward,
		State:     rec.Context.Metrics,
		NextState: &next,
		Timestamp: now,
	}
	s.signals = append(s.signals, sig)
	if s.sink != nil {
		s.sink.Append(s.session.ID, sig)
	}

	s.logger.Info("intervention resolved",
		"session_id", s.session.ID,
		"intervention_id", rec.ID,
		"kind", rec.Kind,
		"reward", reward,
		"voice", isVoice,
	)

	s.notifyQuotaLocked()
	return &sig, nil
}

// Submit freezes the session, cancels in-flight work and timers, and returns
// the finalized submission for persistence.
func (s *Scheduler) Submit(finalCode string) *domain.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()

	if finalCode != "" && s.session.Active {
		s.activity.RecordEdit(finalCode)
	}

	now := s.clock.Now()
	if s.session.Active {
		s.session.Freeze(now)
	}
	// Cancel timers and any outstanding generator call, and settle the
	// in-flight record now so the submission snapshot never carries a
	// dispatched state. A late response is discarded by the completion
	// handler.
	s.lifeStop()
	if s.inFlight != nil {
		s.failLocked(s.inFlight, now)
	}

	records := make([]domain.InterventionRecord, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, *r)
	}
	signals := make([]domain.SignalRecord, len(s.signals))
	copy(signals, s.signals)

	budget := s.quota.Budget()
	return &domain.Submission{
		Session:       s.session,
		FinalCode:     s.activity.Code(),
		Activity:      s.activity.State(),
		Attempts:      s.execution.Attempts(),
		HintsUsed:     budget.History,
		Interventions: records,
		Signals:       signals,
		ElapsedTime:   s.session.EndTime.Sub(s.session.StartTime),
	}
}

// Session returns a copy of the session descriptor.
func (s *Scheduler) Session() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.session
}

// HintsRemaining returns the remaining hint count for the UI
// (domain.UnboundedQuota when unlimited).
func (s *Scheduler) HintsRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota.Remaining()
}

// Metrics returns the current strongly-typed metrics snapshot.
func (s *Scheduler) Metrics() domain.MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metricsLocked(s.clock.Now())
}

// Records returns copies of all intervention records so far.
func (s *Scheduler) Records() []domain.InterventionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.InterventionRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out
}

// metricsLocked builds the metrics snapshot. Callers hold s.mu.
func (s *Scheduler) metricsLocked(now time.Time) domain.MetricsSnapshot {
	state := s.activity.State()
	idle := time.Duration(0)
	if !state.LastChangeAt.IsZero() {
		idle = state.Idle(now)
	}
	return domain.MetricsSnapshot{
		LinesWritten:        state.LinesWritten,
		CodeComplexity:      state.CodeComplexity,
		TotalChanges:        state.TotalChanges,
		ConsecutiveFailures: s.execution.ConsecutiveFailures(),
		HintsRemaining:      s.quota.Remaining(),
		Idle:                idle,
	}
}

// viewLocked builds the detector view for this evaluation cycle.
func (s *Scheduler) viewLocked(now time.Time) detectorView {
	state := s.activity.State()
	idle := time.Duration(0)
	if !state.LastChangeAt.IsZero() {
		idle = state.Idle(now)
	}
	return detectorView{
		now:        now,
		sessionAge: s.session.Age(now),
		idle:       idle,
		codeLength: state.CodeLength,
		quotaOK:    s.quota.Available(),
		blocked:    s.inFlight != nil,
	}
}

func (s *Scheduler) notifyQuotaLocked() {
	if s.notify == nil {
		return
	}
	s.notify.Notify(s.session.ID, Event{
		Type:    EventQuotaUpdate,
		Payload: map[string]int{"hintsRemaining": s.quota.Remaining()},
	})
}

func cloneRecord(rec *domain.InterventionRecord) *domain.InterventionRecord {
	c := *rec
	return &c
}
