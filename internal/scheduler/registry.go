package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/codesight-dev/codesight/internal/config"
	"github.com/codesight-dev/codesight/internal/domain"
)

// Registry owns the scheduler for every live session and the goroutines that
// drive their timers.
type Registry struct {
	cfg    config.SchedulerConfig
	deps   Deps
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*Scheduler
}

// NewRegistry creates an empty registry. Deps are shared across sessions.
func NewRegistry(cfg config.SchedulerConfig, deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Scheduler),
	}
}

// Create builds a scheduler for the session and starts its timer loop. An
// existing scheduler with the same ID is replaced; its loop exits on its own
// lifecycle context when the old session is submitted.
func (r *Registry) Create(session *domain.Session) *Scheduler {
	sched := New(r.cfg, session, r.deps)

	r.mu.Lock()
	r.sessions[session.ID] = sched
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		sched.Run(r.ctx)
	}()

	r.logger.Info("session registered",
		"session_id", session.ID,
		"candidate_id", session.CandidateID,
		"problem_id", session.Problem.ID,
	)
	return sched
}

// Get looks up the scheduler for a session.
func (r *Registry) Get(sessionID string) (*Scheduler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sched, ok := r.sessions[sessionID]
	return sched, ok
}

// Remove forgets a session after submission. The scheduler's timer loop has
// already exited via its lifecycle context.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// Close stops every timer loop and waits for them to exit.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}
