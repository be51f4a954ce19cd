package scheduler

import (
	"context"
	"time"
)

// Run drives the detector timers until ctx is cancelled or the session is
// submitted. The pause timer ticks fast to catch short silences promptly;
// the no-progress timer ticks on a coarser interval matching its threshold.
func (s *Scheduler) Run(ctx context.Context) {
	pauseTicker := time.NewTicker(s.cfg.PauseTick)
	defer pauseTicker.Stop()
	progressTicker := time.NewTicker(s.cfg.NoProgressTick)
	defer progressTicker.Stop()

	s.logger.Debug("scheduler started",
		"session_id", s.sessionID(),
		"pause_tick", s.cfg.PauseTick,
		"no_progress_tick", s.cfg.NoProgressTick,
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.lifeCtx.Done():
			return
		case <-pauseTicker.C:
			s.evaluate()
		case <-progressTicker.C:
			s.evaluate()
		}
	}
}

func (s *Scheduler) sessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.ID
}
