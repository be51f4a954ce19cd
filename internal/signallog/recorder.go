// Package signallog provides an append-only NDJSON ledger of signal records.
//
// Records are buffered on a queue and written by a background goroutine so
// the dispatcher never blocks on disk. The ledger is session-scoped; export
// to long-term storage happens at submission through the store package.
package signallog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codesight-dev/codesight/internal/domain"
)

// Config controls the recorder.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Entry is one ledger line: a signal record tagged with its session.
type Entry struct {
	SessionID string              `json:"sessionId"`
	Recorded  string              `json:"recorded"`
	Signal    domain.SignalRecord `json:"signal"`
}

// Recorder appends signal records to per-session NDJSON files.
// Append never blocks; when the queue is full the entry is dropped with a
// warning, matching the rest of the system's soft-failure policy.
type Recorder struct {
	cfg    Config
	logger *slog.Logger
	queue  chan Entry
	done   chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	files map[string]*os.File
}

// NewRecorder creates a recorder and starts its writer goroutine.
func NewRecorder(cfg Config, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create signal log directory: %w", err)
		}
	}

	r := &Recorder{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Entry, cfg.QueueSize),
		done:   make(chan struct{}),
		files:  make(map[string]*os.File),
	}

	r.wg.Add(1)
	go r.writeLoop()

	return r, nil
}

// Append queues a signal record for the given session.
func (r *Recorder) Append(sessionID string, sig domain.SignalRecord) {
	if !r.cfg.Enabled {
		return
	}

	entry := Entry{
		SessionID: sessionID,
		Recorded:  time.Now().UTC().Format(time.RFC3339Nano),
		Signal:    sig,
	}

	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("signal log queue full, dropping entry",
			"session_id", sessionID,
			"event_id", sig.EventID,
		)
	}
}

// Close drains the queue and closes all open files.
func (r *Recorder) Close() error {
	close(r.done)
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, f := range r.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close signal log for %s: %w", id, err)
		}
		delete(r.files, id)
	}
	return firstErr
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()

	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-r.done:
			// Drain whatever is left before shutting down.
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry Entry) {
	f, err := r.sessionFile(entry.SessionID)
	if err != nil {
		r.logger.Error("failed to open signal log file", "session_id", entry.SessionID, "error", err)
		return
	}

	line, err := json.Marshal(entry)
	if err != nil {
		r.logger.Error("failed to marshal signal entry", "session_id", entry.SessionID, "error", err)
		return
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		r.logger.Error("failed to write signal entry", "session_id", entry.SessionID, "error", err)
	}
}

func (r *Recorder) sessionFile(sessionID string) (*os.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.files[sessionID]; ok {
		return f, nil
	}

	path := filepath.Join(r.cfg.Dir, sessionID+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	r.files[sessionID] = f
	return f, nil
}
