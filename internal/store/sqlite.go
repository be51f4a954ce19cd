package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codesight-dev/codesight/internal/domain"
	"github.com/codesight-dev/codesight/internal/shared"
)

const writeRetryAttempts = 3

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS submissions (
		session_id TEXT PRIMARY KEY,
		candidate_id TEXT NOT NULL,
		problem_json TEXT NOT NULL,
		language TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		final_code TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		attempts_json TEXT NOT NULL,
		hints_json TEXT NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_candidate ON submissions(candidate_id, created_at);

	CREATE TABLE IF NOT EXISTS interventions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		state TEXT NOT NULL,
		reason TEXT NOT NULL,
		content TEXT,
		response TEXT,
		context_json TEXT NOT NULL,
		triggered_at INTEGER NOT NULL,
		dispatched_at INTEGER,
		opened_at INTEGER,
		resolved_at INTEGER,
		failed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_interventions_session ON interventions(session_id, triggered_at);

	CREATE TABLE IF NOT EXISTS signals (
		event_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		action TEXT NOT NULL,
		reward REAL NOT NULL,
		state_json TEXT NOT NULL,
		next_state_json TEXT,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_signals_session ON signals(session_id, timestamp);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSubmission writes the submission, its interventions, and its signals
// in one transaction. Retries on SQLite concurrency errors.
func (s *SQLiteStore) SaveSubmission(ctx context.Context, sub *domain.Submission) error {
	var err error
	for attempt := 0; attempt < writeRetryAttempts; attempt++ {
		err = s.saveSubmissionOnce(ctx, sub)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return err
}

func (s *SQLiteStore) saveSubmissionOnce(ctx context.Context, sub *domain.Submission) error {
	problemJSON, err := json.Marshal(sub.Session.Problem)
	if err != nil {
		return fmt.Errorf("marshal problem: %w", err)
	}
	activityJSON, err := json.Marshal(sub.Activity)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	attemptsJSON, err := json.Marshal(sub.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}
	hintsJSON, err := json.Marshal(sub.HintsUsed)
	if err != nil {
		return fmt.Errorf("marshal hints: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.ExecContext(ctx, `
		INSERT INTO submissions
			(session_id, candidate_id, problem_json, language, started_at,
			 ended_at, final_code, activity_json, attempts_json, hints_json,
			 elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			ended_at = excluded.ended_at,
			final_code = excluded.final_code,
			activity_json = excluded.activity_json,
			attempts_json = excluded.attempts_json,
			hints_json = excluded.hints_json,
			elapsed_ms = excluded.elapsed_ms`,
		sub.Session.ID, sub.Session.CandidateID, string(problemJSON),
		sub.Session.Language, sub.Session.StartTime.Unix(),
		sub.Session.EndTime.Unix(), sub.FinalCode, string(activityJSON),
		string(attemptsJSON), string(hintsJSON),
		sub.ElapsedTime.Milliseconds(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	for _, rec := range sub.Interventions {
		contextJSON, err := json.Marshal(rec.Context)
		if err != nil {
			return fmt.Errorf("marshal intervention context: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO interventions
				(id, session_id, kind, state, reason, content, response,
				 context_json, triggered_at, dispatched_at, opened_at,
				 resolved_at, failed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, sub.Session.ID, string(rec.Kind), string(rec.State),
			rec.Context.Reason, rec.Content, rec.Response, string(contextJSON),
			rec.TriggeredAt.Unix(), nullUnix(rec.DispatchedAt),
			nullUnix(rec.OpenedAt), nullUnix(rec.ResolvedAt),
			nullUnix(rec.FailedAt),
		)
		if err != nil {
			return fmt.Errorf("insert intervention %s: %w", rec.ID, err)
		}
	}

	for _, sig := range sub.Signals {
		stateJSON, err := json.Marshal(sig.State)
		if err != nil {
			return fmt.Errorf("marshal signal state: %w", err)
		}
		var nextJSON any
		if sig.NextState != nil {
			b, err := json.Marshal(sig.NextState)
			if err != nil {
				return fmt.Errorf("marshal signal next state: %w", err)
			}
			nextJSON = string(b)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO signals
				(event_id, session_id, event_type, action, reward,
				 state_json, next_state_json, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sig.EventID, sub.Session.ID, string(sig.EventType), sig.Action,
			sig.Reward, string(stateJSON), nextJSON, sig.Timestamp.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert signal %s: %w", sig.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves a submission by session ID.
func (s *SQLiteStore) GetSubmission(ctx context.Context, sessionID string) (*domain.Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, candidate_id, problem_json, language, started_at,
		       ended_at, final_code, activity_json, attempts_json, hints_json,
		       elapsed_ms
		FROM submissions WHERE session_id = ?`, sessionID)

	var (
		session                                              domain.Session
		problemJSON, activityJSON, attemptsJSON, hintsJSON   string
		startedAt, endedAt, elapsedMs                        int64
		sub                                                  domain.Submission
	)
	err := row.Scan(
		&session.ID, &session.CandidateID, &problemJSON, &session.Language,
		&startedAt, &endedAt, &sub.FinalCode, &activityJSON, &attemptsJSON,
		&hintsJSON, &elapsedMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan submission row: %w", err)
	}

	session.StartTime = time.Unix(startedAt, 0)
	session.EndTime = time.Unix(endedAt, 0)
	if err := json.Unmarshal([]byte(problemJSON), &session.Problem); err != nil {
		return nil, fmt.Errorf("unmarshal problem: %w", err)
	}
	if err := json.Unmarshal([]byte(activityJSON), &sub.Activity); err != nil {
		return nil, fmt.Errorf("unmarshal activity: %w", err)
	}
	if err := json.Unmarshal([]byte(attemptsJSON), &sub.Attempts); err != nil {
		return nil, fmt.Errorf("unmarshal attempts: %w", err)
	}
	if err := json.Unmarshal([]byte(hintsJSON), &sub.HintsUsed); err != nil {
		return nil, fmt.Errorf("unmarshal hints: %w", err)
	}
	sub.Session = &session
	sub.ElapsedTime = time.Duration(elapsedMs) * time.Millisecond

	if sub.Interventions, err = s.interventions(ctx, sessionID); err != nil {
		return nil, err
	}
	if sub.Signals, err = s.signals(ctx, sessionID); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *SQLiteStore) interventions(ctx context.Context, sessionID string) ([]domain.InterventionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, state, content, response, context_json,
		       triggered_at, dispatched_at, opened_at, resolved_at, failed_at
		FROM interventions WHERE session_id = ? ORDER BY triggered_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query interventions: %w", err)
	}
	defer rows.Close()

	var out []domain.InterventionRecord
	for rows.Next() {
		var (
			rec                                      domain.InterventionRecord
			kind, state, contextJSON                 string
			content, response                        sql.NullString
			triggered                                int64
			dispatched, opened, resolved, failed     sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &kind, &state, &content, &response,
			&contextJSON, &triggered, &dispatched, &opened, &resolved, &failed); err != nil {
			return nil, fmt.Errorf("scan intervention row: %w", err)
		}
		rec.Kind = domain.InterventionKind(kind)
		rec.State = domain.InterventionState(state)
		rec.Content = content.String
		rec.Response = response.String
		if err := json.Unmarshal([]byte(contextJSON), &rec.Context); err != nil {
			return nil, fmt.Errorf("unmarshal intervention context: %w", err)
		}
		rec.TriggeredAt = time.Unix(triggered, 0)
		rec.DispatchedAt = unixOrZero(dispatched)
		rec.OpenedAt = unixOrZero(opened)
		rec.ResolvedAt = unixOrZero(resolved)
		rec.FailedAt = unixOrZero(failed)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) signals(ctx context.Context, sessionID string) ([]domain.SignalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, event_type, action, reward, state_json,
		       next_state_json, timestamp
		FROM signals WHERE session_id = ? ORDER BY timestamp`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []domain.SignalRecord
	for rows.Next() {
		var (
			sig       domain.SignalRecord
			eventType string
			stateJSON string
			nextJSON  sql.NullString
			ts        int64
		)
		if err := rows.Scan(&sig.EventID, &eventType, &sig.Action, &sig.Reward,
			&stateJSON, &nextJSON, &ts); err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		sig.EventType = domain.InterventionKind(eventType)
		if err := json.Unmarshal([]byte(stateJSON), &sig.State); err != nil {
			return nil, fmt.Errorf("unmarshal signal state: %w", err)
		}
		if nextJSON.Valid {
			var next domain.MetricsSnapshot
			if err := json.Unmarshal([]byte(nextJSON.String), &next); err != nil {
				return nil, fmt.Errorf("unmarshal signal next state: %w", err)
			}
			sig.NextState = &next
		}
		sig.Timestamp = time.Unix(ts, 0)
		out = append(out, sig)
	}
	return out, rows.Err()
}

// ListSessionIDs returns the submitted session IDs for a candidate.
func (s *SQLiteStore) ListSessionIDs(ctx context.Context, candidateID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id FROM submissions
		WHERE candidate_id = ? ORDER BY created_at DESC`, candidateID)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func nullUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func unixOrZero(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0)
}
