package signallog

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codesight-dev/codesight/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorderWritesNDJSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	rec, err := NewRecorder(Config{Enabled: true, Dir: dir, QueueSize: 16}, discardLogger())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	sig := domain.SignalRecord{
		EventID:   "evt-1",
		EventType: domain.KindPause,
		Action:    "pause",
		Reward:    0.8,
		Timestamp: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
	}
	rec.Append("sess-ndjson", sig)
	rec.Append("sess-ndjson", domain.SignalRecord{EventID: "evt-2", EventType: domain.KindFailure, Reward: 0.5})

	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "sess-ndjson.ndjson"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].SessionID != "sess-ndjson" || entries[0].Signal.EventID != "evt-1" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[0].Signal.Reward != 0.8 {
		t.Errorf("reward = %v, want 0.8", entries[0].Signal.Reward)
	}
	if entries[1].Signal.EventID != "evt-2" {
		t.Errorf("second entry = %+v", entries[1])
	}
}

func TestRecorderSeparatesSessions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	rec, err := NewRecorder(Config{Enabled: true, Dir: dir, QueueSize: 16}, discardLogger())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	rec.Append("sess-a", domain.SignalRecord{EventID: "a1"})
	rec.Append("sess-b", domain.SignalRecord{EventID: "b1"})
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, id := range []string{"sess-a", "sess-b"} {
		if _, err := os.Stat(filepath.Join(dir, id+".ndjson")); err != nil {
			t.Errorf("missing ledger for %s: %v", id, err)
		}
	}
}

func TestRecorderDisabled(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "never-created")
	rec, err := NewRecorder(Config{Enabled: false, Dir: dir}, discardLogger())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.Append("sess-x", domain.SignalRecord{EventID: "x1"})
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("disabled recorder created its directory")
	}
}
