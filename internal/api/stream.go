package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codesight-dev/codesight/internal/identity"
	"github.com/codesight-dev/codesight/internal/scheduler"
)

const (
	sseKeepaliveInterval = 10 * time.Second
	sseRetryDelay        = 5 * time.Second
	sseReplayBufferSize  = 32
	sseConnBufferSize    = 16
)

// sseEvent is one assigned-ID event held for delivery and replay.
type sseEvent struct {
	ID      int64
	Type    string
	Payload any
}

// sseConn is a single connected event-stream client.
type sseConn struct {
	id     int64
	events chan sseEvent
}

// sessionStream holds the connections and replay buffer for one session.
type sessionStream struct {
	conns   map[int64]*sseConn
	replay  []sseEvent // last sseReplayBufferSize events, oldest first
	eventID int64
}

// StreamHub delivers scheduler events to browsers over SSE. It implements
// scheduler.Notifier; Notify never blocks — a client that cannot keep up
// drops events and recovers them on reconnect via Last-Event-ID replay.
type StreamHub struct {
	registry *scheduler.Registry
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionStream
	connID   int64
}

// NewStreamHub creates a hub. The session registry is attached with
// SetRegistry once it exists; the registry notifies through the hub, so the
// two are wired in sequence at startup.
func NewStreamHub(logger *slog.Logger) *StreamHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHub{
		logger:   logger,
		sessions: make(map[string]*sessionStream),
	}
}

// SetRegistry attaches the session registry used to resolve stream requests.
// Must be called before the hub serves HTTP traffic.
func (h *StreamHub) SetRegistry(registry *scheduler.Registry) {
	h.registry = registry
}

// Notify implements scheduler.Notifier.
func (h *StreamHub) Notify(sessionID string, ev scheduler.Event) {
	h.mu.Lock()
	stream, ok := h.sessions[sessionID]
	if !ok {
		stream = &sessionStream{conns: make(map[int64]*sseConn)}
		h.sessions[sessionID] = stream
	}
	stream.eventID++
	event := sseEvent{ID: stream.eventID, Type: ev.Type, Payload: ev.Payload}
	stream.replay = append(stream.replay, event)
	if len(stream.replay) > sseReplayBufferSize {
		stream.replay = stream.replay[len(stream.replay)-sseReplayBufferSize:]
	}
	conns := make([]*sseConn, 0, len(stream.conns))
	for _, c := range stream.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		select {
		case c.events <- event:
		default:
			h.logger.Warn("dropping event for slow stream client",
				"session_id", sessionID, "conn_id", c.id, "event_id", event.ID)
		}
	}
}

// CloseSession drops the replay buffer and disconnect state for a session.
func (h *StreamHub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stream, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	for _, c := range stream.conns {
		close(c.events)
	}
	delete(h.sessions, sessionID)
}

func (h *StreamHub) register(sessionID string, lastEventID int64) (*sseConn, []sseEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stream, ok := h.sessions[sessionID]
	if !ok {
		stream = &sessionStream{conns: make(map[int64]*sseConn)}
		h.sessions[sessionID] = stream
	}

	h.connID++
	conn := &sseConn{id: h.connID, events: make(chan sseEvent, sseConnBufferSize)}
	stream.conns[conn.id] = conn

	var missed []sseEvent
	if lastEventID > 0 {
		for _, ev := range stream.replay {
			if ev.ID > lastEventID {
				missed = append(missed, ev)
			}
		}
	}
	return conn, missed
}

func (h *StreamHub) unregister(sessionID string, connID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if stream, ok := h.sessions[sessionID]; ok {
		delete(stream.conns, connID)
	}
}

// Serve is the GET event-stream endpoint for one session.
func (h *StreamHub) Serve(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sched, ok := h.registry.Get(sessionID)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if sched.Session().CandidateID != identity.CandidateIDFromContext(r.Context()) {
		Error(w, http.StatusForbidden, "session belongs to another candidate")
		return
	}

	// Parse Last-Event-ID header or query param for replay.
	lastEventID := int64(0)
	idHeader := r.Header.Get("Last-Event-ID")
	if idHeader == "" {
		idHeader = r.URL.Query().Get("lastEventId")
	}
	if idHeader != "" {
		if parsed, err := strconv.ParseInt(idHeader, 10, 64); err == nil {
			lastEventID = parsed
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	if _, err := io.WriteString(w, fmt.Sprintf("retry: %d\n\n", sseRetryDelay.Milliseconds())); err != nil {
		h.logger.Warn("failed to write SSE retry header", "error", err, "session_id", sessionID)
		return
	}
	flusher.Flush()

	conn, missed := h.register(sessionID, lastEventID)
	defer h.unregister(sessionID, conn.id)

	h.logger.Info("event stream connected",
		"session_id", sessionID,
		"conn_id", conn.id,
		"reconnect", lastEventID > 0,
	)

	for _, ev := range missed {
		if err := h.writeEvent(w, ev); err != nil {
			h.logger.Warn("failed to replay SSE event", "error", err, "session_id", sessionID)
			return
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("event stream disconnected", "session_id", sessionID, "conn_id", conn.id)
			return
		case ev, open := <-conn.events:
			if !open {
				return
			}
			if err := h.writeEvent(w, ev); err != nil {
				h.logger.Warn("failed to write SSE event", "error", err, "session_id", sessionID)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, "event: ping\ndata: {\"status\":\"alive\"}\n\n"); err != nil {
				h.logger.Warn("failed to write SSE keepalive ping", "error", err, "session_id", sessionID)
				return
			}
			flusher.Flush()
		}
	}
}

func (h *StreamHub) writeEvent(w io.Writer, ev sseEvent) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
	return err
}
