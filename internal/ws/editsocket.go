// Package ws provides the WebSocket edit stream: the low-latency channel the
// editor uses to mirror every keystroke batch into the scheduler.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/codesight-dev/codesight/internal/identity"
	"github.com/codesight-dev/codesight/internal/scheduler"
)

// editMessage is one full-editor snapshot from the browser.
type editMessage struct {
	Code string `json:"code"`
}

// ackMessage confirms receipt with the scheduler's current metrics.
type ackMessage struct {
	Type           string `json:"type"`
	TotalChanges   int    `json:"totalChanges"`
	HintsRemaining int    `json:"hintsRemaining"`
}

// EditSocketHandler upgrades edit-stream connections.
type EditSocketHandler struct {
	registry *scheduler.Registry
	logger   *slog.Logger
}

// NewEditSocketHandler creates a new edit-stream handler.
func NewEditSocketHandler(registry *scheduler.Registry, logger *slog.Logger) *EditSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EditSocketHandler{registry: registry, logger: logger}
}

// Serve handles one edit-stream connection for a session.
func (h *EditSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sched, ok := h.registry.Get(sessionID)
	if !ok {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}
	if sched.Session().CandidateID != identity.CandidateIDFromContext(r.Context()) {
		http.Error(w, `{"error":"session belongs to another candidate"}`, http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "session_id", sessionID, "error", err)
		return
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "edit stream closed"); closeErr != nil {
			h.logger.Debug("websocket close", "session_id", sessionID, "error", closeErr)
		}
	}()

	h.logger.Info("edit stream connected", "session_id", sessionID)
	h.readLoop(r.Context(), conn, sched, sessionID)
}

func (h *EditSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, sched *scheduler.Scheduler, sessionID string) {
	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				errors.Is(err, io.EOF) || ctx.Err() != nil {
				h.logger.Info("edit stream closed", "session_id", sessionID)
			} else {
				h.logger.Warn("edit stream read failed", "session_id", sessionID, "error", err)
			}
			return
		}

		var msg editMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Debug("dropping malformed edit message", "session_id", sessionID, "error", err)
			continue
		}
		sched.RecordEdit(msg.Code)

		metrics := sched.Metrics()
		ack, err := json.Marshal(ackMessage{
			Type:           "ack",
			TotalChanges:   metrics.TotalChanges,
			HintsRemaining: metrics.HintsRemaining,
		})
		if err != nil {
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, ack); err != nil {
			h.logger.Debug("edit stream ack failed", "session_id", sessionID, "error", err)
			return
		}
	}
}
