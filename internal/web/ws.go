package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/wyckoff_backtest/internal/domain"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// handleRunProgress streams RunEvents for one run over a websocket until the
// run reaches a terminal status or the client goes away.
func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Subscribe before reading the snapshot: a terminal transition in
	// between then shows up either in the snapshot or on the channel,
	// never in neither.
	events := s.coordinator.Subscribe(id)
	defer s.coordinator.Unsubscribe(id, events)

	run, err := s.coordinator.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to get run", zap.Error(err))
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Websocket upgrade failed", zap.String("run_id", id), zap.Error(err))
		return
	}
	defer conn.Close()

	// Drain client frames so close handshakes are noticed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Initial snapshot so late subscribers see the current status.
	if err := s.writeEvent(conn, run.Status, id, run.Message); err != nil {
		return
	}
	if run.Status.Terminal() {
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Status.Terminal() {
				return
			}
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, status domain.RunStatus, runID, message string) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(map[string]any{
		"run_id":  runID,
		"status":  status,
		"message": message,
	})
}
