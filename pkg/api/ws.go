package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades a tab's connection and pumps fan-out bus
// messages to it until the socket closes or the tab disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	tabID := r.URL.Query().Get("tabId")
	if tabID == "" {
		http.Error(w, "tabId query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub, err := s.kernel.Connect(tabID)
	if err != nil {
		s.logger.Warn().Err(err).Str("tab", tabID).Msg("kernel connect failed")
		return
	}
	defer s.kernel.Disconnect(tabID, sub)

	done := make(chan struct{})
	go s.readPings(conn, tabID, done)

	for {
		select {
		case msg, ok := <-sub:
			if !ok {
				return
			}
			if msg.Namespace != "" && msg.Namespace != namespace {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readPings drains inbound frames (tabs send a ping to refresh their
// liveness window) until the connection closes.
func (s *Server) readPings(conn *websocket.Conn, tabID string, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ping struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &ping) == nil && ping.Type == "ping" {
			s.kernel.Ping(tabID)
		}
	}
}
