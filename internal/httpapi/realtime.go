package httpapi

import (
	"log"
	"net/http"
)

// handleRealtimeWS registers the connection with the hub and drains inbound
// frames until the peer goes away. Clients never send anything meaningful.
func (s *Server) handleRealtimeWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "realtime hub not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("httpapi: websocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(int64(s.readLimit()))

	sub := s.hub.Subscribe(conn)
	defer s.hub.Unsubscribe(sub)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) readLimit() int {
	if s.cfg.WSReadLimit <= 0 {
		return 4096
	}
	return s.cfg.WSReadLimit
}
