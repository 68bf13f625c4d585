package httpapi

import (
	"log"
	"net/http"
)

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.history.ListAll(r.Context())
	if err != nil {
		log.Printf("httpapi: list history failed: %v", err)
		respondError(w, http.StatusInternalServerError, "persistence_failed", "history unavailable")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}
