package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/antoniostano/missioncontrol/internal/store"
)

type createIdeaRequest struct {
	Text *string `json:"text"`
}

func (s *Server) handleListIdeas(w http.ResponseWriter, r *http.Request) {
	ideas, err := s.store.ListIdeas(r.Context())
	if err != nil {
		respondStoreError(w, "list ideas", err)
		return
	}
	respondJSON(w, http.StatusOK, ideas)
}

func (s *Server) handleCreateIdea(w http.ResponseWriter, r *http.Request) {
	var req createIdeaRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondDecodeError(w, err)
		return
	}
	if req.Text == nil || strings.TrimSpace(*req.Text) == "" {
		respondError(w, http.StatusUnprocessableEntity, "validation_failed", "text is required")
		return
	}

	idea, err := s.store.CreateIdea(r.Context(), store.Idea{Text: *req.Text})
	if err != nil {
		respondStoreError(w, "create idea", err)
		return
	}
	respondJSON(w, http.StatusCreated, idea)
}

func (s *Server) handleDeleteIdea(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_idea_id", "idea id must be a positive integer")
		return
	}
	if err := s.store.DeleteIdea(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "idea_not_found", "Idea not found")
			return
		}
		respondStoreError(w, "delete idea", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondStoreError(w http.ResponseWriter, op string, err error) {
	log.Printf("httpapi: %s failed: %v", op, err)
	respondError(w, http.StatusInternalServerError, "persistence_failed", op+" failed")
}
