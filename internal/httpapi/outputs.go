package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/antoniostano/missioncontrol/internal/store"
)

type createOutputRequest struct {
	Type        string  `json:"type"`
	Title       *string `json:"title"`
	Description string  `json:"description"`
	TaskID      *int64  `json:"task_id"`
}

func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	outputType := strings.TrimSpace(r.URL.Query().Get("type"))
	outputs, err := s.store.ListOutputs(r.Context(), outputType)
	if err != nil {
		respondStoreError(w, "list outputs", err)
		return
	}
	respondJSON(w, http.StatusOK, outputs)
}

func (s *Server) handleCreateOutput(w http.ResponseWriter, r *http.Request) {
	var req createOutputRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondDecodeError(w, err)
		return
	}
	if !store.ValidOutputType(req.Type) {
		respondError(w, http.StatusUnprocessableEntity, "validation_failed", "type must be one of "+strings.Join(store.OutputTypes, ", "))
		return
	}
	if req.Title == nil {
		respondError(w, http.StatusUnprocessableEntity, "validation_failed", "title is required")
		return
	}

	output, err := s.store.CreateOutput(r.Context(), store.Output{
		Type:        req.Type,
		Title:       *req.Title,
		Description: req.Description,
		TaskID:      req.TaskID,
	})
	if err != nil {
		respondStoreError(w, "create output", err)
		return
	}
	respondJSON(w, http.StatusCreated, output)
}
