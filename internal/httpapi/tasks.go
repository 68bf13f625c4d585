package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/antoniostano/missioncontrol/internal/tasks"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.tasks.List(r.Context())
	if err != nil {
		respondTaskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req tasks.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondDecodeError(w, err)
		return
	}

	task, err := s.tasks.Create(r.Context(), req)
	if err != nil {
		respondTaskError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "task id must be a positive integer")
		return
	}

	var req tasks.UpdateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondDecodeError(w, err)
		return
	}

	task, err := s.tasks.Update(r.Context(), id, req)
	if err != nil {
		respondTaskError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "task id must be a positive integer")
		return
	}
	if err := s.tasks.Delete(r.Context(), id); err != nil {
		respondTaskError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tasks.ErrValidation):
		respondError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	case errors.Is(err, tasks.ErrTaskNotFound):
		respondError(w, http.StatusNotFound, "task_not_found", "Task not found")
	default:
		log.Printf("httpapi: task operation failed: %v", err)
		respondError(w, http.StatusInternalServerError, "persistence_failed", "task could not be saved")
	}
}
