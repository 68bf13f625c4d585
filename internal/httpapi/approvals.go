package httpapi

import (
	"errors"
	"net/http"

	"github.com/antoniostano/missioncontrol/internal/store"
)

type createApprovalRequest struct {
	TaskID       *int64  `json:"task_id"`
	TaskText     *string `json:"task_text"`
	WhatWasBuilt *string `json:"what_was_built"`
	Status       *string `json:"status"`
}

// handleListApprovals returns the pending review queue only.
func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	approvals, err := s.store.ListApprovals(r.Context(), store.ApprovalPending)
	if err != nil {
		respondStoreError(w, "list approvals", err)
		return
	}
	respondJSON(w, http.StatusOK, approvals)
}

func (s *Server) handleCreateApproval(w http.ResponseWriter, r *http.Request) {
	var req createApprovalRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondDecodeError(w, err)
		return
	}
	if req.TaskText == nil || req.WhatWasBuilt == nil {
		respondError(w, http.StatusUnprocessableEntity, "validation_failed", "task_text and what_was_built are required")
		return
	}
	status := store.ApprovalPending
	if req.Status != nil {
		status = *req.Status
	}
	if !store.ValidApprovalStatus(status) {
		respondError(w, http.StatusUnprocessableEntity, "validation_failed", "status must be pending, approved or rejected")
		return
	}

	approval, err := s.store.CreateApproval(r.Context(), store.Approval{
		TaskID:       req.TaskID,
		TaskText:     *req.TaskText,
		WhatWasBuilt: *req.WhatWasBuilt,
		Status:       status,
	})
	if err != nil {
		respondStoreError(w, "create approval", err)
		return
	}
	respondJSON(w, http.StatusCreated, approval)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.setApprovalStatus(w, r, store.ApprovalApproved)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.setApprovalStatus(w, r, store.ApprovalRejected)
}

func (s *Server) setApprovalStatus(w http.ResponseWriter, r *http.Request, status string) {
	id, ok := parseID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_approval_id", "approval id must be a positive integer")
		return
	}
	approval, err := s.store.SetApprovalStatus(r.Context(), id, status)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "approval_not_found", "Approval not found")
			return
		}
		respondStoreError(w, "update approval", err)
		return
	}
	respondJSON(w, http.StatusOK, approval)
}
