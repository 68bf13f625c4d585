package store

import "time"

// Task is a tracked work item.
type Task struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry is an immutable audit record. TaskID is a weak reference and
// may point at a task that no longer exists.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	TaskID    *int64    `json:"task_id"`
	Event     string    `json:"event"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type Idea struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

func ValidApprovalStatus(s string) bool {
	return s == ApprovalPending || s == ApprovalApproved || s == ApprovalRejected
}

type Approval struct {
	ID           int64     `json:"id"`
	TaskID       *int64    `json:"task_id"`
	TaskText     string    `json:"task_text"`
	WhatWasBuilt string    `json:"what_was_built"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// OutputTypes lists the accepted deliverable categories.
var OutputTypes = []string{"Code", "Research", "Content", "Docs"}

func ValidOutputType(t string) bool {
	for _, v := range OutputTypes {
		if v == t {
			return true
		}
	}
	return false
}

type Output struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	TaskID      *int64    `json:"task_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h HistoryEntry) Clone() HistoryEntry {
	out := h
	out.TaskID = cloneID(h.TaskID)
	return out
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// normalizeTime truncates to microseconds so every backend round-trips the
// same value (PostgreSQL stores microsecond precision).
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Microsecond)
}
