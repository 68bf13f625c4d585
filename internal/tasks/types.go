package tasks

import (
	"context"
	"errors"

	"github.com/antoniostano/missioncontrol/internal/store"
)

type Status string

const (
	StatusBacklog    Status = "Backlog"
	StatusNew        Status = "New"
	StatusInProgress Status = "In Progress"
	StatusBuilt      Status = "Built"
)

const DefaultType = "Feature"

// createdHistoryStatus is the fixed label recorded when a task is created,
// whatever the task's own initial status is.
const createdHistoryStatus = "New"

const historyTextLimit = 60

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrValidation   = errors.New("invalid task input")
)

func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusNew, StatusInProgress, StatusBuilt:
		return true
	default:
		return false
	}
}

type CreateRequest struct {
	Text   string  `json:"text"`
	Status *Status `json:"status,omitempty"`
	Type   *string `json:"type,omitempty"`
}

// UpdateRequest holds a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	Text   *string `json:"text,omitempty"`
	Status *Status `json:"status,omitempty"`
	Type   *string `json:"type,omitempty"`
}

// History is the slice of the history recorder the manager depends on.
type History interface {
	AppendTx(ctx context.Context, tx store.Tx, taskID *int64, event, status string) (store.HistoryEntry, error)
}

// Notifier receives task events after they commit. Delivery is best-effort.
type Notifier interface {
	Broadcast(msg any)
}
