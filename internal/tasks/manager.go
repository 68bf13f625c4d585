package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/missioncontrol/internal/observability"
	"github.com/antoniostano/missioncontrol/internal/protocol"
	"github.com/antoniostano/missioncontrol/internal/store"
)

// Manager owns task mutation rules. Every create and update appends one
// history entry in the same transaction as the task write; updates are then
// broadcast to realtime subscribers.
type Manager struct {
	store    store.Store
	history  History
	notifier Notifier
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewManager(st store.Store, history History, notifier Notifier, metrics *observability.Metrics) *Manager {
	return &Manager{
		store:    st,
		history:  history,
		notifier: notifier,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) List(ctx context.Context) ([]store.Task, error) {
	tasks, err := m.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (m *Manager) Create(ctx context.Context, req CreateRequest) (store.Task, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return store.Task{}, fmt.Errorf("%w: text is required", ErrValidation)
	}
	status := StatusBacklog
	if req.Status != nil {
		status = *req.Status
	}
	if !status.Valid() {
		return store.Task{}, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	taskType := DefaultType
	if req.Type != nil {
		taskType = *req.Type
	}

	now := m.now()
	var created store.Task
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		task, err := tx.InsertTask(ctx, store.Task{
			Text:      req.Text,
			Status:    string(status),
			Type:      taskType,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		event := "Task created: " + truncateRunes(task.Text, historyTextLimit)
		if _, err := m.history.AppendTx(ctx, tx, &task.ID, event, createdHistoryStatus); err != nil {
			return err
		}
		created = task
		return nil
	})
	m.metrics.ObserveTaskMutation("create", err)
	if err != nil {
		return store.Task{}, fmt.Errorf("create task: %w", err)
	}
	return created, nil
}

// Update applies the provided fields. It records history and broadcasts on
// every successful call, including when nothing changed.
func (m *Manager) Update(ctx context.Context, id int64, req UpdateRequest) (store.Task, error) {
	if req.Text != nil && strings.TrimSpace(*req.Text) == "" {
		return store.Task{}, fmt.Errorf("%w: text must not be empty", ErrValidation)
	}
	if req.Status != nil && !req.Status.Valid() {
		return store.Task{}, fmt.Errorf("%w: unknown status %q", ErrValidation, *req.Status)
	}

	var updated store.Task
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if req.Text != nil {
			task.Text = *req.Text
		}
		if req.Status != nil {
			task.Status = string(*req.Status)
		}
		if req.Type != nil {
			task.Type = *req.Type
		}
		task.UpdatedAt = nextUpdatedAt(task.UpdatedAt, m.now())
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		if _, err := m.history.AppendTx(ctx, tx, &task.ID, "Status changed to "+task.Status, task.Status); err != nil {
			return err
		}
		updated = task
		return nil
	})
	m.metrics.ObserveTaskMutation("update", err)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Task{}, ErrTaskNotFound
		}
		return store.Task{}, fmt.Errorf("update task %d: %w", id, err)
	}

	if m.notifier != nil {
		m.notifier.Broadcast(protocol.NewTaskUpdated(updated))
	}
	return updated, nil
}

// Delete removes the task only; history, approvals and outputs that mention
// it are kept.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.DeleteTask(ctx, id)
	})
	m.metrics.ObserveTaskMutation("delete", err)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// nextUpdatedAt keeps updated_at strictly increasing at the microsecond
// precision the stores persist.
func nextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
