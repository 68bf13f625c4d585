package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a process-local store for development and tests.
type InMemoryStore struct {
	mu sync.RWMutex

	tasks     map[int64]Task
	history   []HistoryEntry
	ideas     []Idea
	approvals []Approval
	outputs   []Output

	nextTaskID     int64
	nextHistoryID  int64
	nextIdeaID     int64
	nextApprovalID int64
	nextOutputID   int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tasks: make(map[int64]Task)}
}

func (s *InMemoryStore) ListTasks(_ context.Context) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

func (s *InMemoryStore) GetTask(_ context.Context, id int64) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (s *InMemoryStore) ListHistory(_ context.Context) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryEntry, 0, len(s.history))
	for _, h := range s.history {
		out = append(out, h.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

// WithTx holds the write lock for the whole of fn and restores a snapshot of
// the store if fn fails.
func (s *InMemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	if err := fn(&inMemoryTx{s: s}); err != nil {
		s.restoreLocked(snap)
		return err
	}
	return nil
}

// inMemorySnapshot relies on history, ideas, approvals and outputs only
// growing by append inside a transaction.
type inMemorySnapshot struct {
	tasks        map[int64]Task
	historyLen   int
	ideasLen     int
	approvalsLen int
	outputsLen   int

	nextTaskID     int64
	nextHistoryID  int64
	nextIdeaID     int64
	nextApprovalID int64
	nextOutputID   int64
}

func (s *InMemoryStore) snapshotLocked() inMemorySnapshot {
	tasks := make(map[int64]Task, len(s.tasks))
	for id, t := range s.tasks {
		tasks[id] = t
	}
	return inMemorySnapshot{
		tasks:          tasks,
		historyLen:     len(s.history),
		ideasLen:       len(s.ideas),
		approvalsLen:   len(s.approvals),
		outputsLen:     len(s.outputs),
		nextTaskID:     s.nextTaskID,
		nextHistoryID:  s.nextHistoryID,
		nextIdeaID:     s.nextIdeaID,
		nextApprovalID: s.nextApprovalID,
		nextOutputID:   s.nextOutputID,
	}
}

func (s *InMemoryStore) restoreLocked(snap inMemorySnapshot) {
	s.tasks = snap.tasks
	s.history = s.history[:snap.historyLen]
	s.ideas = s.ideas[:snap.ideasLen]
	s.approvals = s.approvals[:snap.approvalsLen]
	s.outputs = s.outputs[:snap.outputsLen]
	s.nextTaskID = snap.nextTaskID
	s.nextHistoryID = snap.nextHistoryID
	s.nextIdeaID = snap.nextIdeaID
	s.nextApprovalID = snap.nextApprovalID
	s.nextOutputID = snap.nextOutputID
}

type inMemoryTx struct {
	s *InMemoryStore
}

func (tx *inMemoryTx) GetTask(_ context.Context, id int64) (Task, error) {
	t, ok := tx.s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (tx *inMemoryTx) InsertTask(_ context.Context, task Task) (Task, error) {
	tx.s.nextTaskID++
	task.ID = tx.s.nextTaskID
	task.CreatedAt = normalizeTime(task.CreatedAt)
	task.UpdatedAt = normalizeTime(task.UpdatedAt)
	tx.s.tasks[task.ID] = task
	return task, nil
}

func (tx *inMemoryTx) UpdateTask(_ context.Context, task Task) error {
	if _, ok := tx.s.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	task.CreatedAt = normalizeTime(task.CreatedAt)
	task.UpdatedAt = normalizeTime(task.UpdatedAt)
	tx.s.tasks[task.ID] = task
	return nil
}

func (tx *inMemoryTx) DeleteTask(_ context.Context, id int64) error {
	if _, ok := tx.s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(tx.s.tasks, id)
	return nil
}

func (tx *inMemoryTx) InsertHistory(_ context.Context, entry HistoryEntry) (HistoryEntry, error) {
	tx.s.nextHistoryID++
	entry.ID = tx.s.nextHistoryID
	entry.TaskID = cloneID(entry.TaskID)
	entry.CreatedAt = normalizeTime(entry.CreatedAt)
	tx.s.history = append(tx.s.history, entry)
	return entry.Clone(), nil
}

func (tx *inMemoryTx) CountTasks(_ context.Context) (int, error) {
	return len(tx.s.tasks), nil
}

func (tx *inMemoryTx) InsertIdea(_ context.Context, idea Idea) (Idea, error) {
	return tx.s.insertIdeaLocked(idea), nil
}

func (tx *inMemoryTx) InsertApproval(_ context.Context, approval Approval) (Approval, error) {
	return tx.s.insertApprovalLocked(approval), nil
}

func (tx *inMemoryTx) InsertOutput(_ context.Context, output Output) (Output, error) {
	return tx.s.insertOutputLocked(output), nil
}

func (s *InMemoryStore) ListIdeas(_ context.Context) ([]Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]Idea(nil), s.ideas...)
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

func (s *InMemoryStore) CreateIdea(_ context.Context, idea Idea) (Idea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertIdeaLocked(idea), nil
}

func (s *InMemoryStore) insertIdeaLocked(idea Idea) Idea {
	s.nextIdeaID++
	idea.ID = s.nextIdeaID
	idea.CreatedAt = normalizeTime(idea.CreatedAt)
	s.ideas = append(s.ideas, idea)
	return idea
}

func (s *InMemoryStore) DeleteIdea(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, idea := range s.ideas {
		if idea.ID == id {
			s.ideas = append(s.ideas[:i], s.ideas[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryStore) ListApprovals(_ context.Context, status string) ([]Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Approval, 0, len(s.approvals))
	for _, a := range s.approvals {
		if status != "" && a.Status != status {
			continue
		}
		a.TaskID = cloneID(a.TaskID)
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

func (s *InMemoryStore) CreateApproval(_ context.Context, approval Approval) (Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertApprovalLocked(approval), nil
}

func (s *InMemoryStore) insertApprovalLocked(approval Approval) Approval {
	s.nextApprovalID++
	approval.ID = s.nextApprovalID
	approval.TaskID = cloneID(approval.TaskID)
	approval.CreatedAt = normalizeTime(approval.CreatedAt)
	s.approvals = append(s.approvals, approval)
	return approval
}

func (s *InMemoryStore) SetApprovalStatus(_ context.Context, id int64, status string) (Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.approvals {
		if s.approvals[i].ID == id {
			s.approvals[i].Status = status
			out := s.approvals[i]
			out.TaskID = cloneID(out.TaskID)
			return out, nil
		}
	}
	return Approval{}, ErrNotFound
}

func (s *InMemoryStore) ListOutputs(_ context.Context, outputType string) ([]Output, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Output, 0, len(s.outputs))
	for _, o := range s.outputs {
		if outputType != "" && o.Type != outputType {
			continue
		}
		o.TaskID = cloneID(o.TaskID)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

func (s *InMemoryStore) CreateOutput(_ context.Context, output Output) (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertOutputLocked(output), nil
}

func (s *InMemoryStore) insertOutputLocked(output Output) Output {
	s.nextOutputID++
	output.ID = s.nextOutputID
	output.TaskID = cloneID(output.TaskID)
	output.CreatedAt = normalizeTime(output.CreatedAt)
	s.outputs = append(s.outputs, output)
	return output
}

func (s *InMemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *InMemoryStore) Mode() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }

// newerFirst orders by creation time descending, then by id descending so
// rows written later win ties.
func newerFirst(aAt time.Time, aID int64, bAt time.Time, bID int64) bool {
	if !aAt.Equal(bAt) {
		return aAt.After(bAt)
	}
	return aID > bID
}
