package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/missioncontrol/internal/history"
	"github.com/antoniostano/missioncontrol/internal/observability"
	"github.com/antoniostano/missioncontrol/internal/protocol"
	"github.com/antoniostano/missioncontrol/internal/store"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []any
}

func (n *recordingNotifier) Broadcast(msg any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) messages() []any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]any(nil), n.msgs...)
}

type failingHistory struct{}

func (failingHistory) AppendTx(context.Context, store.Tx, *int64, string, string) (store.HistoryEntry, error) {
	return store.HistoryEntry{}, errors.New("history unavailable")
}

type fixture struct {
	store    *store.InMemoryStore
	recorder *history.Recorder
	notifier *recordingNotifier
	manager  *Manager
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	metrics := observability.NewMetrics("test_tasks_" + strings.ReplaceAll(uuid.NewString(), "-", ""))
	rec := history.NewRecorder(st, metrics)
	notifier := &recordingNotifier{}
	return fixture{
		store:    st,
		recorder: rec,
		notifier: notifier,
		manager:  NewManager(st, rec, notifier, metrics),
	}
}

func statusPtr(s Status) *Status { return &s }

func stringPtr(s string) *string { return &s }

func TestCreateDefaultsAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.manager.Create(ctx, CreateRequest{Text: "Write docs"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.ID == 0 {
		t.Fatalf("task.ID = 0, want assigned id")
	}
	if task.Status != string(StatusBacklog) {
		t.Fatalf("task.Status = %q, want %q", task.Status, StatusBacklog)
	}
	if task.Type != DefaultType {
		t.Fatalf("task.Type = %q, want %q", task.Type, DefaultType)
	}
	if !task.CreatedAt.Equal(task.UpdatedAt) {
		t.Fatalf("created_at %v != updated_at %v on create", task.CreatedAt, task.UpdatedAt)
	}

	entries, err := f.recorder.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history len = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.TaskID == nil || *got.TaskID != task.ID {
		t.Fatalf("history task_id = %v, want %d", got.TaskID, task.ID)
	}
	if got.Event != "Task created: Write docs" {
		t.Fatalf("history event = %q", got.Event)
	}
	if got.Status != "New" {
		t.Fatalf("history status = %q, want New", got.Status)
	}
	if n := len(f.notifier.messages()); n != 0 {
		t.Fatalf("create broadcast %d messages, want 0", n)
	}
}

// The create entry is labelled "New" even when the task starts elsewhere.
func TestCreateHistoryStatusIsFixedLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.manager.Create(ctx, CreateRequest{Text: "Ship it", Status: statusPtr(StatusBuilt), Type: stringPtr("Bug")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.Status != string(StatusBuilt) || task.Type != "Bug" {
		t.Fatalf("task = %+v, want status Built type Bug", task)
	}
	entries, _ := f.recorder.ListAll(ctx)
	if len(entries) != 1 || entries[0].Status != "New" {
		t.Fatalf("history = %+v, want one entry with status New", entries)
	}
}

func TestCreateTruncatesHistoryEventText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	long := strings.Repeat("é", 75)
	task, err := f.manager.Create(ctx, CreateRequest{Text: long})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.Text != long {
		t.Fatalf("stored text was truncated")
	}
	entries, _ := f.recorder.ListAll(ctx)
	want := "Task created: " + strings.Repeat("é", 60)
	if entries[0].Event != want {
		t.Fatalf("event = %q, want %q", entries[0].Event, want)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []CreateRequest{
		{Text: ""},
		{Text: "   "},
		{Text: "ok", Status: statusPtr("Done")},
	}
	for _, req := range cases {
		if _, err := f.manager.Create(ctx, req); !errors.Is(err, ErrValidation) {
			t.Fatalf("Create(%+v) error = %v, want ErrValidation", req, err)
		}
	}
	tasks, _ := f.manager.List(ctx)
	entries, _ := f.recorder.ListAll(ctx)
	if len(tasks) != 0 || len(entries) != 0 {
		t.Fatalf("rejected creates left %d tasks and %d history entries", len(tasks), len(entries))
	}
}

func TestCreateRollsBackWhenHistoryFails(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewManager(st, failingHistory{}, &recordingNotifier{}, nil)
	ctx := context.Background()

	if _, err := m.Create(ctx, CreateRequest{Text: "orphan"}); err == nil {
		t.Fatalf("Create() error = nil, want history failure")
	}
	tasks, err := st.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("tasks = %d, want 0 after rollback", len(tasks))
	}
}

func TestUpdateStatusRecordsHistoryAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.manager.Create(ctx, CreateRequest{Text: "Fix bug", Status: statusPtr(StatusBacklog)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := f.manager.Update(ctx, task.ID, UpdateRequest{Status: statusPtr(StatusInProgress)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Status != string(StatusInProgress) {
		t.Fatalf("updated.Status = %q, want In Progress", updated.Status)
	}
	if updated.Text != "Fix bug" || updated.Type != DefaultType {
		t.Fatalf("unprovided fields changed: %+v", updated)
	}
	if !updated.UpdatedAt.After(task.UpdatedAt) {
		t.Fatalf("updated_at %v not after %v", updated.UpdatedAt, task.UpdatedAt)
	}
	if !updated.CreatedAt.Equal(task.CreatedAt) {
		t.Fatalf("created_at changed on update")
	}

	entries, _ := f.recorder.ListAll(ctx)
	if len(entries) != 2 {
		t.Fatalf("history len = %d, want 2", len(entries))
	}
	if entries[0].Event != "Status changed to In Progress" || entries[0].Status != "In Progress" {
		t.Fatalf("newest history = %+v", entries[0])
	}

	msgs := f.notifier.messages()
	if len(msgs) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(msgs))
	}
	msg, ok := msgs[0].(protocol.TaskUpdated)
	if !ok {
		t.Fatalf("broadcast type = %T, want protocol.TaskUpdated", msgs[0])
	}
	if msg.Event != protocol.EventTaskUpdated || msg.Task.ID != updated.ID || msg.Task.Status != updated.Status {
		t.Fatalf("broadcast = %+v, want task_updated with %+v", msg, updated)
	}
}

func TestUpdateTextOnlyStillRecordsStatusEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, _ := f.manager.Create(ctx, CreateRequest{Text: "draft", Status: statusPtr(StatusNew)})
	if _, err := f.manager.Update(ctx, task.ID, UpdateRequest{Text: stringPtr("final")}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	entries, _ := f.recorder.ListAll(ctx)
	if entries[0].Event != "Status changed to New" {
		t.Fatalf("event = %q, want current status echoed", entries[0].Event)
	}
	if n := len(f.notifier.messages()); n != 1 {
		t.Fatalf("broadcasts = %d, want 1", n)
	}
}

func TestUpdateEmptyBodyTouchesTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, _ := f.manager.Create(ctx, CreateRequest{Text: "idle"})
	updated, err := f.manager.Update(ctx, task.ID, UpdateRequest{})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !updated.UpdatedAt.After(task.UpdatedAt) {
		t.Fatalf("updated_at not advanced on empty update")
	}
	entries, _ := f.recorder.ListAll(ctx)
	if len(entries) != 2 {
		t.Fatalf("history len = %d, want 2", len(entries))
	}
}

func TestUpdateMissingTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Update(ctx, 999, UpdateRequest{Status: statusPtr(StatusBuilt)})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("Update() error = %v, want ErrTaskNotFound", err)
	}
	entries, _ := f.recorder.ListAll(ctx)
	if len(entries) != 0 {
		t.Fatalf("history len = %d, want 0", len(entries))
	}
	if n := len(f.notifier.messages()); n != 0 {
		t.Fatalf("broadcasts = %d, want 0", n)
	}
}

func TestUpdateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, _ := f.manager.Create(ctx, CreateRequest{Text: "keep"})
	if _, err := f.manager.Update(ctx, task.ID, UpdateRequest{Status: statusPtr("Shipped")}); !errors.Is(err, ErrValidation) {
		t.Fatalf("Update(bad status) error = %v, want ErrValidation", err)
	}
	if _, err := f.manager.Update(ctx, task.ID, UpdateRequest{Text: stringPtr(" ")}); !errors.Is(err, ErrValidation) {
		t.Fatalf("Update(blank text) error = %v, want ErrValidation", err)
	}
	got, _ := f.store.GetTask(ctx, task.ID)
	if got.Status != task.Status || got.Text != task.Text || !got.UpdatedAt.Equal(task.UpdatedAt) {
		t.Fatalf("task changed after rejected updates: %+v", got)
	}
	if n := len(f.notifier.messages()); n != 0 {
		t.Fatalf("broadcasts = %d, want 0", n)
	}
}

func TestUpdateRollsBackWhenHistoryFails(t *testing.T) {
	st := store.NewInMemoryStore()
	notifier := &recordingNotifier{}
	ctx := context.Background()

	rec := history.NewRecorder(st, nil)
	good := NewManager(st, rec, notifier, nil)
	task, err := good.Create(ctx, CreateRequest{Text: "stable"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	bad := NewManager(st, failingHistory{}, notifier, nil)
	if _, err := bad.Update(ctx, task.ID, UpdateRequest{Status: statusPtr(StatusBuilt)}); err == nil {
		t.Fatalf("Update() error = nil, want history failure")
	}
	got, _ := st.GetTask(ctx, task.ID)
	if got.Status != string(StatusBacklog) {
		t.Fatalf("status = %q after rollback, want Backlog", got.Status)
	}
	if n := len(notifier.messages()); n != 0 {
		t.Fatalf("broadcasts = %d, want 0 after failed update", n)
	}
}

func TestDeleteKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, _ := f.manager.Create(ctx, CreateRequest{Text: "short lived"})
	if err := f.manager.Delete(ctx, task.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := f.manager.Delete(ctx, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrTaskNotFound", err)
	}

	tasks, _ := f.manager.List(ctx)
	if len(tasks) != 0 {
		t.Fatalf("tasks = %d, want 0", len(tasks))
	}
	entries, _ := f.recorder.ListAll(ctx)
	if len(entries) != 1 || entries[0].TaskID == nil || *entries[0].TaskID != task.ID {
		t.Fatalf("history = %+v, want the create entry still pointing at %d", entries, task.ID)
	}
	if n := len(f.notifier.messages()); n != 0 {
		t.Fatalf("broadcasts = %d, want 0", n)
	}
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 22, 10, 0, 0, 0, time.UTC)
	tick := 0
	f.manager.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, text := range []string{"first", "second", "third"} {
		if _, err := f.manager.Create(ctx, CreateRequest{Text: text}); err != nil {
			t.Fatalf("Create(%q) error = %v", text, err)
		}
	}
	tasks, err := f.manager.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var got []string
	for _, task := range tasks {
		got = append(got, task.Text)
	}
	if strings.Join(got, ",") != "third,second,first" {
		t.Fatalf("order = %v, want third,second,first", got)
	}
}

func TestBroadcastPayloadShape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, _ := f.manager.Create(ctx, CreateRequest{Text: "fix bug"})
	if _, err := f.manager.Update(ctx, task.ID, UpdateRequest{Status: statusPtr(StatusBuilt)}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	raw, err := json.Marshal(f.notifier.messages()[0])
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["event"] != "task_updated" {
		t.Fatalf("event = %v", decoded["event"])
	}
	inner, ok := decoded["task"].(map[string]any)
	if !ok || inner["status"] != "Built" || inner["text"] != "fix bug" {
		t.Fatalf("task payload = %v", decoded["task"])
	}
}

func TestNextUpdatedAtStrictlyIncreases(t *testing.T) {
	prev := time.Date(2026, 2, 22, 10, 0, 0, 0, time.UTC)
	if got := nextUpdatedAt(prev, prev); !got.After(prev) {
		t.Fatalf("nextUpdatedAt(equal) = %v, want after %v", got, prev)
	}
	if got := nextUpdatedAt(prev, prev.Add(-time.Hour)); !got.After(prev) {
		t.Fatalf("nextUpdatedAt(clock skew) = %v, want after %v", got, prev)
	}
	later := prev.Add(time.Second)
	if got := nextUpdatedAt(prev, later); !got.Equal(later) {
		t.Fatalf("nextUpdatedAt(later) = %v, want %v", got, later)
	}
}
