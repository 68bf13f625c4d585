package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/antoniostano/missioncontrol/internal/store"
)

func TestTaskUpdatedWireShape(t *testing.T) {
	at := time.Date(2026, 2, 22, 10, 43, 0, 0, time.UTC)
	msg := NewTaskUpdated(store.Task{
		ID:        3,
		Text:      "fix bug",
		Status:    "Built",
		Type:      "Feature",
		CreatedAt: at,
		UpdatedAt: at.Add(time.Minute),
	})

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["event"] != "task_updated" {
		t.Fatalf("event = %v, want task_updated", decoded["event"])
	}
	task, ok := decoded["task"].(map[string]any)
	if !ok {
		t.Fatalf("task = %T, want object", decoded["task"])
	}
	if task["id"] != float64(3) || task["status"] != "Built" || task["type"] != "Feature" {
		t.Fatalf("task = %+v", task)
	}
	if task["created_at"] != "2026-02-22T10:43:00Z" {
		t.Fatalf("created_at = %v, want RFC 3339 UTC", task["created_at"])
	}
	if task["updated_at"] != "2026-02-22T10:44:00Z" {
		t.Fatalf("updated_at = %v, want RFC 3339 UTC", task["updated_at"])
	}
}

func TestEventOf(t *testing.T) {
	if got := EventOf(NewTaskUpdated(store.Task{})); got != EventTaskUpdated {
		t.Fatalf("EventOf(TaskUpdated) = %q, want %q", got, EventTaskUpdated)
	}
	if got := EventOf(map[string]string{"event": "x"}); got != "unknown" {
		t.Fatalf("EventOf(map) = %q, want unknown", got)
	}
}
