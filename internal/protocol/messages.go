package protocol

import "github.com/antoniostano/missioncontrol/internal/store"

// EventType identifies server → client realtime payloads.
type EventType string

const (
	EventTaskUpdated EventType = "task_updated"
)

// TaskUpdated carries the full task after a successful update.
type TaskUpdated struct {
	Event EventType  `json:"event"`
	Task  store.Task `json:"task"`
}

func NewTaskUpdated(task store.Task) TaskUpdated {
	return TaskUpdated{Event: EventTaskUpdated, Task: task}
}

// EventOf reports the event label of a realtime message, used for metrics.
func EventOf(v any) EventType {
	switch m := v.(type) {
	case TaskUpdated:
		return m.Event
	case *TaskUpdated:
		return m.Event
	default:
		return "unknown"
	}
}
