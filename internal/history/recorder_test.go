package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/antoniostano/missioncontrol/internal/store"
)

func TestAppendAndListNewestFirst(t *testing.T) {
	st := store.NewInMemoryStore()
	r := NewRecorder(st, nil)
	ctx := context.Background()
	at := time.Date(2026, 2, 22, 10, 43, 0, 0, time.UTC)
	r.now = func() time.Time { return at }

	id := int64(7)
	for _, event := range []string{"first", "second", "third"} {
		if _, err := r.Append(ctx, &id, event, "New"); err != nil {
			t.Fatalf("Append(%q) error = %v", event, err)
		}
	}
	if _, err := r.Append(ctx, nil, "system note", "Built"); err != nil {
		t.Fatalf("Append(nil task) error = %v", err)
	}

	entries, err := r.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	want := []string{"system note", "third", "second", "first"}
	if len(entries) != len(want) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Event != want[i] {
			t.Fatalf("entries[%d].Event = %q, want %q", i, e.Event, want[i])
		}
		if !e.CreatedAt.Equal(at) {
			t.Fatalf("entries[%d].CreatedAt = %v, want %v", i, e.CreatedAt, at)
		}
	}
	if entries[0].TaskID != nil {
		t.Fatalf("system entry task_id = %v, want nil", *entries[0].TaskID)
	}
	if entries[1].TaskID == nil || *entries[1].TaskID != 7 {
		t.Fatalf("entries[1].TaskID = %v, want 7", entries[1].TaskID)
	}
}

func TestAppendTxRollsBackWithCaller(t *testing.T) {
	st := store.NewInMemoryStore()
	r := NewRecorder(st, nil)
	ctx := context.Background()
	boom := errors.New("caller failed")

	err := st.WithTx(ctx, func(tx store.Tx) error {
		if _, err := r.AppendTx(ctx, tx, nil, "never visible", "New"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want %v", err, boom)
	}
	entries, err := r.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("len(entries) = %d, want 0 after rollback", len(entries))
	}
}

func TestListAllEmpty(t *testing.T) {
	r := NewRecorder(store.NewInMemoryStore(), nil)
	entries, err := r.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Fatalf("entries = %#v, want empty non-nil slice", entries)
	}
}
