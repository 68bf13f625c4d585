package history

import (
	"context"
	"fmt"
	"time"

	"github.com/antoniostano/missioncontrol/internal/observability"
	"github.com/antoniostano/missioncontrol/internal/store"
)

// Recorder appends immutable history entries and serves the newest-first feed.
type Recorder struct {
	store   store.Store
	metrics *observability.Metrics
	now     func() time.Time
}

func NewRecorder(st store.Store, metrics *observability.Metrics) *Recorder {
	return &Recorder{
		store:   st,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append writes a standalone entry in its own transaction.
func (r *Recorder) Append(ctx context.Context, taskID *int64, event, status string) (store.HistoryEntry, error) {
	var entry store.HistoryEntry
	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		entry, err = r.AppendTx(ctx, tx, taskID, event, status)
		return err
	})
	if err != nil {
		return store.HistoryEntry{}, err
	}
	return entry, nil
}

// AppendTx writes an entry inside the caller's transaction so it commits or
// rolls back together with the caller's other writes.
func (r *Recorder) AppendTx(ctx context.Context, tx store.Tx, taskID *int64, event, status string) (store.HistoryEntry, error) {
	entry, err := tx.InsertHistory(ctx, store.HistoryEntry{
		TaskID:    taskID,
		Event:     event,
		Status:    status,
		CreatedAt: r.now(),
	})
	if err != nil {
		return store.HistoryEntry{}, fmt.Errorf("append history: %w", err)
	}
	if r.metrics != nil {
		r.metrics.HistoryEntries.Inc()
	}
	return entry, nil
}

func (r *Recorder) ListAll(ctx context.Context) ([]store.HistoryEntry, error) {
	entries, err := r.store.ListHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}
