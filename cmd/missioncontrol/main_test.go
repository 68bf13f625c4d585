package main

import (
	"context"
	"errors"
	"testing"

	"github.com/antoniostano/missioncontrol/internal/store"
)

type unavailableStore struct {
	store.Store
	closed int
}

func (s *unavailableStore) WithTx(context.Context, func(tx store.Tx) error) error {
	return errors.New("database is locked")
}

func (s *unavailableStore) Close() error {
	s.closed++
	return nil
}

func TestPrepareStoreClosesStoreWhenSeedFails(t *testing.T) {
	st := &unavailableStore{Store: store.NewInMemoryStore()}

	err := prepareStore(context.Background(), st, true)
	if err == nil {
		t.Fatalf("prepareStore() error = nil, want seed failure")
	}
	if st.closed != 1 {
		t.Fatalf("Close() calls = %d, want 1", st.closed)
	}
}

func TestPrepareStoreSeedsAndKeepsStoreOpen(t *testing.T) {
	mem := store.NewInMemoryStore()
	st := &unavailableStore{Store: mem}

	if err := prepareStore(context.Background(), st, false); err != nil {
		t.Fatalf("prepareStore(seed=false) error = %v", err)
	}
	if st.closed != 0 {
		t.Fatalf("Close() calls = %d, want 0 when seeding is off", st.closed)
	}

	if err := prepareStore(context.Background(), mem, true); err != nil {
		t.Fatalf("prepareStore(seed=true) error = %v", err)
	}
	tasks, _ := mem.ListTasks(context.Background())
	if len(tasks) != 4 {
		t.Fatalf("tasks after seed = %d, want 4", len(tasks))
	}
}
