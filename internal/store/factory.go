package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/missioncontrol/internal/reliability"
)

const (
	openAttempts   = 6
	openBackoff    = 250 * time.Millisecond
	openBackoffCap = 4 * time.Second
)

// NewStore picks a backend from the database URL: empty means in-memory,
// postgres:// and postgresql:// use PostgreSQL, sqlite://, file: and *.db
// paths use SQLite.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	lower := strings.ToLower(databaseURL)
	switch {
	case databaseURL == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		var st *PostgresStore
		err := reliability.Retry(ctx, "open postgres store", openAttempts, openBackoff, openBackoffCap, func(ctx context.Context) error {
			var err error
			st, err = NewPostgresStore(ctx, databaseURL)
			return err
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return NewSQLiteStore(ctx, databaseURL[len("sqlite://"):])
	case strings.HasPrefix(lower, "file:"), strings.HasSuffix(lower, ".db"), lower == ":memory:":
		return NewSQLiteStore(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", databaseURL)
	}
}
