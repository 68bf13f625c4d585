package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	taskColumns     = `id, text, status, type, created_at, updated_at`
	historyColumns  = `id, task_id, event, status, created_at`
	ideaColumns     = `id, text, created_at`
	approvalColumns = `id, task_id, task_text, what_was_built, status, created_at`
	outputColumns   = `id, type, title, description, task_id, created_at`
)

// PostgresStore persists every entity in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// task_id columns are plain nullable integers: history, approvals and outputs
// outlive the task they mention.
func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id BIGSERIAL PRIMARY KEY,
			text TEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'Backlog',
			type VARCHAR(32) NOT NULL DEFAULT 'Feature',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks (created_at DESC, id DESC);`,
		`CREATE TABLE IF NOT EXISTS history (
			id BIGSERIAL PRIMARY KEY,
			task_id BIGINT NULL,
			event TEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'Built',
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_created ON history (created_at DESC, id DESC);`,
		`CREATE TABLE IF NOT EXISTS ideas (
			id BIGSERIAL PRIMARY KEY,
			text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS approvals (
			id BIGSERIAL PRIMARY KEY,
			task_id BIGINT NULL,
			task_text TEXT NOT NULL,
			what_was_built TEXT NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS outputs (
			id BIGSERIAL PRIMARY KEY,
			type VARCHAR(32) NOT NULL,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			task_id BIGINT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) ListTasks(ctx context.Context) ([]Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]Task, 0, 16)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id int64) (Task, error) {
	return getTaskPostgres(ctx, s.pool, id)
}

func (s *PostgresStore) ListHistory(ctx context.Context) ([]HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+historyColumns+` FROM history ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := make([]HistoryEntry, 0, 32)
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getTaskPostgres(ctx context.Context, q pgQuerier, id int64) (Task, error) {
	row := q.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (p *postgresTx) GetTask(ctx context.Context, id int64) (Task, error) {
	row := p.tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1 FOR UPDATE`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("get task for update: %w", err)
	}
	return t, nil
}

func (p *postgresTx) InsertTask(ctx context.Context, task Task) (Task, error) {
	task.CreatedAt = normalizeTime(task.CreatedAt)
	task.UpdatedAt = normalizeTime(task.UpdatedAt)
	err := p.tx.QueryRow(ctx,
		`INSERT INTO tasks (text, status, type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		task.Text, task.Status, task.Type, task.CreatedAt, task.UpdatedAt,
	).Scan(&task.ID)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

func (p *postgresTx) UpdateTask(ctx context.Context, task Task) error {
	tag, err := p.tx.Exec(ctx,
		`UPDATE tasks SET text=$2, status=$3, type=$4, updated_at=$5 WHERE id=$1`,
		task.ID, task.Text, task.Status, task.Type, normalizeTime(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgresTx) DeleteTask(ctx context.Context, id int64) error {
	tag, err := p.tx.Exec(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgresTx) InsertHistory(ctx context.Context, entry HistoryEntry) (HistoryEntry, error) {
	entry.CreatedAt = normalizeTime(entry.CreatedAt)
	err := p.tx.QueryRow(ctx,
		`INSERT INTO history (task_id, event, status, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		entry.TaskID, entry.Event, entry.Status, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("insert history: %w", err)
	}
	return entry.Clone(), nil
}

func (p *postgresTx) CountTasks(ctx context.Context) (int, error) {
	var n int
	if err := p.tx.QueryRow(ctx, `SELECT count(*) FROM tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func (p *postgresTx) InsertIdea(ctx context.Context, idea Idea) (Idea, error) {
	return insertIdeaPostgres(ctx, p.tx, idea)
}

func (p *postgresTx) InsertApproval(ctx context.Context, approval Approval) (Approval, error) {
	return insertApprovalPostgres(ctx, p.tx, approval)
}

func (p *postgresTx) InsertOutput(ctx context.Context, output Output) (Output, error) {
	return insertOutputPostgres(ctx, p.tx, output)
}

func (s *PostgresStore) ListIdeas(ctx context.Context) ([]Idea, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ideaColumns+` FROM ideas ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	defer rows.Close()

	out := make([]Idea, 0)
	for rows.Next() {
		i, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idea row: %w", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idea rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateIdea(ctx context.Context, idea Idea) (Idea, error) {
	return insertIdeaPostgres(ctx, s.pool, idea)
}

func insertIdeaPostgres(ctx context.Context, q pgQuerier, idea Idea) (Idea, error) {
	idea.CreatedAt = normalizeTime(idea.CreatedAt)
	err := q.QueryRow(ctx,
		`INSERT INTO ideas (text, created_at) VALUES ($1, $2) RETURNING id`,
		idea.Text, idea.CreatedAt,
	).Scan(&idea.ID)
	if err != nil {
		return Idea{}, fmt.Errorf("insert idea: %w", err)
	}
	return idea, nil
}

func (s *PostgresStore) DeleteIdea(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ideas WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete idea: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListApprovals(ctx context.Context, status string) ([]Approval, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+approvalColumns+` FROM approvals
		  WHERE ($1::text = '' OR status = $1::text)
		  ORDER BY created_at DESC, id DESC`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	out := make([]Approval, 0)
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approval rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateApproval(ctx context.Context, approval Approval) (Approval, error) {
	return insertApprovalPostgres(ctx, s.pool, approval)
}

func insertApprovalPostgres(ctx context.Context, q pgQuerier, approval Approval) (Approval, error) {
	approval.CreatedAt = normalizeTime(approval.CreatedAt)
	err := q.QueryRow(ctx,
		`INSERT INTO approvals (task_id, task_text, what_was_built, status, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		approval.TaskID, approval.TaskText, approval.WhatWasBuilt, approval.Status, approval.CreatedAt,
	).Scan(&approval.ID)
	if err != nil {
		return Approval{}, fmt.Errorf("insert approval: %w", err)
	}
	return approval, nil
}

func (s *PostgresStore) SetApprovalStatus(ctx context.Context, id int64, status string) (Approval, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE approvals SET status=$2 WHERE id=$1 RETURNING `+approvalColumns,
		id, status,
	)
	a, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Approval{}, ErrNotFound
		}
		return Approval{}, fmt.Errorf("update approval: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListOutputs(ctx context.Context, outputType string) ([]Output, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+outputColumns+` FROM outputs
		  WHERE ($1::text = '' OR type = $1::text)
		  ORDER BY created_at DESC, id DESC`,
		outputType,
	)
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	defer rows.Close()

	out := make([]Output, 0)
	for rows.Next() {
		o, err := scanOutput(rows)
		if err != nil {
			return nil, fmt.Errorf("scan output row: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate output rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateOutput(ctx context.Context, output Output) (Output, error) {
	return insertOutputPostgres(ctx, s.pool, output)
}

func insertOutputPostgres(ctx context.Context, q pgQuerier, output Output) (Output, error) {
	output.CreatedAt = normalizeTime(output.CreatedAt)
	err := q.QueryRow(ctx,
		`INSERT INTO outputs (type, title, description, task_id, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		output.Type, output.Title, output.Description, output.TaskID, output.CreatedAt,
	).Scan(&output.ID)
	if err != nil {
		return Output{}, fmt.Errorf("insert output: %w", err)
	}
	return output, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
