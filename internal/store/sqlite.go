package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists every entity in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+"_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps ":memory:" pinned to a single database.
	db.SetMaxOpenConns(1)

	if err := initSQLiteSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'Backlog',
			type VARCHAR(32) NOT NULL DEFAULT 'Feature',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks (created_at DESC, id DESC);`,
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER NULL,
			event TEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'Built',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_created ON history (created_at DESC, id DESC);`,
		`CREATE TABLE IF NOT EXISTS ideas (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS approvals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER NULL,
			task_text TEXT NOT NULL,
			what_was_built TEXT NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS outputs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type VARCHAR(32) NOT NULL,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			task_id INTEGER NULL,
			created_at DATETIME NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
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

func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (Task, error) {
	return getTaskSQL(ctx, s.db, id)
}

func (s *SQLiteStore) ListHistory(ctx context.Context) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
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

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getTaskSQL(ctx context.Context, q sqlQuerier, id int64) (Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (x *sqliteTx) GetTask(ctx context.Context, id int64) (Task, error) {
	return getTaskSQL(ctx, x.tx, id)
}

func (x *sqliteTx) InsertTask(ctx context.Context, task Task) (Task, error) {
	task.CreatedAt = normalizeTime(task.CreatedAt)
	task.UpdatedAt = normalizeTime(task.UpdatedAt)
	res, err := x.tx.ExecContext(ctx,
		`INSERT INTO tasks (text, status, type, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		task.Text, task.Status, task.Type, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	if task.ID, err = res.LastInsertId(); err != nil {
		return Task{}, fmt.Errorf("insert task id: %w", err)
	}
	return task, nil
}

func (x *sqliteTx) UpdateTask(ctx context.Context, task Task) error {
	res, err := x.tx.ExecContext(ctx,
		`UPDATE tasks SET text=?, status=?, type=?, updated_at=? WHERE id=?`,
		task.Text, task.Status, task.Type, normalizeTime(task.UpdatedAt), task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireAffected(res)
}

func (x *sqliteTx) DeleteTask(ctx context.Context, id int64) error {
	res, err := x.tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireAffected(res)
}

func (x *sqliteTx) InsertHistory(ctx context.Context, entry HistoryEntry) (HistoryEntry, error) {
	entry.CreatedAt = normalizeTime(entry.CreatedAt)
	res, err := x.tx.ExecContext(ctx,
		`INSERT INTO history (task_id, event, status, created_at) VALUES (?, ?, ?, ?)`,
		entry.TaskID, entry.Event, entry.Status, entry.CreatedAt,
	)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("insert history: %w", err)
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return HistoryEntry{}, fmt.Errorf("insert history id: %w", err)
	}
	return entry.Clone(), nil
}

func (x *sqliteTx) CountTasks(ctx context.Context) (int, error) {
	var n int
	if err := x.tx.QueryRowContext(ctx, `SELECT count(*) FROM tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func (x *sqliteTx) InsertIdea(ctx context.Context, idea Idea) (Idea, error) {
	return insertIdeaSQL(ctx, x.tx, idea)
}

func (x *sqliteTx) InsertApproval(ctx context.Context, approval Approval) (Approval, error) {
	return insertApprovalSQL(ctx, x.tx, approval)
}

func (x *sqliteTx) InsertOutput(ctx context.Context, output Output) (Output, error) {
	return insertOutputSQL(ctx, x.tx, output)
}

func (s *SQLiteStore) ListIdeas(ctx context.Context) ([]Idea, error) {
	rows, err := s.db.QueryContext(ctx,
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

func (s *SQLiteStore) CreateIdea(ctx context.Context, idea Idea) (Idea, error) {
	return insertIdeaSQL(ctx, s.db, idea)
}

func insertIdeaSQL(ctx context.Context, e sqlExecer, idea Idea) (Idea, error) {
	idea.CreatedAt = normalizeTime(idea.CreatedAt)
	res, err := e.ExecContext(ctx,
		`INSERT INTO ideas (text, created_at) VALUES (?, ?)`, idea.Text, idea.CreatedAt)
	if err != nil {
		return Idea{}, fmt.Errorf("insert idea: %w", err)
	}
	if idea.ID, err = res.LastInsertId(); err != nil {
		return Idea{}, fmt.Errorf("insert idea id: %w", err)
	}
	return idea, nil
}

func (s *SQLiteStore) DeleteIdea(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ideas WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete idea: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) ListApprovals(ctx context.Context, status string) ([]Approval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+approvalColumns+` FROM approvals
		  WHERE (? = '' OR status = ?)
		  ORDER BY created_at DESC, id DESC`,
		status, status,
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

func (s *SQLiteStore) CreateApproval(ctx context.Context, approval Approval) (Approval, error) {
	return insertApprovalSQL(ctx, s.db, approval)
}

func insertApprovalSQL(ctx context.Context, e sqlExecer, approval Approval) (Approval, error) {
	approval.CreatedAt = normalizeTime(approval.CreatedAt)
	res, err := e.ExecContext(ctx,
		`INSERT INTO approvals (task_id, task_text, what_was_built, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		approval.TaskID, approval.TaskText, approval.WhatWasBuilt, approval.Status, approval.CreatedAt,
	)
	if err != nil {
		return Approval{}, fmt.Errorf("insert approval: %w", err)
	}
	if approval.ID, err = res.LastInsertId(); err != nil {
		return Approval{}, fmt.Errorf("insert approval id: %w", err)
	}
	return approval, nil
}

func (s *SQLiteStore) SetApprovalStatus(ctx context.Context, id int64, status string) (Approval, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE approvals SET status=? WHERE id=?`, status, id)
	if err != nil {
		return Approval{}, fmt.Errorf("update approval: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return Approval{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id=?`, id)
	a, err := scanApproval(row)
	if err != nil {
		return Approval{}, fmt.Errorf("reload approval: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) ListOutputs(ctx context.Context, outputType string) ([]Output, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outputColumns+` FROM outputs
		  WHERE (? = '' OR type = ?)
		  ORDER BY created_at DESC, id DESC`,
		outputType, outputType,
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

func (s *SQLiteStore) CreateOutput(ctx context.Context, output Output) (Output, error) {
	return insertOutputSQL(ctx, s.db, output)
}

func insertOutputSQL(ctx context.Context, e sqlExecer, output Output) (Output, error) {
	output.CreatedAt = normalizeTime(output.CreatedAt)
	res, err := e.ExecContext(ctx,
		`INSERT INTO outputs (type, title, description, task_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		output.Type, output.Title, output.Description, output.TaskID, output.CreatedAt,
	)
	if err != nil {
		return Output{}, fmt.Errorf("insert output: %w", err)
	}
	if output.ID, err = res.LastInsertId(); err != nil {
		return Output{}, fmt.Errorf("insert output id: %w", err)
	}
	return output, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Mode() string { return "sqlite" }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
