package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("record not found in store")

// Store persists tasks, history and the collaborator entities. List methods
// return newest-created first.
type Store interface {
	ListTasks(ctx context.Context) ([]Task, error)
	GetTask(ctx context.Context, id int64) (Task, error)
	ListHistory(ctx context.Context) ([]HistoryEntry, error)

	// WithTx runs fn atomically. When fn returns an error none of its writes
	// remain visible.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	ListIdeas(ctx context.Context) ([]Idea, error)
	CreateIdea(ctx context.Context, idea Idea) (Idea, error)
	DeleteIdea(ctx context.Context, id int64) error

	ListApprovals(ctx context.Context, status string) ([]Approval, error)
	CreateApproval(ctx context.Context, approval Approval) (Approval, error)
	SetApprovalStatus(ctx context.Context, id int64, status string) (Approval, error)

	ListOutputs(ctx context.Context, outputType string) ([]Output, error)
	CreateOutput(ctx context.Context, output Output) (Output, error)

	// Ping reports whether the backend can serve requests.
	Ping(ctx context.Context) error
	Mode() string
	Close() error
}

// Tx is the write surface available inside WithTx.
type Tx interface {
	GetTask(ctx context.Context, id int64) (Task, error)
	InsertTask(ctx context.Context, task Task) (Task, error)
	UpdateTask(ctx context.Context, task Task) error
	DeleteTask(ctx context.Context, id int64) error
	InsertHistory(ctx context.Context, entry HistoryEntry) (HistoryEntry, error)
	CountTasks(ctx context.Context) (int, error)

	InsertIdea(ctx context.Context, idea Idea) (Idea, error)
	InsertApproval(ctx context.Context, approval Approval) (Approval, error)
	InsertOutput(ctx context.Context, output Output) (Output, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	if err := row.Scan(&t.ID, &t.Text, &t.Status, &t.Type, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Task{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func scanHistory(row rowScanner) (HistoryEntry, error) {
	var h HistoryEntry
	if err := row.Scan(&h.ID, &h.TaskID, &h.Event, &h.Status, &h.CreatedAt); err != nil {
		return HistoryEntry{}, err
	}
	h.CreatedAt = h.CreatedAt.UTC()
	return h, nil
}

func scanIdea(row rowScanner) (Idea, error) {
	var i Idea
	if err := row.Scan(&i.ID, &i.Text, &i.CreatedAt); err != nil {
		return Idea{}, err
	}
	i.CreatedAt = i.CreatedAt.UTC()
	return i, nil
}

func scanApproval(row rowScanner) (Approval, error) {
	var a Approval
	if err := row.Scan(&a.ID, &a.TaskID, &a.TaskText, &a.WhatWasBuilt, &a.Status, &a.CreatedAt); err != nil {
		return Approval{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func scanOutput(row rowScanner) (Output, error) {
	var o Output
	if err := row.Scan(&o.ID, &o.Type, &o.Title, &o.Description, &o.TaskID, &o.CreatedAt); err != nil {
		return Output{}, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}
