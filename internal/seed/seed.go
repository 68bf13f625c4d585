// Package seed loads the demo board used for local development.
package seed

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/antoniostano/missioncontrol/internal/store"
)

// at returns today's date daysAgo days back at hour:minute UTC.
func at(now time.Time, daysAgo, hour, minute int) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	return day.AddDate(0, 0, -daysAgo)
}

// Demo inserts the sample board in one transaction when the store holds no
// tasks. It writes directly to the store and reports whether anything was
// inserted.
func Demo(ctx context.Context, st store.Store, now time.Time) (bool, error) {
	seeded := false
	err := st.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.CountTasks(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if err := insertBoard(ctx, tx, now); err != nil {
			return err
		}
		seeded = true
		return nil
	})
	if err != nil || !seeded {
		return false, err
	}

	log.Printf("seed: demo board loaded into %s store", st.Mode())
	return true, nil
}

func insertBoard(ctx context.Context, tx store.Tx, now time.Time) error {
	var builtID int64
	demoTasks := []struct {
		text, status          string
		daysAgo, hour, minute int
	}{
		{"Make it so that I can access the content ideas from the content coach. so i can ask questions and content coach can go through all my saved ideas", "Backlog", 2, 11, 5},
		{"have voice transcription in the brain dump so i can hit a button and start talking into my microphone", "New", 2, 10, 24},
		{"Add a tab to 'History' that lets me see all of my content ideas from 'compose ideas'", "Built", 2, 10, 23},
		{"I want to be able to see the make me a banger history", "Backlog", 2, 9, 38},
	}
	for _, d := range demoTasks {
		ts := at(now, d.daysAgo, d.hour, d.minute)
		task, err := tx.InsertTask(ctx, store.Task{Text: d.text, Status: d.status, Type: "Feature", CreatedAt: ts, UpdatedAt: ts})
		if err != nil {
			return fmt.Errorf("seed task: %w", err)
		}
		if d.status == "Built" {
			builtID = task.ID
		}
	}

	demoHistory := []struct {
		linked                bool
		event, status         string
		daysAgo, hour, minute int
	}{
		{true, "History tab with compose ideas", "Built", 2, 10, 43},
		{true, "Voice transcription button", "Built", 2, 9, 15},
		{false, "Shopify market research report", "Generated", 3, 16, 30},
		{false, "Dark mode toggle for settings", "Built", 3, 14, 0},
		{false, "Instagram caption pack", "Generated", 4, 11, 0},
	}
	for _, h := range demoHistory {
		entry := store.HistoryEntry{Event: h.event, Status: h.status, CreatedAt: at(now, h.daysAgo, h.hour, h.minute)}
		if h.linked {
			id := builtID
			entry.TaskID = &id
		}
		if _, err := tx.InsertHistory(ctx, entry); err != nil {
			return fmt.Errorf("seed history: %w", err)
		}
	}

	ideas := []store.Idea{
		{Text: "Build a tool that converts my voice notes into structured blog posts automatically", CreatedAt: at(now, 3, 9, 12)},
		{Text: "Research the top 10 Shopify apps for creators and summarize what's missing in the market", CreatedAt: at(now, 4, 15, 45)},
		{Text: "Create a landing page for my beat selling business with a dark theme and fire aesthetic", CreatedAt: at(now, 5, 11, 0)},
	}
	for _, idea := range ideas {
		if _, err := tx.InsertIdea(ctx, idea); err != nil {
			return fmt.Errorf("seed idea: %w", err)
		}
	}

	approvals := []store.Approval{
		{
			TaskText:     "Add a voice transcription button to the brain dump screen",
			WhatWasBuilt: "Added a microphone button to the top-right of the Brain Dump screen. Clicking it starts recording. Speech is transcribed using the Web Speech API and inserted into the text field automatically. Works on Chrome and Safari.",
			CreatedAt:    at(now, 2, 10, 43),
		},
		{
			TaskText:     "Create a history tab showing all my past content ideas",
			WhatWasBuilt: "Created a new History tab in the main navigation. It pulls all previously saved ideas from local storage and displays them in a searchable, scrollable list sorted by date.",
			CreatedAt:    at(now, 2, 9, 15),
		},
	}
	for _, a := range approvals {
		id := builtID
		a.TaskID = &id
		a.Status = store.ApprovalPending
		if _, err := tx.InsertApproval(ctx, a); err != nil {
			return fmt.Errorf("seed approval: %w", err)
		}
	}

	outputs := []store.Output{
		{Type: "Code", Title: "History Tab Component", Description: "React component for browsing saved content ideas", CreatedAt: at(now, 2, 10, 43)},
		{Type: "Research", Title: "Top Shopify Apps for Creators: Market Gap", Description: "10 apps analyzed, 3 market gaps identified", CreatedAt: at(now, 3, 16, 0)},
		{Type: "Content", Title: "Instagram Caption Pack: 7 posts", Description: "Captions for beat drop, studio session, collab announcement", CreatedAt: at(now, 4, 12, 0)},
		{Type: "Code", Title: "Voice Transcription Feature", Description: "Microphone button + Web Speech API integration", CreatedAt: at(now, 5, 14, 0)},
		{Type: "Docs", Title: "Business Plan: Beat Selling Platform", Description: "Market analysis, revenue model, go-to-market strategy", CreatedAt: at(now, 6, 10, 0)},
		{Type: "Content", Title: "Brand Copy: Landing Page", Description: "Hero headline, subheadline, CTA, and about section", CreatedAt: at(now, 7, 9, 0)},
	}
	for _, o := range outputs {
		if _, err := tx.InsertOutput(ctx, o); err != nil {
			return fmt.Errorf("seed output: %w", err)
		}
	}
	return nil
}
