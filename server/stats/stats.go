// Package stats keeps lightweight local usage statistics for a single
// deployment. In-memory counters plus periodic store-derived totals; no
// external monitoring stack.
package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cueapp/cue/store"
)

const collectInterval = time.Hour

// Snapshot is one point-in-time view of usage.
type Snapshot struct {
	TextTurns           int64     `json:"text_turns"`
	VoiceTurns          int64     `json:"voice_turns"`
	ArtifactRefinements int64     `json:"artifact_refinements"`
	LastTurnTime        time.Time `json:"last_turn_time"`

	TotalTasks        int64 `json:"total_tasks"`
	ActiveTasks       int64 `json:"active_tasks"`
	TasksDoneLastWeek int64 `json:"tasks_done_last_week"`
	ScheduledNudges   int64 `json:"scheduled_nudges"`

	LastUpdated time.Time `json:"last_updated"`
}

// Store is the read surface the collector needs.
type Store interface {
	ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error)
	ListNudges(ctx context.Context, find *store.FindNudge) ([]*store.Nudge, error)
}

// Collector accumulates turn counters and refreshes store-derived totals on
// an hourly tick.
type Collector struct {
	store Store

	mu       sync.Mutex
	snapshot Snapshot
}

func NewCollector(store Store) *Collector {
	return &Collector{store: store}
}

// Start collects once, then refreshes periodically until the context is
// cancelled.
func (c *Collector) Start(ctx context.Context) {
	c.Collect(ctx)

	go func() {
		ticker := time.NewTicker(collectInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Collect(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RecordTextTurn counts one completed text turn.
func (c *Collector) RecordTextTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.TextTurns++
	c.snapshot.LastTurnTime = time.Now()
}

// RecordVoiceTurn counts one completed voice turn.
func (c *Collector) RecordVoiceTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.VoiceTurns++
	c.snapshot.LastTurnTime = time.Now()
}

// RecordRefinement counts one artifact refinement.
func (c *Collector) RecordRefinement() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.ArtifactRefinements++
}

// Snapshot returns a copy of the current statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Collect refreshes the store-derived totals.
func (c *Collector) Collect(ctx context.Context) {
	now := time.Now()
	weekAgo := now.AddDate(0, 0, -7).Unix()

	tasks, err := c.store.ListTasks(ctx, &store.FindTask{})
	if err != nil {
		slog.Warn("stats collection failed to list tasks", "error", err)
		return
	}
	var total, active, doneLastWeek int64
	for _, task := range tasks {
		total++
		switch task.Status {
		case store.TaskStatusActive:
			active++
		case store.TaskStatusDone:
			if task.UpdatedTs >= weekAgo {
				doneLastWeek++
			}
		}
	}

	var scheduledNudges int64
	scheduled := store.NudgeStatusScheduled
	nudges, err := c.store.ListNudges(ctx, &store.FindNudge{Status: &scheduled})
	if err != nil {
		slog.Warn("stats collection failed to list nudges", "error", err)
	} else {
		scheduledNudges = int64(len(nudges))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.TotalTasks = total
	c.snapshot.ActiveTasks = active
	c.snapshot.TasksDoneLastWeek = doneLastWeek
	c.snapshot.ScheduledNudges = scheduledNudges
	c.snapshot.LastUpdated = now
}
