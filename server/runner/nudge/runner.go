package nudge

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/cueapp/cue/server/service/assistant"
	"github.com/cueapp/cue/store"
)

// nudgeBackoff suppresses re-scheduling a nudge for a task that was nudged
// recently, matching the scorer's backoff window.
const nudgeBackoff = 2 * time.Hour

// Store is the persistence surface the runner needs.
type Store interface {
	ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error)
	UpdateTask(ctx context.Context, update *store.UpdateTask) (*store.Task, error)
	CreateNudge(ctx context.Context, create *store.Nudge) (*store.Nudge, error)
}

// Evaluator proposes follow-up candidates for one user.
type Evaluator interface {
	EvaluateNudges(ctx context.Context, userID int32, now time.Time) ([]*assistant.NudgeCandidate, error)
}

// Runner periodically evaluates every user's tasks and records scheduled
// nudges. Delivery is owned by an external collaborator; this runner only
// writes the rows.
type Runner struct {
	store     Store
	evaluator Evaluator
	interval  time.Duration

	now func() time.Time
}

func NewRunner(store Store, evaluator Evaluator) *Runner {
	return &Runner{
		store:     store,
		evaluator: evaluator,
		interval:  15 * time.Minute,
		now:       time.Now,
	}
}

// Run starts the background loop. Evaluates once on startup, then on every
// tick until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.evaluateAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evaluateAll(ctx)
		case <-ctx.Done():
			slog.Info("nudge runner stopped")
			return
		}
	}
}

// RunOnce evaluates all users once (for manual trigger).
func (r *Runner) RunOnce(ctx context.Context) {
	r.evaluateAll(ctx)
}

func (r *Runner) evaluateAll(ctx context.Context) {
	now := r.now()

	status := store.TaskStatusActive
	active, err := r.store.ListTasks(ctx, &store.FindTask{Status: &status})
	if err != nil {
		slog.Error("failed to list active tasks for nudge evaluation", "error", err)
		return
	}

	seen := map[int32]bool{}
	owners := []int32{}
	for _, task := range active {
		if !seen[task.OwnerID] {
			seen[task.OwnerID] = true
			owners = append(owners, task.OwnerID)
		}
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })

	scheduled := 0
	for _, ownerID := range owners {
		candidates, err := r.evaluator.EvaluateNudges(ctx, ownerID, now)
		if err != nil {
			slog.Error("nudge evaluation failed", "user_id", ownerID, "error", err)
			continue
		}
		for _, candidate := range candidates {
			if candidate.Task.LastNudgedTs != nil &&
				now.Sub(time.Unix(*candidate.Task.LastNudgedTs, 0)) < nudgeBackoff {
				continue
			}

			if _, err := r.store.CreateNudge(ctx, &store.Nudge{
				OwnerID:     ownerID,
				TaskID:      &candidate.Task.ID,
				Kind:        candidate.Intent,
				Channel:     "app",
				Message:     candidate.Message,
				ScheduledTs: now.Unix(),
				Status:      store.NudgeStatusScheduled,
			}); err != nil {
				slog.Error("failed to schedule nudge", "task_id", candidate.Task.ID, "error", err)
				continue
			}

			nudgedTs := now.Unix()
			if _, err := r.store.UpdateTask(ctx, &store.UpdateTask{
				ID:           candidate.Task.ID,
				LastNudgedTs: &nudgedTs,
			}); err != nil {
				slog.Warn("failed to mark task as nudged", "task_id", candidate.Task.ID, "error", err)
			}
			scheduled++
		}
	}

	if scheduled > 0 {
		slog.Info("nudges scheduled", "count", scheduled, "users", len(owners))
	}
}
