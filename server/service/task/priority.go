package task

import (
	"sort"
	"time"

	"github.com/cueapp/cue/store"
)

const (
	overdueBoost   = 12
	dueSoonBoost   = 8
	dueThisWeek    = 4
	recentNudgeCut = 4
)

// Score computes the priority score for a task at the given time.
// Importance weighs heavier than urgency, due-date proximity adds a boost,
// and a nudge within the last two hours backs the task off so the assistant
// does not hammer the same item. Never negative.
func Score(t *store.Task, now time.Time) int32 {
	score := t.Importance*3 + t.Urgency*2

	if t.DueTs != nil {
		due := time.Unix(*t.DueTs, 0)
		switch {
		case due.Before(now):
			score += overdueBoost
		case !due.After(now.Add(24 * time.Hour)):
			score += dueSoonBoost
		case !due.After(now.Add(72 * time.Hour)):
			score += dueThisWeek
		}
	}

	if t.LastNudgedTs != nil {
		nudged := time.Unix(*t.LastNudgedTs, 0)
		if !nudged.Before(now.Add(-2 * time.Hour)) {
			score -= recentNudgeCut
		}
	}

	if score < 0 {
		score = 0
	}
	return score
}

// Prioritize ranks tasks by descending score and returns at most limit of
// them. The sort is stable so equally scored tasks keep their input order.
func Prioritize(tasks []*store.Task, now time.Time, limit int) []*store.Task {
	ranked := make([]*store.Task, len(tasks))
	copy(ranked, tasks)

	sort.SliceStable(ranked, func(i, j int) bool {
		return Score(ranked[i], now) > Score(ranked[j], now)
	})

	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
