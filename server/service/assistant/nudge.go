package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/cueapp/cue/server/service/preference"
	tasksvc "github.com/cueapp/cue/server/service/task"
	"github.com/cueapp/cue/server/timezone"
	"github.com/cueapp/cue/store"
)

// nudgeScoreThreshold is the minimum priority score a task needs before the
// assistant follows up on it.
const nudgeScoreThreshold = 8

// EvaluateNudges returns the follow-up candidates for a user at the given
// time. Quiet hours suppress everything; otherwise the top active tasks are
// scored and the ones above threshold become candidates, capped by the user's
// daily nudge budget.
func (s *Service) EvaluateNudges(ctx context.Context, userID int32, now time.Time) ([]*NudgeCandidate, error) {
	preferences, err := s.preferences.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load preferences")
	}

	loc, _ := timezone.ParseTimezone(s.timezoneOrDefault(preferences))
	if preference.IsWithinQuietHours(preferences, now.In(loc)) {
		return []*NudgeCandidate{}, nil
	}

	status := store.TaskStatusActive
	active, err := s.store.ListTasks(ctx, &store.FindTask{OwnerID: &userID, Status: &status})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active tasks")
	}

	candidates := []*NudgeCandidate{}
	for _, task := range tasksvc.Prioritize(active, now, 5) {
		if task.SnoozedUntilTs != nil && time.Unix(*task.SnoozedUntilTs, 0).After(now) {
			continue
		}

		score := tasksvc.Score(task, now)
		if score < nudgeScoreThreshold {
			continue
		}

		candidates = append(candidates, &NudgeCandidate{
			Task:          task,
			PriorityScore: score,
			Intent:        "ask_status",
			Message:       fmt.Sprintf("Quick check: were you able to finish '%s'?", task.Title),
			ReasonCodes:   []string{"priority_over_threshold", "assistant_follow_up"},
		})
	}

	if preferences.MaxNudgesPerDay >= 0 && len(candidates) > preferences.MaxNudgesPerDay {
		candidates = candidates[:preferences.MaxNudgesPerDay]
	}
	return candidates, nil
}

func (s *Service) timezoneOrDefault(preferences *preference.Preferences) string {
	if preferences != nil && preferences.Timezone != "" {
		return preferences.Timezone
	}
	return s.defaultTimezone
}
