package assistant

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cueapp/cue/plugin/ai"
	tasksvc "github.com/cueapp/cue/server/service/task"
	"github.com/cueapp/cue/server/timezone"
	"github.com/cueapp/cue/store"
)

const (
	// maxActionsPerPlan caps how many planned actions one turn may apply.
	maxActionsPerPlan = 5

	maxTitleLen = 200
	maxNotesLen = 1000
	maxHTMLLen  = 20000
)

// ExecuteActions applies planned actions and returns the resulting cards.
// At most maxActionsPerPlan actions are applied. Each action is independent:
// a failing or unresolvable action is logged and skipped, the rest still run.
func (s *Service) ExecuteActions(ctx context.Context, userID int32, actions []ai.AgentAction, timezoneName string) []*Card {
	loc, _ := timezone.ParseTimezone(timezoneName)
	cards := []*Card{}

	if len(actions) > maxActionsPerPlan {
		slog.Info("plan exceeds action cap, truncating",
			"user_id", userID,
			"planned", len(actions))
		actions = actions[:maxActionsPerPlan]
	}

	for _, action := range actions {
		if action.Type == ai.ActionCreateTask {
			if card := s.executeCreateTask(ctx, userID, action, timezoneName, loc); card != nil {
				cards = append(cards, card)
			}
			continue
		}
		if !ai.KnownActionTypes[action.Type] {
			slog.Warn("unknown action type, skipping", "type", string(action.Type))
			continue
		}

		task := s.resolveTask(ctx, userID, action)
		if task == nil {
			slog.Info("action target not resolved, skipping",
				"type", string(action.Type),
				"title_contains", action.TitleContains)
			continue
		}

		var card *Card
		switch action.Type {
		case ai.ActionCompleteTask:
			card = s.executeCompleteTask(ctx, task, timezoneName)
		case ai.ActionSnoozeTask:
			card = s.executeSnoozeTask(ctx, task, action, timezoneName)
		case ai.ActionUpdateTaskDue:
			card = s.executeUpdateTaskDue(ctx, task, action, timezoneName, loc)
		case ai.ActionUpdateTaskMetadata:
			card = s.executeUpdateTaskMetadata(ctx, task, action, timezoneName)
		}
		if card != nil {
			cards = append(cards, card)
		}
	}

	return cards
}

func (s *Service) executeCreateTask(ctx context.Context, userID int32, action ai.AgentAction, timezoneName string, loc *time.Location) *Card {
	title := strings.TrimSpace(action.Title)
	if title == "" {
		return nil
	}
	title = truncate(title, maxTitleLen)

	metadata := action.MetadataJSON
	if metadata == nil {
		metadata = map[string]any{}
	}

	dueTs := s.resolveDueTs(action, 2, loc)
	task, err := s.store.CreateTask(ctx, &store.Task{
		OwnerID:          userID,
		Title:            title,
		Notes:            truncate(action.Notes, maxNotesLen),
		Metadata:         metadata,
		MetadataHTML:     truncate(action.MetadataHTML, maxHTMLLen),
		DueTs:            &dueTs,
		EstimatedMinutes: clampMin(safeInt32(action.EstimatedMinutes, 30), 5),
		Urgency:          clampRange(safeInt32(action.Urgency, 3), 1, 5),
		Importance:       clampRange(safeInt32(action.Importance, 3), 1, 5),
		Status:           store.TaskStatusActive,
		FollowUpState:    store.FollowUpStateCreated,
	})
	if err != nil {
		slog.Error("failed to create task from plan", "error", err)
		return nil
	}

	s.logTaskActivity(ctx, task.ID, "task_created_from_llm_agent", nil)
	task = s.RefreshRenderSpec(ctx, task, timezoneName, true)

	slog.Info("action applied",
		"type", "create_task",
		"task_id", task.ID,
		"title", task.Title)
	return &Card{
		Type:    "task_created",
		TaskID:  task.ID,
		Title:   task.Title,
		DueAt:   taskDueISO(task),
		Actions: []string{"mark_done", "snooze", "change_due_date", "break_into_steps"},
	}
}

func (s *Service) executeCompleteTask(ctx context.Context, task *store.Task, timezoneName string) *Card {
	status := store.TaskStatusDone
	updated, err := s.store.UpdateTask(ctx, &store.UpdateTask{ID: task.ID, Status: &status})
	if err != nil {
		slog.Error("failed to complete task", "task_id", task.ID, "error", err)
		return nil
	}

	s.logTaskActivity(ctx, updated.ID, "task_completed_from_llm_agent", nil)
	updated = s.RefreshRenderSpec(ctx, updated, timezoneName, false)

	slog.Info("action applied", "type", "complete_task", "task_id", updated.ID)
	return &Card{
		Type:    "task_completed",
		TaskID:  updated.ID,
		Title:   updated.Title,
		Actions: []string{"undo"},
	}
}

func (s *Service) executeSnoozeTask(ctx context.Context, task *store.Task, action ai.AgentAction, timezoneName string) *Card {
	hours := safeInt64(action.Hours, 24)
	if hours < 1 {
		hours = 1
	}

	status := store.TaskStatusSnoozed
	snoozedUntil := s.now().Add(time.Duration(hours) * time.Hour).Unix()
	updated, err := s.store.UpdateTask(ctx, &store.UpdateTask{
		ID:             task.ID,
		Status:         &status,
		SnoozedUntilTs: &snoozedUntil,
	})
	if err != nil {
		slog.Error("failed to snooze task", "task_id", task.ID, "error", err)
		return nil
	}

	s.logTaskActivity(ctx, updated.ID, "task_snoozed_from_llm_agent", map[string]any{"hours": hours})
	updated = s.RefreshRenderSpec(ctx, updated, timezoneName, false)

	slog.Info("action applied", "type", "snooze_task", "task_id", updated.ID, "hours", hours)
	return &Card{
		Type:    "task_snoozed",
		TaskID:  updated.ID,
		Title:   updated.Title,
		Actions: []string{"mark_done", "change_due_date"},
	}
}

func (s *Service) executeUpdateTaskDue(ctx context.Context, task *store.Task, action ai.AgentAction, timezoneName string, loc *time.Location) *Card {
	dueTs := s.resolveDueTs(action, 1, loc)
	status := store.TaskStatusActive
	updated, err := s.store.UpdateTask(ctx, &store.UpdateTask{
		ID:     task.ID,
		DueTs:  &dueTs,
		Status: &status,
	})
	if err != nil {
		slog.Error("failed to update task due", "task_id", task.ID, "error", err)
		return nil
	}

	s.logTaskActivity(ctx, updated.ID, "task_due_updated_from_llm_agent", map[string]any{"due_at": taskDueISO(updated)})
	updated = s.RefreshRenderSpec(ctx, updated, timezoneName, false)

	slog.Info("action applied", "type", "update_task_due", "task_id", updated.ID)
	return &Card{
		Type:    "task_due_updated",
		TaskID:  updated.ID,
		Title:   updated.Title,
		DueAt:   taskDueISO(updated),
		Actions: []string{"mark_done", "snooze"},
	}
}

func (s *Service) executeUpdateTaskMetadata(ctx context.Context, task *store.Task, action ai.AgentAction, timezoneName string) *Card {
	update := &store.UpdateTask{ID: task.ID}

	var incomingTitle string
	patchHasRenderSpec := false
	if action.MetadataJSON != nil {
		if _, ok := action.MetadataJSON[store.RenderSpecKey].(map[string]any); ok {
			patchHasRenderSpec = true
		}
		if raw, ok := action.MetadataJSON["title"].(string); ok {
			incomingTitle = strings.TrimSpace(raw)
		} else if raw, ok := action.MetadataJSON["render_title"].(string); ok {
			incomingTitle = strings.TrimSpace(raw)
		}

		merged := tasksvc.MergeMetadata(task.Metadata, action.MetadataJSON)
		// Compact summary keys leak back from planner output; keep metadata clean.
		delete(merged, "render_title")
		delete(merged, "render_block_count")

		if incomingTitle != "" {
			incomingTitle = truncate(incomingTitle, maxTitleLen)
			update.Title = &incomingTitle
			if spec, ok := merged[store.RenderSpecKey].(map[string]any); ok {
				spec["title"] = incomingTitle
			}
		}
		update.Metadata = merged
	}
	if action.MetadataHTML != "" {
		html := truncate(action.MetadataHTML, maxHTMLLen)
		update.MetadataHTML = &html
	}

	updated, err := s.store.UpdateTask(ctx, update)
	if err != nil {
		slog.Error("failed to update task metadata", "task_id", task.ID, "error", err)
		return nil
	}

	keys := []string{}
	for key := range action.MetadataJSON {
		keys = append(keys, key)
	}
	s.logTaskActivity(ctx, updated.ID, "task_metadata_updated_from_llm_agent", map[string]any{"keys": keys})

	// A render spec embedded in the patch is already complete; skip the
	// second model call and just normalize the stored copy.
	updated = s.RefreshRenderSpec(ctx, updated, timezoneName, !patchHasRenderSpec)

	slog.Info("action applied", "type", "update_task_metadata", "task_id", updated.ID)
	return &Card{
		Type:    "task_metadata_updated",
		TaskID:  updated.ID,
		Title:   updated.Title,
		Actions: []string{"open_details"},
	}
}

// resolveTask finds the target task of an action: explicit id first, then
// the most recently updated task whose title contains the given fragment.
func (s *Service) resolveTask(ctx context.Context, userID int32, action ai.AgentAction) *store.Task {
	if action.TaskID != nil && *action.TaskID > 0 {
		task, err := s.store.GetTask(ctx, &store.FindTask{ID: action.TaskID, OwnerID: &userID})
		if err != nil {
			slog.Error("failed to get task by id", "task_id", *action.TaskID, "error", err)
			return nil
		}
		return task
	}

	titleContains := strings.TrimSpace(action.TitleContains)
	if titleContains == "" {
		return nil
	}

	limit := 1
	list, err := s.store.ListTasks(ctx, &store.FindTask{
		OwnerID:              &userID,
		TitleContains:        &titleContains,
		OrderByUpdatedTsDesc: true,
		Limit:                &limit,
	})
	if err != nil {
		slog.Error("failed to find task by title", "title_contains", titleContains, "error", err)
		return nil
	}
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

// resolveDueTs resolves an action's due timestamp. An explicit ISO value
// wins; a malformed one is logged and falls through to the day-count path.
func (s *Service) resolveDueTs(action ai.AgentAction, defaultDays int, loc *time.Location) int64 {
	if action.DueAtISO != "" {
		parsed, err := timezone.ParseDueAt(action.DueAtISO, loc)
		if err == nil {
			return parsed.Unix()
		}
		slog.Warn("invalid due_at_iso from planner", "value", action.DueAtISO)
	}

	days := defaultDays
	if action.DueInDays != nil {
		days = int(*action.DueInDays)
	}
	if days < 0 {
		days = 0
	}
	return s.now().Add(time.Duration(days) * 24 * time.Hour).Unix()
}

func (s *Service) logTaskActivity(ctx context.Context, taskID int32, action string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	if _, err := s.store.CreateTaskActivity(ctx, &store.TaskActivity{
		TaskID:   taskID,
		Actor:    "assistant",
		Action:   action,
		Metadata: metadata,
	}); err != nil {
		slog.Error("failed to log task activity", "task_id", taskID, "action", action, "error", err)
	}
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}

func safeInt32(value *int32, fallback int32) int32 {
	if value == nil {
		return fallback
	}
	return *value
}

func safeInt64(value *float64, fallback int64) int64 {
	if value == nil {
		return fallback
	}
	return int64(*value)
}

func clampMin(value, min int32) int32 {
	if value < min {
		return min
	}
	return value
}

func clampRange(value, min, max int32) int32 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
