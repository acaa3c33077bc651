package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cueapp/cue/plugin/ai"
	"github.com/cueapp/cue/server/service/preference"
	"github.com/cueapp/cue/store"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(mock *mockStore, language *mockLanguage) *Service {
	service := NewService(mock, preference.NewService(mock), language, "UTC")
	service.now = func() time.Time { return testNow }
	return service
}

func int32p(v int32) *int32       { return &v }
func float64p(v float64) *float64 { return &v }

func TestExecuteCreateTask(t *testing.T) {
	ctx := context.Background()

	t.Run("applies defaults and clamps", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		cards := service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:             ai.ActionCreateTask,
			Title:            "  Buy milk  ",
			EstimatedMinutes: int32p(2),
			Urgency:          int32p(9),
		}}, "UTC")

		require.Len(t, cards, 1)
		assert.Equal(t, "task_created", cards[0].Type)

		task := mock.tasks[cards[0].TaskID]
		assert.Equal(t, "Buy milk", task.Title)
		assert.Equal(t, int32(5), task.EstimatedMinutes)
		assert.Equal(t, int32(5), task.Urgency)
		assert.Equal(t, int32(3), task.Importance)
		assert.Equal(t, store.TaskStatusActive, task.Status)

		require.NotNil(t, task.DueTs)
		assert.Equal(t, testNow.Add(48*time.Hour).Unix(), *task.DueTs)

		assert.Contains(t, mock.activityActions(), "task_created_from_llm_agent")
	})

	t.Run("prefers explicit due timestamp", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		cards := service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:     ai.ActionCreateTask,
			Title:    "Dentist",
			DueAtISO: "2026-03-15T09:30:00+01:00",
		}}, "UTC")

		require.Len(t, cards, 1)
		task := mock.tasks[cards[0].TaskID]
		require.NotNil(t, task.DueTs)
		expected, _ := time.Parse(time.RFC3339, "2026-03-15T09:30:00+01:00")
		assert.Equal(t, expected.Unix(), *task.DueTs)
	})

	t.Run("offsetless due timestamp uses caller timezone", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		cards := service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:     ai.ActionCreateTask,
			Title:    "Call landlord",
			DueAtISO: "2026-03-15T09:30:00",
		}}, "America/New_York")

		require.Len(t, cards, 1)
		task := mock.tasks[cards[0].TaskID]
		loc, _ := time.LoadLocation("America/New_York")
		expected := time.Date(2026, 3, 15, 9, 30, 0, 0, loc)
		assert.Equal(t, expected.Unix(), *task.DueTs)
	})

	t.Run("malformed due timestamp falls back to day count", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		cards := service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:      ai.ActionCreateTask,
			Title:     "Taxes",
			DueAtISO:  "next tuesday",
			DueInDays: float64p(3),
		}}, "UTC")

		require.Len(t, cards, 1)
		task := mock.tasks[cards[0].TaskID]
		assert.Equal(t, testNow.Add(72*time.Hour).Unix(), *task.DueTs)
	})

	t.Run("negative day count clamps to today", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		cards := service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:      ai.ActionCreateTask,
			Title:     "Now",
			DueInDays: float64p(-5),
		}}, "UTC")

		require.Len(t, cards, 1)
		assert.Equal(t, testNow.Unix(), *mock.tasks[cards[0].TaskID].DueTs)
	})

	t.Run("blank title is skipped", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		cards := service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:  ai.ActionCreateTask,
			Title: "   ",
		}}, "UTC")

		assert.Empty(t, cards)
		assert.Empty(t, mock.tasks)
	})
}

func TestExecuteActionsDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("caps actions per plan", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		actions := make([]ai.AgentAction, 8)
		for i := range actions {
			actions[i] = ai.AgentAction{Type: ai.ActionCreateTask, Title: "task"}
		}
		cards := service.ExecuteActions(ctx, 1, actions, "UTC")
		assert.Len(t, cards, 5)
		assert.Len(t, mock.tasks, 5)
	})

	t.Run("unknown action type is skipped", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		cards := service.ExecuteActions(ctx, 1, []ai.AgentAction{{Type: "delete_everything"}}, "UTC")
		assert.Empty(t, cards)
	})

	t.Run("complete task", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})
		task, _ := mock.CreateTask(ctx, &store.Task{OwnerID: 1, Title: "Pay rent", Status: store.TaskStatusActive})

		cards := service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:   ai.ActionCompleteTask,
			TaskID: &task.ID,
		}}, "UTC")

		require.Len(t, cards, 1)
		assert.Equal(t, "task_completed", cards[0].Type)
		assert.Equal(t, []string{"undo"}, cards[0].Actions)
		assert.Equal(t, store.TaskStatusDone, mock.tasks[task.ID].Status)
		assert.Contains(t, mock.activityActions(), "task_completed_from_llm_agent")
	})

	t.Run("snooze clamps hours", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})
		task, _ := mock.CreateTask(ctx, &store.Task{OwnerID: 1, Title: "Water plants", Status: store.TaskStatusActive})

		cards := service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:   ai.ActionSnoozeTask,
			TaskID: &task.ID,
			Hours:  float64p(0),
		}}, "UTC")

		require.Len(t, cards, 1)
		stored := mock.tasks[task.ID]
		assert.Equal(t, store.TaskStatusSnoozed, stored.Status)
		require.NotNil(t, stored.SnoozedUntilTs)
		assert.Equal(t, testNow.Add(time.Hour).Unix(), *stored.SnoozedUntilTs)
	})

	t.Run("snooze defaults to a day", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})
		task, _ := mock.CreateTask(ctx, &store.Task{OwnerID: 1, Title: "Water plants", Status: store.TaskStatusActive})

		service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:   ai.ActionSnoozeTask,
			TaskID: &task.ID,
		}}, "UTC")

		assert.Equal(t, testNow.Add(24*time.Hour).Unix(), *mock.tasks[task.ID].SnoozedUntilTs)
	})

	t.Run("update due reactivates task", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})
		task, _ := mock.CreateTask(ctx, &store.Task{OwnerID: 1, Title: "Send invoice", Status: store.TaskStatusSnoozed})

		cards := service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:   ai.ActionUpdateTaskDue,
			TaskID: &task.ID,
		}}, "UTC")

		require.Len(t, cards, 1)
		stored := mock.tasks[task.ID]
		assert.Equal(t, store.TaskStatusActive, stored.Status)
		assert.Equal(t, testNow.Add(24*time.Hour).Unix(), *stored.DueTs)
	})

	t.Run("resolves target by title fragment most recently updated", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})
		older, _ := mock.CreateTask(ctx, &store.Task{OwnerID: 1, Title: "Groceries for week", Status: store.TaskStatusActive})
		newer, _ := mock.CreateTask(ctx, &store.Task{OwnerID: 1, Title: "Groceries for party", Status: store.TaskStatusActive})

		cards := service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:          ai.ActionCompleteTask,
			TitleContains: "GROCERIES",
		}}, "UTC")

		require.Len(t, cards, 1)
		assert.Equal(t, newer.ID, cards[0].TaskID)
		assert.Equal(t, store.TaskStatusActive, mock.tasks[older.ID].Status)
	})

	t.Run("unresolvable target is skipped", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		cards := service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:          ai.ActionCompleteTask,
			TitleContains: "nothing here",
		}}, "UTC")
		assert.Empty(t, cards)
	})
}

func TestExecuteUpdateTaskMetadata(t *testing.T) {
	ctx := context.Background()

	t.Run("merges patch and strips summary keys", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})
		task, _ := mock.CreateTask(ctx, &store.Task{
			OwnerID: 1,
			Title:   "Shopping",
			Status:  store.TaskStatusActive,
			Metadata: map[string]any{
				"kind":          "shopping_list",
				"shopping_list": map[string]any{"items": []any{"milk"}, "store": "corner"},
			},
		})

		cards := service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:   ai.ActionUpdateTaskMetadata,
			TaskID: &task.ID,
			MetadataJSON: map[string]any{
				"shopping_list":      map[string]any{"items": []any{"milk", "eggs"}},
				"render_title":       "Shopping",
				"render_block_count": float64(2),
			},
		}}, "UTC")

		require.Len(t, cards, 1)
		assert.Equal(t, "task_metadata_updated", cards[0].Type)

		metadata := mock.tasks[task.ID].Metadata
		assert.NotContains(t, metadata, "render_title")
		assert.NotContains(t, metadata, "render_block_count")
		inner := metadata["shopping_list"].(map[string]any)
		assert.Equal(t, []any{"milk", "eggs"}, inner["items"])
		assert.Equal(t, "corner", inner["store"])
	})

	t.Run("title in patch renames task and render spec", func(t *testing.T) {
		mock := newMockStore()
		language := &mockLanguage{}
		service := newTestService(mock, language)
		task, _ := mock.CreateTask(ctx, &store.Task{
			OwnerID:  1,
			Title:    "Old title",
			Status:   store.TaskStatusActive,
			Metadata: map[string]any{},
		})

		service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:         ai.ActionUpdateTaskMetadata,
			TaskID:       &task.ID,
			MetadataJSON: map[string]any{"title": "  New title  "},
		}}, "UTC")

		stored := mock.tasks[task.ID]
		assert.Equal(t, "New title", stored.Title)
		spec := stored.Metadata[store.RenderSpecKey].(map[string]any)
		assert.Equal(t, "New title", spec["title"])
	})

	t.Run("embedded render spec skips generation", func(t *testing.T) {
		mock := newMockStore()
		language := &mockLanguage{enabled: true, renderSpec: &ai.RenderSpec{Title: "generated"}}
		service := newTestService(mock, language)
		task, _ := mock.CreateTask(ctx, &store.Task{OwnerID: 1, Title: "Trip", Status: store.TaskStatusActive, Metadata: map[string]any{}})

		service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:   ai.ActionUpdateTaskMetadata,
			TaskID: &task.ID,
			MetadataJSON: map[string]any{
				store.RenderSpecKey: map[string]any{"title": "Trip", "blocks": []any{}},
			},
		}}, "UTC")

		assert.Equal(t, 0, language.renderSpecCalls)
	})

	t.Run("fresh patch triggers generation when enabled", func(t *testing.T) {
		mock := newMockStore()
		language := &mockLanguage{enabled: true, renderSpec: &ai.RenderSpec{Title: "generated", Blocks: []map[string]any{}}}
		service := newTestService(mock, language)
		task, _ := mock.CreateTask(ctx, &store.Task{OwnerID: 1, Title: "Trip", Status: store.TaskStatusActive, Metadata: map[string]any{}})

		service.ExecuteActions(ctx, 1, []ai.AgentAction{{
			Type:         ai.ActionUpdateTaskMetadata,
			TaskID:       &task.ID,
			MetadataJSON: map[string]any{"kind": "travel"},
		}}, "UTC")

		assert.Equal(t, 1, language.renderSpecCalls)
		spec := mock.tasks[task.ID].Metadata[store.RenderSpecKey].(map[string]any)
		assert.Equal(t, "generated", spec["title"])
	})
}
