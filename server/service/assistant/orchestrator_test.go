package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cueapp/cue/plugin/ai"
	"github.com/cueapp/cue/server/timezone"
	"github.com/cueapp/cue/store"
)

func TestProcessMessageRulePath(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit phrasing creates a task", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		response, err := service.ProcessMessage(ctx, 1, "remember to call the dentist", "", "")
		require.NoError(t, err)

		require.Len(t, mock.tasks, 1)
		var task *store.Task
		for _, stored := range mock.tasks {
			task = stored
		}
		assert.Equal(t, "call the dentist", task.Title)
		assert.Equal(t, int32(4), task.Urgency)
		assert.Equal(t, int32(4), task.Importance)
		require.NotNil(t, task.DueTs)
		assert.Equal(t, testNow.Add(48*time.Hour).Unix(), *task.DueTs)

		loc := time.UTC
		assert.Contains(t, response.Text, timezone.FormatDueAt(testNow.Add(48*time.Hour), loc))
		require.Len(t, response.Cards, 1)
		assert.Equal(t, "task_created", response.Cards[0].Type)

		assert.Contains(t, mock.activityActions(), "task_created_from_assistant")
		require.Len(t, mock.decisions, 1)
		assert.Equal(t, "create_task", mock.decisions[0].Intent)
	})

	t.Run("todo prefix also matches", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		_, err := service.ProcessMessage(ctx, 1, "todo: water the plants.", "", "")
		require.NoError(t, err)

		require.Len(t, mock.tasks, 1)
		for _, task := range mock.tasks {
			assert.Equal(t, "water the plants", task.Title)
		}
	})

	t.Run("extraction falls back to language service", func(t *testing.T) {
		mock := newMockStore()
		language := &mockLanguage{enabled: true, extractedTitle: "book flights"}
		service := newTestService(mock, language)

		_, err := service.ProcessMessage(ctx, 1, "we should sort out the trip soon", "", "")
		require.NoError(t, err)

		require.Len(t, mock.tasks, 1)
		for _, task := range mock.tasks {
			assert.Equal(t, "book flights", task.Title)
		}
	})

	t.Run("no intent and no urgent tasks yields static reply", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		response, err := service.ProcessMessage(ctx, 1, "are you ok", "", "")
		require.NoError(t, err)

		assert.Equal(t, "You are in good shape. No urgent nudges right now.", response.Text)
		assert.Empty(t, response.Cards)
		assert.Empty(t, mock.tasks)
		assert.Empty(t, mock.nudges)
		require.Len(t, mock.decisions, 1)
		assert.Equal(t, "no_action", mock.decisions[0].Intent)
	})

	t.Run("high priority task produces follow up nudge", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})
		task, _ := mock.CreateTask(ctx, &store.Task{
			OwnerID:    1,
			Title:      "File taxes",
			Status:     store.TaskStatusActive,
			Urgency:    5,
			Importance: 5,
			DueTs:      int64p(testNow.Add(-time.Hour).Unix()),
		})

		response, err := service.ProcessMessage(ctx, 1, "hello", "", "")
		require.NoError(t, err)

		assert.Equal(t, "Quick check: were you able to finish 'File taxes'?", response.Text)
		require.Len(t, response.Cards, 1)
		assert.Equal(t, "task_follow_up", response.Cards[0].Type)

		require.Len(t, mock.nudges, 1)
		nudge := mock.nudges[0]
		require.NotNil(t, nudge.TaskID)
		assert.Equal(t, task.ID, *nudge.TaskID)
		assert.Equal(t, "ask_status", nudge.Kind)
		assert.Equal(t, store.NudgeStatusScheduled, nudge.Status)

		require.Len(t, mock.decisions, 1)
		assert.Equal(t, "task_follow_up", mock.decisions[0].Intent)
	})

	t.Run("rewrite applies only to non-create replies", func(t *testing.T) {
		mock := newMockStore()
		language := &mockLanguage{enabled: true, rewritePrefix: "rewritten: "}
		service := newTestService(mock, language)

		response, err := service.ProcessMessage(ctx, 1, "how is my day", "", "")
		require.NoError(t, err)
		assert.Equal(t, "rewritten: You are in good shape. No urgent nudges right now.", response.Text)

		mock = newMockStore()
		language = &mockLanguage{rewritePrefix: "rewritten: "}
		service = newTestService(mock, language)
		response, err = service.ProcessMessage(ctx, 1, "remember to stretch", "", "")
		require.NoError(t, err)
		assert.NotContains(t, response.Text, "rewritten:")
	})

	t.Run("records both sides of the conversation", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		response, err := service.ProcessMessage(ctx, 1, "hello there", "", "")
		require.NoError(t, err)

		require.Len(t, mock.messages, 2)
		assert.Equal(t, store.MessageRoleUser, mock.messages[0].Role)
		assert.Equal(t, "hello there", mock.messages[0].Content)
		assert.Equal(t, store.MessageRoleAssistant, mock.messages[1].Role)
		assert.Equal(t, response.Text, mock.messages[1].Content)
		assert.Contains(t, mock.messages[1].Payload, "action_cards")
	})
}

func TestProcessMessageAgentPath(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted plan executes actions", func(t *testing.T) {
		mock := newMockStore()
		task, _ := mock.CreateTask(ctx, &store.Task{OwnerID: 1, Title: "Ship release", Status: store.TaskStatusActive})
		language := &mockLanguage{
			enabled: true,
			plan: &ai.TurnPlan{
				Reply:   "Done",
				Actions: []ai.AgentAction{{Type: ai.ActionCompleteTask, TaskID: &task.ID}},
			},
		}
		service := newTestService(mock, language)

		response, err := service.ProcessMessage(ctx, 1, "I shipped it", "", "")
		require.NoError(t, err)

		assert.Equal(t, "Done", response.Text)
		require.Len(t, response.Cards, 1)
		assert.Equal(t, "task_completed", response.Cards[0].Type)
		assert.Equal(t, store.TaskStatusDone, mock.tasks[task.ID].Status)

		require.Len(t, mock.decisions, 1)
		assert.Equal(t, "llm_agent_turn", mock.decisions[0].Intent)
		assert.Equal(t, int32(5), mock.decisions[0].PriorityScore)
	})

	t.Run("empty reply gets default text", func(t *testing.T) {
		mock := newMockStore()
		language := &mockLanguage{
			enabled: true,
			plan:    &ai.TurnPlan{Reply: "", Actions: []ai.AgentAction{}},
		}
		service := newTestService(mock, language)

		response, err := service.ProcessMessage(ctx, 1, "tidy things up", "", "")
		require.NoError(t, err)
		assert.Equal(t, "I updated your plan.", response.Text)
	})

	t.Run("nil plan falls back to rules", func(t *testing.T) {
		mock := newMockStore()
		language := &mockLanguage{enabled: true, plan: nil}
		service := newTestService(mock, language)

		response, err := service.ProcessMessage(ctx, 1, "remember to stretch", "", "")
		require.NoError(t, err)

		assert.Equal(t, 1, language.planCalls)
		require.Len(t, mock.tasks, 1)
		require.Len(t, response.Cards, 1)
		assert.Equal(t, "task_created", response.Cards[0].Type)
	})

	t.Run("plan context carries compacted task metadata", func(t *testing.T) {
		mock := newMockStore()
		mock.CreateTask(ctx, &store.Task{
			OwnerID: 1,
			Title:   "Groceries",
			Status:  store.TaskStatusActive,
			Urgency: 4, Importance: 4,
			Metadata: map[string]any{
				"kind":          "shopping_list",
				"shopping_list": map[string]any{"items": []any{"milk", "eggs"}},
				store.RenderSpecKey: map[string]any{
					"title":  "Groceries",
					"blocks": []any{map[string]any{"type": "checklist"}},
				},
				"internal_notes": "should not leak",
			},
		})
		language := &mockLanguage{enabled: true, plan: &ai.TurnPlan{Reply: "ok", Actions: []ai.AgentAction{}}}
		service := newTestService(mock, language)

		_, err := service.ProcessMessage(ctx, 1, "what's on my plate", "", "")
		require.NoError(t, err)

		require.NotNil(t, language.lastPlanInput)
		require.Len(t, language.lastPlanInput.Tasks, 1)
		metadata := language.lastPlanInput.Tasks[0]["metadata_json"].(map[string]any)
		assert.Equal(t, "shopping_list", metadata["kind"])
		assert.Equal(t, 2, metadata["shopping_list_item_count"])
		assert.Equal(t, "Groceries", metadata["render_title"])
		assert.Equal(t, 1, metadata["render_block_count"])
		assert.NotContains(t, metadata, "internal_notes")
	})

	t.Run("session is reused by uid", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		first, err := service.ProcessMessage(ctx, 1, "hello", "", "")
		require.NoError(t, err)
		second, err := service.ProcessMessage(ctx, 1, "hello again", first.SessionUID, "")
		require.NoError(t, err)

		assert.Equal(t, first.SessionID, second.SessionID)
		assert.Len(t, mock.sessions, 1)
	})

	t.Run("foreign session uid creates a fresh session", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		response, err := service.ProcessMessage(ctx, 1, "hello", "someone-elses-uid", "")
		require.NoError(t, err)
		assert.NotEmpty(t, response.SessionUID)
		assert.NotEqual(t, "someone-elses-uid", response.SessionUID)
	})

	t.Run("valid request timezone is persisted", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		_, err := service.ProcessMessage(ctx, 1, "hello", "", "Europe/Berlin")
		require.NoError(t, err)

		preferences, err := service.preferences.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Europe/Berlin", preferences.Timezone)
	})

	t.Run("invalid request timezone is ignored", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{})

		_, err := service.ProcessMessage(ctx, 1, "hello", "", "Mars/Olympus")
		require.NoError(t, err)

		preferences, err := service.preferences.Get(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, preferences.Timezone)
	})
}

func TestProcessVoiceTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("empty transcript short circuits", func(t *testing.T) {
		mock := newMockStore()
		language := &mockLanguage{enabled: true, transcript: ""}
		service := newTestService(mock, language)

		turn, err := service.ProcessVoiceTurn(ctx, 1, []byte("audio"), "voice.m4a", "", "")
		require.NoError(t, err)

		assert.Empty(t, turn.Transcript)
		assert.Equal(t, "I could not hear that clearly. Please try again.", turn.Response.Text)
		assert.Empty(t, turn.Response.Cards)
		assert.Nil(t, turn.Speech)
		assert.Empty(t, mock.messages)
	})

	t.Run("transcript runs a full turn with speech", func(t *testing.T) {
		mock := newMockStore()
		language := &mockLanguage{
			enabled:    true,
			transcript: "remember to stretch",
			speech:     &ai.Speech{AudioBase64: "QUJD", MimeType: "audio/mpeg", Format: "mp3"},
		}
		service := newTestService(mock, language)

		turn, err := service.ProcessVoiceTurn(ctx, 1, []byte("audio"), "voice.m4a", "", "")
		require.NoError(t, err)

		assert.Equal(t, "remember to stretch", turn.Transcript)
		require.NotNil(t, turn.Speech)
		assert.Equal(t, "mp3", turn.Speech.Format)
		require.Len(t, mock.tasks, 1)
	})
}

func TestRefineTaskArtifact(t *testing.T) {
	ctx := context.Background()

	t.Run("failed refinement leaves task untouched", func(t *testing.T) {
		mock := newMockStore()
		language := &mockLanguage{enabled: true, refinement: nil}
		service := newTestService(mock, language)
		task, _ := mock.CreateTask(ctx, &store.Task{OwnerID: 1, Title: "Essay", Notes: "draft", Status: store.TaskStatusActive})

		reply, updated, err := service.RefineTaskArtifact(ctx, 1, task.ID, "make it shorter", "")
		require.NoError(t, err)

		assert.Equal(t, "I could not update that task artifact right now.", reply)
		assert.Equal(t, "draft", updated.Notes)
		assert.Empty(t, mock.activities)
	})

	t.Run("patch fields are applied", func(t *testing.T) {
		mock := newMockStore()
		notes := "tightened draft"
		due := "2026-03-20T10:00:00Z"
		language := &mockLanguage{
			enabled: true,
			refinement: &ai.ArtifactRefinement{
				Reply: "Tightened it up.",
				Patch: ai.TaskPatch{
					Notes:        &notes,
					MetadataJSON: map[string]any{"revision": float64(2)},
					DueAtISO:     &due,
				},
			},
		}
		service := newTestService(mock, language)
		task, _ := mock.CreateTask(ctx, &store.Task{
			OwnerID:  1,
			Title:    "Essay",
			Notes:    "draft",
			Status:   store.TaskStatusActive,
			Metadata: map[string]any{"kind": "writing"},
		})

		reply, updated, err := service.RefineTaskArtifact(ctx, 1, task.ID, "tighten the draft", "")
		require.NoError(t, err)

		assert.Equal(t, "Tightened it up.", reply)
		assert.Equal(t, "tightened draft", updated.Notes)
		assert.Equal(t, "writing", updated.Metadata["kind"])
		assert.Equal(t, float64(2), updated.Metadata["revision"])

		expected, _ := time.Parse(time.RFC3339, due)
		require.NotNil(t, updated.DueTs)
		assert.Equal(t, expected.Unix(), *updated.DueTs)

		assert.Contains(t, mock.activityActions(), "task_artifact_refined_from_llm_agent")
		assert.Contains(t, updated.Metadata, store.RenderSpecKey)
	})

	t.Run("empty reply defaults", func(t *testing.T) {
		mock := newMockStore()
		language := &mockLanguage{
			enabled:    true,
			refinement: &ai.ArtifactRefinement{Reply: "", Patch: ai.TaskPatch{}},
		}
		service := newTestService(mock, language)
		task, _ := mock.CreateTask(ctx, &store.Task{OwnerID: 1, Title: "Essay", Status: store.TaskStatusActive})

		reply, _, err := service.RefineTaskArtifact(ctx, 1, task.ID, "anything", "")
		require.NoError(t, err)
		assert.Equal(t, "Task updated.", reply)
	})

	t.Run("unknown task errors", func(t *testing.T) {
		mock := newMockStore()
		service := newTestService(mock, &mockLanguage{enabled: true})

		_, _, err := service.RefineTaskArtifact(ctx, 1, 99, "anything", "")
		assert.Error(t, err)
	})
}
