package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/cueapp/cue/plugin/ai"
	"github.com/cueapp/cue/server/internal/observability"
	tasksvc "github.com/cueapp/cue/server/service/task"
	"github.com/cueapp/cue/server/timezone"
	"github.com/cueapp/cue/store"
)

const (
	defaultSessionTitle = "Cue Assistant"

	recentMessageWindow = 10
	planTaskContext     = 10

	maxRefineNotesLen = 3000
)

// taskIntentPattern catches explicit to-do phrasing on the rule path.
var taskIntentPattern = regexp.MustCompile(`(?i)(don't forget to|remember to|need to|todo:?)\s+(.+)`)

// ProcessMessage runs one text turn. The planner path is tried first when a
// language backend is available; any planner failure falls back to the rule
// path, so a turn always produces a reply.
func (s *Service) ProcessMessage(ctx context.Context, userID int32, text string, sessionUID string, userTimezone string) (*Response, error) {
	rc := observability.NewRequestContext(slog.Default(), userID)

	session, err := s.resolveSession(ctx, userID, sessionUID)
	if err != nil {
		return nil, err
	}
	timezoneName := s.resolveUserTimezone(ctx, userID, userTimezone)

	rc.Info("assistant turn start",
		slog.Int64(observability.LogFieldSessionID, int64(session.ID)),
		slog.String("timezone", timezoneName),
		slog.String("text", truncate(text, 500)))

	if _, err := s.store.CreateConversationMessage(ctx, &store.ConversationMessage{
		SessionID: session.ID,
		Role:      store.MessageRoleUser,
		Content:   text,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to record user message")
	}

	if s.language.Enabled() {
		response, err := s.processWithAgent(ctx, rc, userID, text, session, timezoneName)
		if err != nil {
			return nil, err
		}
		if response != nil {
			rc.Info("assistant turn end",
				slog.String(observability.LogFieldTurnPath, "llm"),
				slog.Int64(observability.LogFieldSessionID, int64(session.ID)),
				slog.Int64(observability.LogFieldDuration, rc.DurationMs()),
				slog.String("reply", truncate(response.Text, 500)))
			return response, nil
		}
	}

	response, err := s.processWithRules(ctx, rc, userID, text, session, timezoneName)
	if err != nil {
		return nil, err
	}
	rc.Info("assistant turn end",
		slog.String(observability.LogFieldTurnPath, "rules"),
		slog.Int64(observability.LogFieldSessionID, int64(session.ID)),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()),
		slog.String("reply", truncate(response.Text, 500)))
	return response, nil
}

// ProcessVoiceTurn transcribes audio, runs the turn, and synthesizes the
// reply. Speech synthesis is best effort; a failed transcription short
// circuits into an apologetic reply without consuming the turn.
func (s *Service) ProcessVoiceTurn(ctx context.Context, userID int32, audio []byte, filename string, sessionUID string, userTimezone string) (*VoiceTurn, error) {
	timezoneName := s.resolveUserTimezone(ctx, userID, userTimezone)

	started := time.Now()
	transcript, err := s.language.TranscribeAudio(ctx, audio, filename)
	transcribeMs := time.Since(started).Milliseconds()
	if err != nil {
		slog.Warn("voice transcription failed", "user_id", userID, "error", err)
	}

	if transcript == "" {
		session, err := s.resolveSession(ctx, userID, sessionUID)
		if err != nil {
			return nil, err
		}
		slog.Warn("voice turn without usable transcript",
			"user_id", userID,
			"session_id", session.ID)
		return &VoiceTurn{
			Transcript: "",
			Response: &Response{
				SessionID:  session.ID,
				SessionUID: session.UID,
				Text:       "I could not hear that clearly. Please try again.",
				Cards:      []*Card{},
			},
		}, nil
	}

	orchestrateStarted := time.Now()
	response, err := s.ProcessMessage(ctx, userID, transcript, sessionUID, timezoneName)
	if err != nil {
		return nil, err
	}
	orchestrateMs := time.Since(orchestrateStarted).Milliseconds()

	ttsStarted := time.Now()
	speech, err := s.language.SynthesizeSpeech(ctx, response.Text)
	if err != nil {
		slog.Warn("speech synthesis failed", "user_id", userID, "error", err)
	}
	ttsMs := time.Since(ttsStarted).Milliseconds()

	slog.Info("voice turn timing",
		"user_id", userID,
		"session_id", response.SessionID,
		"transcribe_ms", transcribeMs,
		"orchestrate_ms", orchestrateMs,
		"tts_ms", ttsMs,
		"total_ms", time.Since(started).Milliseconds())

	return &VoiceTurn{
		Transcript: transcript,
		Response:   response,
		Speech:     speech,
	}, nil
}

// RefineTaskArtifact applies a free-form instruction to one task's artifact
// fields and refreshes its render spec. Returns the reply text and the
// updated task.
func (s *Service) RefineTaskArtifact(ctx context.Context, userID int32, taskID int32, instruction string, userTimezone string) (string, *store.Task, error) {
	timezoneName := s.resolveUserTimezone(ctx, userID, userTimezone)
	loc, _ := timezone.ParseTimezone(timezoneName)

	task, err := s.store.GetTask(ctx, &store.FindTask{ID: &taskID, OwnerID: &userID})
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to get task")
	}
	if task == nil {
		return "", nil, errors.Errorf("task %d not found", taskID)
	}

	payload := map[string]any{
		"id":            task.ID,
		"title":         task.Title,
		"notes":         task.Notes,
		"status":        string(task.Status),
		"due_at":        taskDueISO(task),
		"metadata_json": task.Metadata,
		"metadata_html": task.MetadataHTML,
	}

	refinement, err := s.language.RefineArtifact(ctx, payload, instruction, timezoneName)
	if err != nil {
		slog.Warn("artifact refinement failed", "task_id", task.ID, "error", err)
	}
	if refinement == nil {
		return "I could not update that task artifact right now.", task, nil
	}

	update := &store.UpdateTask{ID: task.ID}
	if refinement.Patch.Notes != nil {
		notes := truncate(*refinement.Patch.Notes, maxRefineNotesLen)
		update.Notes = &notes
	}
	if refinement.Patch.MetadataJSON != nil {
		update.Metadata = tasksvc.MergeMetadata(task.Metadata, refinement.Patch.MetadataJSON)
	}
	if refinement.Patch.MetadataHTML != nil {
		html := truncate(*refinement.Patch.MetadataHTML, maxHTMLLen)
		update.MetadataHTML = &html
	}
	if refinement.Patch.DueAtISO != nil {
		if parsed, err := timezone.ParseDueAt(*refinement.Patch.DueAtISO, loc); err == nil {
			dueTs := parsed.Unix()
			update.DueTs = &dueTs
		} else {
			slog.Warn("invalid due_at_iso from refinement", "value", *refinement.Patch.DueAtISO)
		}
	}

	updated, err := s.store.UpdateTask(ctx, update)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to apply artifact patch")
	}

	s.logTaskActivity(ctx, updated.ID, "task_artifact_refined_from_llm_agent", map[string]any{"instruction": instruction})
	updated = s.RefreshRenderSpec(ctx, updated, timezoneName, true)

	reply := refinement.Reply
	if reply == "" {
		reply = "Task updated."
	}
	return reply, updated, nil
}

func (s *Service) processWithAgent(ctx context.Context, rc *observability.RequestContext, userID int32, text string, session *store.ConversationSession, timezoneName string) (*Response, error) {
	limit := recentMessageWindow
	history, err := s.store.ListConversationMessages(ctx, &store.FindConversationMessage{
		SessionID: &session.ID,
		Limit:     &limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load recent messages")
	}
	recentMessages := make([]ai.ChatMessage, 0, len(history))
	for _, message := range history {
		recentMessages = append(recentMessages, ai.ChatMessage{
			Role:    string(message.Role),
			Content: message.Content,
		})
	}

	now := s.now()
	status := store.TaskStatusActive
	active, err := s.store.ListTasks(ctx, &store.FindTask{OwnerID: &userID, Status: &status})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active tasks")
	}
	taskContext := make([]map[string]any, 0, planTaskContext)
	for _, task := range tasksvc.Prioritize(active, now, planTaskContext) {
		taskContext = append(taskContext, map[string]any{
			"id":             task.ID,
			"title":          task.Title,
			"status":         string(task.Status),
			"due_at":         taskDueISO(task),
			"priority_score": tasksvc.Score(task, now),
			"metadata_json":  compactMetadata(task.Metadata),
		})
	}

	plan, err := s.language.PlanTurn(ctx, &ai.PlanInput{
		UserText:       text,
		RecentMessages: recentMessages,
		Tasks:          taskContext,
		Timezone:       timezoneName,
	})
	if err != nil {
		rc.Warn("planner failed, falling back to rules", slog.String("error", err.Error()))
		return nil, nil
	}
	if plan == nil {
		rc.Info("planner returned no plan",
			slog.Int64(observability.LogFieldSessionID, int64(session.ID)))
		return nil, nil
	}

	rc.Info("plan received",
		slog.Int64(observability.LogFieldSessionID, int64(session.ID)),
		slog.Int("action_count", len(plan.Actions)),
		slog.String("reply", truncate(plan.Reply, 500)))

	cards := s.ExecuteActions(ctx, userID, plan.Actions, timezoneName)
	message := plan.Reply
	if message == "" {
		message = "I updated your plan."
	}

	if err := s.recordAssistantMessage(ctx, session, message, cards); err != nil {
		return nil, err
	}
	s.logDecision(ctx, userID, "llm_agent_turn", int32(len(cards)*5),
		[]string{"openai_planner", fmt.Sprintf("actions:%d", len(cards))})

	return &Response{
		SessionID:  session.ID,
		SessionUID: session.UID,
		Text:       message,
		Cards:      cards,
	}, nil
}

func (s *Service) processWithRules(ctx context.Context, rc *observability.RequestContext, userID int32, text string, session *store.ConversationSession, timezoneName string) (*Response, error) {
	loc, _ := timezone.ParseTimezone(timezoneName)
	now := s.now()

	extracted := ruleExtractTitle(text)
	if extracted == "" && s.language.Enabled() {
		llmTitle, err := s.language.ExtractTaskTitle(ctx, text)
		if err != nil {
			rc.Warn("title extraction failed", slog.String("error", err.Error()))
		}
		extracted = llmTitle
	}

	var message string
	cards := []*Card{}

	if extracted != "" {
		dueTs := now.Add(48 * time.Hour).Unix()
		task, err := s.store.CreateTask(ctx, &store.Task{
			OwnerID:       userID,
			Title:         truncate(extracted, maxTitleLen),
			Metadata:      map[string]any{},
			DueTs:         &dueTs,
			Urgency:       4,
			Importance:    4,
			Status:        store.TaskStatusActive,
			FollowUpState: store.FollowUpStateCreated,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create task")
		}
		s.logTaskActivity(ctx, task.ID, "task_created_from_assistant", nil)

		message = fmt.Sprintf("I added '%s' with a suggested due date of %s. Want me to nudge you today?",
			task.Title, timezone.FormatDueAt(time.Unix(dueTs, 0), loc))
		cards = append(cards, &Card{
			Type:    "task_created",
			TaskID:  task.ID,
			Title:   task.Title,
			DueAt:   taskDueISO(task),
			Actions: []string{"mark_done", "snooze", "change_due_date", "break_into_steps"},
		})
		s.logDecision(ctx, userID, "create_task", tasksvc.Score(task, now), []string{"intent_detected"})
	} else {
		candidates, err := s.EvaluateNudges(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			top := candidates[0]
			scheduledTs := now.Unix()
			if _, err := s.store.CreateNudge(ctx, &store.Nudge{
				OwnerID:     userID,
				TaskID:      &top.Task.ID,
				Kind:        top.Intent,
				Channel:     "app",
				Message:     top.Message,
				ScheduledTs: scheduledTs,
				Status:      store.NudgeStatusScheduled,
			}); err != nil {
				return nil, errors.Wrap(err, "failed to record nudge")
			}
			message = top.Message
			cards = append(cards, &Card{
				Type:    "task_follow_up",
				TaskID:  top.Task.ID,
				Title:   top.Task.Title,
				Actions: []string{"mark_done", "snooze", "set_blocked"},
			})
			s.logDecision(ctx, userID, "task_follow_up", top.PriorityScore, top.ReasonCodes)
		} else {
			message = "You are in good shape. No urgent nudges right now."
			s.logDecision(ctx, userID, "no_action", 0, []string{"no_high_priority_tasks"})
		}
		message = s.language.RewriteReply(ctx, message, text)
	}

	if err := s.recordAssistantMessage(ctx, session, message, cards); err != nil {
		return nil, err
	}

	return &Response{
		SessionID:  session.ID,
		SessionUID: session.UID,
		Text:       message,
		Cards:      cards,
	}, nil
}

// resolveSession loads the session by UID or creates a fresh one.
func (s *Service) resolveSession(ctx context.Context, userID int32, sessionUID string) (*store.ConversationSession, error) {
	if sessionUID != "" {
		session, err := s.store.GetConversationSession(ctx, &store.FindConversationSession{
			UID:     &sessionUID,
			OwnerID: &userID,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get conversation session")
		}
		if session != nil {
			return session, nil
		}
	}

	session, err := s.store.CreateConversationSession(ctx, &store.ConversationSession{
		UID:     shortuuid.New(),
		OwnerID: userID,
		Title:   defaultSessionTitle,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create conversation session")
	}
	return session, nil
}

// resolveUserTimezone returns the timezone to use for this turn and persists
// a changed, valid caller-supplied timezone back to preferences.
func (s *Service) resolveUserTimezone(ctx context.Context, userID int32, userTimezone string) string {
	preferences, err := s.preferences.Get(ctx, userID)
	if err != nil {
		slog.Warn("failed to load preferences, using default timezone", "user_id", userID, "error", err)
		return s.defaultTimezone
	}

	if userTimezone != "" && timezone.IsValidTimezone(userTimezone) {
		if preferences.Timezone != userTimezone {
			if err := s.preferences.UpdateTimezone(ctx, userID, userTimezone); err != nil {
				slog.Warn("failed to persist timezone", "user_id", userID, "error", err)
			}
		}
		return userTimezone
	}

	return s.timezoneOrDefault(preferences)
}

func (s *Service) recordAssistantMessage(ctx context.Context, session *store.ConversationSession, message string, cards []*Card) error {
	if _, err := s.store.CreateConversationMessage(ctx, &store.ConversationMessage{
		SessionID: session.ID,
		Role:      store.MessageRoleAssistant,
		Content:   message,
		Payload:   map[string]any{"action_cards": cards},
	}); err != nil {
		return errors.Wrap(err, "failed to record assistant message")
	}
	if err := s.store.TouchConversationSession(ctx, session.ID); err != nil {
		slog.Warn("failed to touch session", "session_id", session.ID, "error", err)
	}
	return nil
}

func (s *Service) logDecision(ctx context.Context, userID int32, intent string, score int32, reasons []string) {
	if _, err := s.store.CreateDecisionLog(ctx, &store.DecisionLog{
		OwnerID:       userID,
		Intent:        intent,
		PriorityScore: score,
		ReasonCodes:   reasons,
		Context:       map[string]any{},
	}); err != nil {
		slog.Error("failed to write decision log",
			"user_id", userID,
			observability.LogFieldIntent, intent,
			"error", err)
	}
}

// ruleExtractTitle matches explicit to-do phrasing and returns the trailing
// clause as a task title.
func ruleExtractTitle(text string) string {
	match := taskIntentPattern.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return ""
	}
	return strings.Trim(match[2], " .")
}

// compactMetadata reduces task metadata to the summary keys the planner
// needs, keeping prompt size bounded for metadata-heavy tasks.
func compactMetadata(metadata map[string]any) map[string]any {
	compact := map[string]any{}
	if metadata == nil {
		return compact
	}

	if kind, ok := metadata["kind"].(string); ok {
		compact["kind"] = kind
	}
	if shoppingList, ok := metadata["shopping_list"].(map[string]any); ok {
		if items, ok := shoppingList["items"].([]any); ok {
			compact["shopping_list_item_count"] = len(items)
		}
	}
	if spec, ok := metadata[store.RenderSpecKey].(map[string]any); ok {
		if title, ok := spec["title"].(string); ok {
			compact["render_title"] = truncate(title, 120)
		}
		if blocks, ok := spec["blocks"].([]any); ok {
			compact["render_block_count"] = len(blocks)
		}
	}
	return compact
}
