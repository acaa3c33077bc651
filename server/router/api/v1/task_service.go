package v1

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cueapp/cue/server/timezone"
	"github.com/cueapp/cue/store"
)

type taskResponse struct {
	ID               int32          `json:"id"`
	Title            string         `json:"title"`
	Notes            string         `json:"notes,omitempty"`
	Metadata         map[string]any `json:"metadata_json"`
	MetadataHTML     string         `json:"metadata_html,omitempty"`
	DueAt            *string        `json:"due_at,omitempty"`
	IsHardDeadline   bool           `json:"is_hard_deadline"`
	EstimatedMinutes int32          `json:"estimated_minutes"`
	Urgency          int32          `json:"urgency"`
	Importance       int32          `json:"importance"`
	Status           string         `json:"status"`
	FollowUpState    string         `json:"follow_up_state"`
	SnoozedUntil     *string        `json:"snoozed_until,omitempty"`
	CreatedTs        int64          `json:"created_ts"`
	UpdatedTs        int64          `json:"updated_ts"`
}

func convertTask(task *store.Task) *taskResponse {
	return &taskResponse{
		ID:               task.ID,
		Title:            task.Title,
		Notes:            task.Notes,
		Metadata:         task.Metadata,
		MetadataHTML:     task.MetadataHTML,
		DueAt:            isoTimestamp(task.DueTs),
		IsHardDeadline:   task.IsHardDeadline,
		EstimatedMinutes: task.EstimatedMinutes,
		Urgency:          task.Urgency,
		Importance:       task.Importance,
		Status:           string(task.Status),
		FollowUpState:    string(task.FollowUpState),
		SnoozedUntil:     isoTimestamp(task.SnoozedUntilTs),
		CreatedTs:        task.CreatedTs,
		UpdatedTs:        task.UpdatedTs,
	}
}

func isoTimestamp(ts *int64) *string {
	if ts == nil {
		return nil
	}
	iso := time.Unix(*ts, 0).UTC().Format(time.RFC3339)
	return &iso
}

func pathID(c echo.Context) (int32, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	return int32(id), nil
}

// ListTasks returns the caller's tasks, optionally filtered by status.
//
// GET /api/v1/tasks?status=active
func (s *APIV1Service) ListTasks(c echo.Context) error {
	userID := requestUserID(c)
	find := &store.FindTask{OwnerID: &userID}
	if raw := c.QueryParam("status"); raw != "" {
		status := store.TaskStatus(raw)
		find.Status = &status
	}

	tasks, err := s.Store.ListTasks(c.Request().Context(), find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list tasks").SetInternal(err)
	}
	list := make([]*taskResponse, 0, len(tasks))
	for _, task := range tasks {
		list = append(list, convertTask(task))
	}
	return c.JSON(http.StatusOK, list)
}

type createTaskRequest struct {
	Title            string         `json:"title"`
	Notes            string         `json:"notes"`
	Metadata         map[string]any `json:"metadata_json"`
	DueAt            string         `json:"due_at"`
	IsHardDeadline   bool           `json:"is_hard_deadline"`
	EstimatedMinutes int32          `json:"estimated_minutes"`
	Urgency          int32          `json:"urgency"`
	Importance       int32          `json:"importance"`
	Timezone         string         `json:"timezone"`
}

// CreateTask creates a task directly, outside a conversational turn.
//
// POST /api/v1/tasks
func (s *APIV1Service) CreateTask(c echo.Context) error {
	ctx := c.Request().Context()
	userID := requestUserID(c)

	request := &createTaskRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	title := strings.TrimSpace(request.Title)
	if title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	if len(title) > 200 {
		title = title[:200]
	}

	create := &store.Task{
		OwnerID:          userID,
		Title:            title,
		Notes:            request.Notes,
		Metadata:         request.Metadata,
		IsHardDeadline:   request.IsHardDeadline,
		EstimatedMinutes: clampEstimatedMinutes(request.EstimatedMinutes),
		Urgency:          clampScale(request.Urgency),
		Importance:       clampScale(request.Importance),
		Status:           store.TaskStatusActive,
		FollowUpState:    store.FollowUpStateCreated,
	}
	if create.Metadata == nil {
		create.Metadata = map[string]any{}
	}
	if request.DueAt != "" {
		loc, _ := timezone.ParseTimezone(request.Timezone)
		parsed, err := timezone.ParseDueAt(request.DueAt, loc)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid due_at").SetInternal(err)
		}
		dueTs := parsed.Unix()
		create.DueTs = &dueTs
	}

	task, err := s.Store.CreateTask(ctx, create)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create task").SetInternal(err)
	}
	s.recordTaskActivity(ctx, task.ID, "task_created")
	task = s.Assistant.RefreshRenderSpec(ctx, task, request.Timezone, true)

	return c.JSON(http.StatusOK, convertTask(task))
}

type updateTaskRequest struct {
	Title    *string `json:"title"`
	Notes    *string `json:"notes"`
	DueAt    *string `json:"due_at"`
	Status   *string `json:"status"`
	Timezone string  `json:"timezone"`
}

// UpdateTask applies a partial update to one task.
//
// PATCH /api/v1/tasks/:id
func (s *APIV1Service) UpdateTask(c echo.Context) error {
	ctx := c.Request().Context()
	userID := requestUserID(c)

	taskID, err := pathID(c)
	if err != nil {
		return err
	}
	request := &updateTaskRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}

	task, err := s.Store.GetTask(ctx, &store.FindTask{ID: &taskID, OwnerID: &userID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get task").SetInternal(err)
	}
	if task == nil {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}

	update := &store.UpdateTask{ID: task.ID}
	if request.Title != nil {
		title := strings.TrimSpace(*request.Title)
		if title == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "title cannot be empty")
		}
		if len(title) > 200 {
			title = title[:200]
		}
		update.Title = &title
	}
	if request.Notes != nil {
		update.Notes = request.Notes
	}
	if request.DueAt != nil {
		loc, _ := timezone.ParseTimezone(request.Timezone)
		parsed, err := timezone.ParseDueAt(*request.DueAt, loc)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid due_at").SetInternal(err)
		}
		dueTs := parsed.Unix()
		update.DueTs = &dueTs
	}
	if request.Status != nil {
		status := store.TaskStatus(*request.Status)
		switch status {
		case store.TaskStatusActive, store.TaskStatusDone, store.TaskStatusSnoozed, store.TaskStatusBlocked:
			update.Status = &status
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
	}

	updated, err := s.Store.UpdateTask(ctx, update)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update task").SetInternal(err)
	}
	s.recordTaskActivity(ctx, updated.ID, "task_updated")
	updated = s.Assistant.RefreshRenderSpec(ctx, updated, request.Timezone, true)

	return c.JSON(http.StatusOK, convertTask(updated))
}

func (s *APIV1Service) recordTaskActivity(ctx context.Context, taskID int32, action string) {
	if _, err := s.Store.CreateTaskActivity(ctx, &store.TaskActivity{
		TaskID:   taskID,
		Actor:    "user",
		Action:   action,
		Metadata: map[string]any{},
	}); err != nil {
		slog.Warn("failed to record task activity", "task_id", taskID, "action", action, "error", err)
	}
}

func clampEstimatedMinutes(v int32) int32 {
	if v == 0 {
		return 30
	}
	if v < 5 {
		return 5
	}
	return v
}

func clampScale(v int32) int32 {
	if v == 0 {
		return 3
	}
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}
