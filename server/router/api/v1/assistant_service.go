package v1

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cueapp/cue/store"
)

// maxVoiceUploadBytes bounds one audio upload. Matches typical mobile client
// clips of a minute or two.
const maxVoiceUploadBytes = 10 << 20

type postMessageRequest struct {
	Text       string `json:"text"`
	SessionUID string `json:"session_uid"`
	Timezone   string `json:"timezone"`
}

// PostAssistantMessage runs one text turn.
//
// POST /api/v1/assistant/messages
func (s *APIV1Service) PostAssistantMessage(c echo.Context) error {
	request := &postMessageRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	text := strings.TrimSpace(request.Text)
	if text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	response, err := s.Assistant.ProcessMessage(c.Request().Context(), requestUserID(c), text, request.SessionUID, request.Timezone)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process message").SetInternal(err)
	}
	s.Collector.RecordTextTurn()
	return c.JSON(http.StatusOK, response)
}

// PostAssistantVoice runs one voice turn from an uploaded audio clip.
//
// POST /api/v1/assistant/voice (multipart: audio, session_uid, timezone)
func (s *APIV1Service) PostAssistantVoice(c echo.Context) error {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "audio file is required").SetInternal(err)
	}
	if fileHeader.Size > maxVoiceUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "audio file too large")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to open audio file").SetInternal(err)
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read audio file").SetInternal(err)
	}

	turn, err := s.Assistant.ProcessVoiceTurn(c.Request().Context(), requestUserID(c),
		audio, fileHeader.Filename, c.FormValue("session_uid"), c.FormValue("timezone"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process voice turn").SetInternal(err)
	}
	s.Collector.RecordVoiceTurn()
	return c.JSON(http.StatusOK, turn)
}

type refineArtifactRequest struct {
	Instruction string `json:"instruction"`
	Timezone    string `json:"timezone"`
}

type refineArtifactResponse struct {
	Reply string        `json:"reply"`
	Task  *taskResponse `json:"task"`
}

// PostRefineTaskArtifact applies a free-form instruction to one task's
// artifact fields.
//
// POST /api/v1/tasks/:id/refine-artifact
func (s *APIV1Service) PostRefineTaskArtifact(c echo.Context) error {
	taskID, err := pathID(c)
	if err != nil {
		return err
	}
	request := &refineArtifactRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}
	instruction := strings.TrimSpace(request.Instruction)
	if instruction == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "instruction is required")
	}

	reply, task, err := s.Assistant.RefineTaskArtifact(c.Request().Context(), requestUserID(c), taskID, instruction, request.Timezone)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "task not found").SetInternal(err)
	}
	s.Collector.RecordRefinement()
	return c.JSON(http.StatusOK, &refineArtifactResponse{
		Reply: reply,
		Task:  convertTask(task),
	})
}

type sessionMessageResponse struct {
	ID        int32          `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedTs int64          `json:"created_ts"`
}

// ListSessionMessages returns a session's messages oldest-first.
//
// GET /api/v1/assistant/sessions/:uid/messages
func (s *APIV1Service) ListSessionMessages(c echo.Context) error {
	ctx := c.Request().Context()
	uid := c.Param("uid")
	userID := requestUserID(c)

	session, err := s.Store.GetConversationSession(ctx, &store.FindConversationSession{
		UID:     &uid,
		OwnerID: &userID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get session").SetInternal(err)
	}
	if session == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	messages, err := s.Store.ListConversationMessages(ctx, &store.FindConversationMessage{SessionID: &session.ID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages").SetInternal(err)
	}
	list := make([]*sessionMessageResponse, 0, len(messages))
	for _, message := range messages {
		list = append(list, &sessionMessageResponse{
			ID:        message.ID,
			Role:      string(message.Role),
			Content:   message.Content,
			Payload:   message.Payload,
			CreatedTs: message.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, list)
}

type nudgeResponse struct {
	ID          int32  `json:"id"`
	TaskID      *int32 `json:"task_id,omitempty"`
	Kind        string `json:"kind"`
	Channel     string `json:"channel"`
	Message     string `json:"message"`
	ScheduledTs int64  `json:"scheduled_ts"`
	Status      string `json:"status"`
}

// ListNudges returns the caller's nudges, newest scheduled first.
//
// GET /api/v1/nudges?status=scheduled
func (s *APIV1Service) ListNudges(c echo.Context) error {
	userID := requestUserID(c)
	find := &store.FindNudge{OwnerID: &userID}
	if raw := c.QueryParam("status"); raw != "" {
		status := store.NudgeStatus(raw)
		find.Status = &status
	}

	nudges, err := s.Store.ListNudges(c.Request().Context(), find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list nudges").SetInternal(err)
	}
	list := make([]*nudgeResponse, 0, len(nudges))
	for _, nudge := range nudges {
		list = append(list, &nudgeResponse{
			ID:          nudge.ID,
			TaskID:      nudge.TaskID,
			Kind:        nudge.Kind,
			Channel:     nudge.Channel,
			Message:     nudge.Message,
			ScheduledTs: nudge.ScheduledTs,
			Status:      string(nudge.Status),
		})
	}
	return c.JSON(http.StatusOK, list)
}
