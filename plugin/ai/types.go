package ai

// ActionType enumerates the backend operations the planner may request.
type ActionType string

const (
	ActionCreateTask         ActionType = "create_task"
	ActionCompleteTask       ActionType = "complete_task"
	ActionSnoozeTask         ActionType = "snooze_task"
	ActionUpdateTaskDue      ActionType = "update_task_due"
	ActionUpdateTaskMetadata ActionType = "update_task_metadata"
)

// KnownActionTypes is the closed set of action types the executor dispatches.
var KnownActionTypes = map[ActionType]bool{
	ActionCreateTask:         true,
	ActionCompleteTask:       true,
	ActionSnoozeTask:         true,
	ActionUpdateTaskDue:      true,
	ActionUpdateTaskMetadata: true,
}

// AgentAction is one planned backend operation. Optional numeric fields are
// pointers so the executor can tell "absent" from zero.
type AgentAction struct {
	Type ActionType `json:"type"`

	// Task targeting. TaskID wins over TitleContains when both are set.
	TaskID        *int32 `json:"task_id,omitempty"`
	TitleContains string `json:"title_contains,omitempty"`

	Title        string         `json:"title,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	MetadataJSON map[string]any `json:"metadata_json,omitempty"`
	MetadataHTML string         `json:"metadata_html,omitempty"`

	DueAtISO  string   `json:"due_at_iso,omitempty"`
	DueInDays *float64 `json:"due_in_days,omitempty"`
	Hours     *float64 `json:"hours,omitempty"`

	EstimatedMinutes *int32 `json:"estimated_minutes,omitempty"`
	Urgency          *int32 `json:"urgency,omitempty"`
	Importance       *int32 `json:"importance,omitempty"`
}

// TurnPlan is the planner output for one conversational turn.
type TurnPlan struct {
	Reply   string        `json:"reply"`
	Actions []AgentAction `json:"actions"`
}

// ChatMessage is one prior message given to the planner as context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PlanInput carries everything the planner needs for one turn.
type PlanInput struct {
	UserText       string
	RecentMessages []ChatMessage
	Tasks          []map[string]any
	Timezone       string
}

// RenderSpec describes how a task detail page should be rendered.
type RenderSpec struct {
	Title  string           `json:"title"`
	Blocks []map[string]any `json:"blocks"`
}

// Speech is a synthesized audio payload.
type Speech struct {
	AudioBase64 string `json:"audio_base64"`
	MimeType    string `json:"mime_type"`
	Format      string `json:"format"`
}

// TaskPatch is the field-level patch returned by artifact refinement.
type TaskPatch struct {
	Notes        *string        `json:"notes,omitempty"`
	MetadataJSON map[string]any `json:"metadata_json,omitempty"`
	MetadataHTML *string        `json:"metadata_html,omitempty"`
	DueAtISO     *string        `json:"due_at_iso,omitempty"`
}

// ArtifactRefinement is the refinement output for one task.
type ArtifactRefinement struct {
	Reply string    `json:"reply"`
	Patch TaskPatch `json:"task_patch"`
}
