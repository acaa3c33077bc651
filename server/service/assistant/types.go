package assistant

import (
	"github.com/cueapp/cue/plugin/ai"
	"github.com/cueapp/cue/store"
)

// Card is a structured action card attached to an assistant reply. Actions
// lists the follow-up operations a client may offer for the card.
type Card struct {
	Type    string   `json:"type"`
	TaskID  int32    `json:"task_id"`
	Title   string   `json:"title"`
	DueAt   *string  `json:"due_at,omitempty"`
	Actions []string `json:"actions"`
}

// Response is the outcome of one conversational turn.
type Response struct {
	SessionID  int32   `json:"session_id"`
	SessionUID string  `json:"session_uid"`
	Text       string  `json:"text"`
	Cards      []*Card `json:"action_cards"`
}

// VoiceTurn is the outcome of one voice turn. Speech is nil when synthesis
// is unavailable.
type VoiceTurn struct {
	Transcript string     `json:"transcript"`
	Response   *Response  `json:"response"`
	Speech     *ai.Speech `json:"speech,omitempty"`
}

// NudgeCandidate is one task the nudge engine proposes following up on.
type NudgeCandidate struct {
	Task          *store.Task
	PriorityScore int32
	Intent        string
	Message       string
	ReasonCodes   []string
}
