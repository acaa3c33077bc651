package assistant

import (
	"context"
	"time"

	"github.com/cueapp/cue/plugin/ai"
	"github.com/cueapp/cue/server/service/preference"
	"github.com/cueapp/cue/store"
)

// Store is the persistence surface the assistant needs. *store.Store
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	CreateTask(ctx context.Context, create *store.Task) (*store.Task, error)
	ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error)
	GetTask(ctx context.Context, find *store.FindTask) (*store.Task, error)
	UpdateTask(ctx context.Context, update *store.UpdateTask) (*store.Task, error)
	CreateTaskActivity(ctx context.Context, create *store.TaskActivity) (*store.TaskActivity, error)

	CreateConversationSession(ctx context.Context, create *store.ConversationSession) (*store.ConversationSession, error)
	GetConversationSession(ctx context.Context, find *store.FindConversationSession) (*store.ConversationSession, error)
	TouchConversationSession(ctx context.Context, id int32) error
	CreateConversationMessage(ctx context.Context, create *store.ConversationMessage) (*store.ConversationMessage, error)
	ListConversationMessages(ctx context.Context, find *store.FindConversationMessage) ([]*store.ConversationMessage, error)

	CreateDecisionLog(ctx context.Context, create *store.DecisionLog) (*store.DecisionLog, error)
	CreateNudge(ctx context.Context, create *store.Nudge) (*store.Nudge, error)
}

// Service orchestrates conversational turns: it routes between the planner
// and the rule path, executes planned actions, and keeps render specs fresh.
type Service struct {
	store       Store
	preferences *preference.Service
	language    ai.LanguageService

	defaultTimezone string

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates the assistant service.
func NewService(store Store, preferences *preference.Service, language ai.LanguageService, defaultTimezone string) *Service {
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	return &Service{
		store:           store,
		preferences:     preferences,
		language:        language,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
	}
}
