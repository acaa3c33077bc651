package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Task model related methods.
	CreateTask(ctx context.Context, create *Task) (*Task, error)
	ListTasks(ctx context.Context, find *FindTask) ([]*Task, error)
	UpdateTask(ctx context.Context, update *UpdateTask) (*Task, error)

	// TaskActivity model related methods.
	CreateTaskActivity(ctx context.Context, create *TaskActivity) (*TaskActivity, error)

	// ConversationSession model related methods.
	CreateConversationSession(ctx context.Context, create *ConversationSession) (*ConversationSession, error)
	GetConversationSession(ctx context.Context, find *FindConversationSession) (*ConversationSession, error)
	TouchConversationSession(ctx context.Context, id int32) error

	// ConversationMessage model related methods.
	CreateConversationMessage(ctx context.Context, create *ConversationMessage) (*ConversationMessage, error)
	ListConversationMessages(ctx context.Context, find *FindConversationMessage) ([]*ConversationMessage, error)

	// DecisionLog model related methods.
	CreateDecisionLog(ctx context.Context, create *DecisionLog) (*DecisionLog, error)

	// Nudge model related methods.
	CreateNudge(ctx context.Context, create *Nudge) (*Nudge, error)
	ListNudges(ctx context.Context, find *FindNudge) ([]*Nudge, error)

	// UserPreferences model related methods.
	UpsertUserPreferences(ctx context.Context, upsert *UpsertUserPreferences) (*UserPreferences, error)
	GetUserPreferences(ctx context.Context, find *FindUserPreferences) (*UserPreferences, error)
}
