package store

import "context"

// MessageRole is the speaking side of a conversation message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ConversationSession identifies one ongoing dialogue.
type ConversationSession struct {
	ID        int32
	UID       string
	OwnerID   int32
	Title     string
	CreatedTs int64
	UpdatedTs int64
}

// FindConversationSession is the find condition for sessions.
type FindConversationSession struct {
	ID      *int32
	UID     *string
	OwnerID *int32
}

// ConversationMessage is one turn-side utterance. Immutable once created,
// append-only, ordered by creation time.
type ConversationMessage struct {
	ID        int32
	SessionID int32
	Role      MessageRole
	Content   string
	// Payload holds action-card summaries for assistant messages.
	Payload   map[string]any
	CreatedTs int64
}

// FindConversationMessage is the find condition for messages.
type FindConversationMessage struct {
	SessionID *int32

	// Limit caps the result to the most recent N messages. Results are
	// always returned oldest-first.
	Limit *int
}

// CreateConversationSession creates a new session.
func (s *Store) CreateConversationSession(ctx context.Context, create *ConversationSession) (*ConversationSession, error) {
	return s.driver.CreateConversationSession(ctx, create)
}

// GetConversationSession gets a session, or nil when not found.
func (s *Store) GetConversationSession(ctx context.Context, find *FindConversationSession) (*ConversationSession, error) {
	return s.driver.GetConversationSession(ctx, find)
}

// TouchConversationSession refreshes a session's updated timestamp.
func (s *Store) TouchConversationSession(ctx context.Context, id int32) error {
	return s.driver.TouchConversationSession(ctx, id)
}

// CreateConversationMessage appends a message to a session.
func (s *Store) CreateConversationMessage(ctx context.Context, create *ConversationMessage) (*ConversationMessage, error) {
	return s.driver.CreateConversationMessage(ctx, create)
}

// ListConversationMessages lists messages oldest-first.
func (s *Store) ListConversationMessages(ctx context.Context, find *FindConversationMessage) ([]*ConversationMessage, error) {
	return s.driver.ListConversationMessages(ctx, find)
}
