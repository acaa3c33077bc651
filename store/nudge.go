package store

import "context"

// NudgeStatus is the delivery status of a nudge. Lifecycle beyond creation
// (sending, completion) is owned by an external delivery collaborator.
type NudgeStatus string

const (
	NudgeStatusScheduled NudgeStatus = "scheduled"
	NudgeStatusSent      NudgeStatus = "sent"
)

// Nudge is a proactive follow-up record.
type Nudge struct {
	ID          int32
	OwnerID     int32
	TaskID      *int32
	Kind        string
	Channel     string
	Message     string
	ScheduledTs int64
	SentTs      *int64
	Status      NudgeStatus
	CreatedTs   int64
}

// FindNudge is the find condition for nudges.
type FindNudge struct {
	OwnerID *int32
	Status  *NudgeStatus
	Limit   *int
}

// CreateNudge creates a new nudge record.
func (s *Store) CreateNudge(ctx context.Context, create *Nudge) (*Nudge, error) {
	return s.driver.CreateNudge(ctx, create)
}

// ListNudges lists nudges with filter, newest scheduled first.
func (s *Store) ListNudges(ctx context.Context, find *FindNudge) ([]*Nudge, error) {
	return s.driver.ListNudges(ctx, find)
}
