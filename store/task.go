package store

import (
	"context"
	"time"
)

// TaskStatus is the lifecycle status of a task. Tasks are never destroyed;
// status transitions model "deletion".
type TaskStatus string

const (
	TaskStatusActive  TaskStatus = "active"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusSnoozed TaskStatus = "snoozed"
	TaskStatusBlocked TaskStatus = "blocked"
)

// FollowUpState tracks where a task sits in the assistant's follow-up loop.
type FollowUpState string

const (
	FollowUpStateCreated       FollowUpState = "created"
	FollowUpStatePlanSuggested FollowUpState = "plan_suggested"
	FollowUpStateCheckedIn     FollowUpState = "checked_in"
	FollowUpStateClosed        FollowUpState = "closed"
)

// RenderSpecKey is the reserved key under task metadata that holds the UI
// render description. It is refreshed synchronously after every core-driven
// mutation.
const RenderSpecKey = "render_spec"

// Task is the object representing a user's to-do item.
type Task struct {
	ID               int32
	OwnerID          int32
	Title            string
	Notes            string
	Metadata         map[string]any
	MetadataHTML     string
	DueTs            *int64
	IsHardDeadline   bool
	EstimatedMinutes int32
	Urgency          int32
	Importance       int32
	Status           TaskStatus
	FollowUpState    FollowUpState
	SnoozedUntilTs   *int64
	LastNudgedTs     *int64
	CreatedTs        int64
	UpdatedTs        int64
}

// DueAt returns the due timestamp as time.Time, or nil when unset.
func (t *Task) DueAt() *time.Time {
	if t.DueTs == nil {
		return nil
	}
	v := time.Unix(*t.DueTs, 0)
	return &v
}

// FindTask is the find condition for tasks.
type FindTask struct {
	ID      *int32
	OwnerID *int32
	Status  *TaskStatus

	// TitleContains filters by case-insensitive title substring.
	TitleContains *string

	// OrderByUpdatedTsDesc orders results by most recently updated first.
	// Default ordering is by due timestamp, then urgency/importance.
	OrderByUpdatedTsDesc bool

	Limit *int
}

// UpdateTask is the update request for a task. Nil fields are left unchanged.
type UpdateTask struct {
	ID             int32
	Title          *string
	Notes          *string
	Metadata       map[string]any
	MetadataHTML   *string
	DueTs          *int64
	Status         *TaskStatus
	FollowUpState  *FollowUpState
	SnoozedUntilTs *int64
	LastNudgedTs   *int64
}

// TaskActivity is an append-only audit trail entry for a task mutation.
type TaskActivity struct {
	ID        int32
	TaskID    int32
	Actor     string
	Action    string
	Metadata  map[string]any
	CreatedTs int64
}

// CreateTask creates a new task.
func (s *Store) CreateTask(ctx context.Context, create *Task) (*Task, error) {
	return s.driver.CreateTask(ctx, create)
}

// ListTasks lists tasks with filter.
func (s *Store) ListTasks(ctx context.Context, find *FindTask) ([]*Task, error) {
	return s.driver.ListTasks(ctx, find)
}

// GetTask gets a single task, or nil when not found.
func (s *Store) GetTask(ctx context.Context, find *FindTask) (*Task, error) {
	list, err := s.driver.ListTasks(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateTask updates a task.
func (s *Store) UpdateTask(ctx context.Context, update *UpdateTask) (*Task, error) {
	return s.driver.UpdateTask(ctx, update)
}

// CreateTaskActivity appends a task activity log entry.
func (s *Store) CreateTaskActivity(ctx context.Context, create *TaskActivity) (*TaskActivity, error) {
	return s.driver.CreateTaskActivity(ctx, create)
}
