package store

import "context"

// UserPreferences represents a user's assistant preferences.
type UserPreferences struct {
	UserID      int32
	Preferences string // JSON string
	CreatedTs   int64
	UpdatedTs   int64
}

// FindUserPreferences specifies the conditions for finding user preferences.
type FindUserPreferences struct {
	UserID *int32
}

// UpsertUserPreferences specifies the data for upserting user preferences.
type UpsertUserPreferences struct {
	UserID      int32
	Preferences string // JSON string
}

// UpsertUserPreferences upserts the preferences document for a user.
func (s *Store) UpsertUserPreferences(ctx context.Context, upsert *UpsertUserPreferences) (*UserPreferences, error) {
	return s.driver.UpsertUserPreferences(ctx, upsert)
}

// GetUserPreferences gets the preferences document for a user, or nil when absent.
func (s *Store) GetUserPreferences(ctx context.Context, find *FindUserPreferences) (*UserPreferences, error) {
	return s.driver.GetUserPreferences(ctx, find)
}
