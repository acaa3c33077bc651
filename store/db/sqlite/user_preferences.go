package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cueapp/cue/store"
)

func (d *DB) UpsertUserPreferences(ctx context.Context, upsert *store.UpsertUserPreferences) (*store.UserPreferences, error) {
	stmt := `INSERT INTO user_preferences (user_id, preferences)
		VALUES (` + placeholders(2) + `)
		ON CONFLICT (user_id) DO UPDATE SET
			preferences = EXCLUDED.preferences,
			updated_ts = strftime('%s', 'now')
		RETURNING user_id, preferences, created_ts, updated_ts`

	result := &store.UserPreferences{}
	if err := d.db.QueryRowContext(ctx, stmt, upsert.UserID, upsert.Preferences).Scan(
		&result.UserID,
		&result.Preferences,
		&result.CreatedTs,
		&result.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to upsert user_preferences: %w", err)
	}

	return result, nil
}

func (d *DB) GetUserPreferences(ctx context.Context, find *store.FindUserPreferences) (*store.UserPreferences, error) {
	if find.UserID == nil {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `SELECT user_id, preferences, created_ts, updated_ts FROM user_preferences WHERE user_id = ` + placeholder(1)

	result := &store.UserPreferences{}
	if err := d.db.QueryRowContext(ctx, query, *find.UserID).Scan(
		&result.UserID,
		&result.Preferences,
		&result.CreatedTs,
		&result.UpdatedTs,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user_preferences: %w", err)
	}

	return result, nil
}
