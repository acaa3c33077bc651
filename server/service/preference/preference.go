package preference

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/sjson"

	"github.com/cueapp/cue/store"
)

// Preferences is the per-user preference document. Stored as one JSON blob so
// new keys can ship without a migration.
type Preferences struct {
	Timezone        string `json:"timezone"`
	QuietHoursStart string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   string `json:"quiet_hours_end,omitempty"`
	MaxNudgesPerDay int    `json:"max_nudges_per_day"`
	AssistantStyle  string `json:"assistant_style"`
	BriefingHour    int    `json:"briefing_hour"`
}

// Default returns the preference document for a user who never changed
// anything.
func Default() *Preferences {
	return &Preferences{
		MaxNudgesPerDay: 4,
		AssistantStyle:  "proactive",
		BriefingHour:    8,
	}
}

// Store is the persistence surface the preference service needs.
type Store interface {
	GetUserPreferences(ctx context.Context, find *store.FindUserPreferences) (*store.UserPreferences, error)
	UpsertUserPreferences(ctx context.Context, upsert *store.UpsertUserPreferences) (*store.UserPreferences, error)
}

// Service manages user preference documents.
type Service struct {
	store Store
}

// NewService creates a preference service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns the user's preferences, creating the default document on first
// access. Unknown keys in the stored document are ignored, missing keys keep
// their defaults.
func (s *Service) Get(ctx context.Context, userID int32) (*Preferences, error) {
	row, err := s.store.GetUserPreferences(ctx, &store.FindUserPreferences{UserID: &userID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user preferences")
	}

	if row == nil {
		preferences := Default()
		if _, err := s.upsert(ctx, userID, preferences); err != nil {
			return nil, err
		}
		return preferences, nil
	}

	preferences := Default()
	if err := json.Unmarshal([]byte(row.Preferences), preferences); err != nil {
		return nil, errors.Wrap(err, "failed to parse preference document")
	}
	return preferences, nil
}

// UpdateTimezone sets only the timezone key of the stored document, leaving
// every other key untouched.
func (s *Service) UpdateTimezone(ctx context.Context, userID int32, timezoneName string) error {
	row, err := s.store.GetUserPreferences(ctx, &store.FindUserPreferences{UserID: &userID})
	if err != nil {
		return errors.Wrap(err, "failed to get user preferences")
	}

	doc := ""
	if row != nil {
		doc = row.Preferences
	}
	if doc == "" {
		buf, err := json.Marshal(Default())
		if err != nil {
			return errors.Wrap(err, "failed to marshal default preferences")
		}
		doc = string(buf)
	}

	updated, err := sjson.Set(doc, "timezone", timezoneName)
	if err != nil {
		return errors.Wrap(err, "failed to set timezone in preference document")
	}

	if _, err := s.store.UpsertUserPreferences(ctx, &store.UpsertUserPreferences{
		UserID:      userID,
		Preferences: updated,
	}); err != nil {
		return errors.Wrap(err, "failed to upsert user preferences")
	}
	return nil
}

func (s *Service) upsert(ctx context.Context, userID int32, preferences *Preferences) (*store.UserPreferences, error) {
	buf, err := json.Marshal(preferences)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal preference document")
	}
	row, err := s.store.UpsertUserPreferences(ctx, &store.UpsertUserPreferences{
		UserID:      userID,
		Preferences: string(buf),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert user preferences")
	}
	return row, nil
}

// IsWithinQuietHours reports whether the wall-clock time of at falls inside
// the configured quiet window. A window that crosses midnight, for example
// 22:00 to 07:00, wraps. Both bounds are inclusive. An unset or malformed
// bound disables quiet hours entirely.
func IsWithinQuietHours(p *Preferences, at time.Time) bool {
	start, okStart := parseClock(p.QuietHoursStart)
	end, okEnd := parseClock(p.QuietHoursEnd)
	if !okStart || !okEnd {
		return false
	}

	minute := at.Hour()*60 + at.Minute()
	if start <= end {
		return start <= minute && minute <= end
	}
	return minute >= start || minute <= end
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(value string) (int, bool) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}
