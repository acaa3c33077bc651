package preference

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/cueapp/cue/store"
)

type mockPreferenceStore struct {
	rows map[int32]*store.UserPreferences
}

func newMockPreferenceStore() *mockPreferenceStore {
	return &mockPreferenceStore{rows: map[int32]*store.UserPreferences{}}
}

func (m *mockPreferenceStore) GetUserPreferences(_ context.Context, find *store.FindUserPreferences) (*store.UserPreferences, error) {
	row, ok := m.rows[*find.UserID]
	if !ok {
		return nil, nil
	}
	return row, nil
}

func (m *mockPreferenceStore) UpsertUserPreferences(_ context.Context, upsert *store.UpsertUserPreferences) (*store.UserPreferences, error) {
	row := &store.UserPreferences{UserID: upsert.UserID, Preferences: upsert.Preferences}
	m.rows[upsert.UserID] = row
	return row, nil
}

func TestServiceGet(t *testing.T) {
	ctx := context.Background()

	t.Run("creates defaults on first access", func(t *testing.T) {
		mock := newMockPreferenceStore()
		service := NewService(mock)

		preferences, err := service.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 4, preferences.MaxNudgesPerDay)
		assert.Equal(t, "proactive", preferences.AssistantStyle)
		assert.Equal(t, 8, preferences.BriefingHour)

		require.Contains(t, mock.rows, int32(1))
	})

	t.Run("missing keys keep defaults", func(t *testing.T) {
		mock := newMockPreferenceStore()
		mock.rows[2] = &store.UserPreferences{UserID: 2, Preferences: `{"timezone":"Europe/Berlin"}`}
		service := NewService(mock)

		preferences, err := service.Get(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "Europe/Berlin", preferences.Timezone)
		assert.Equal(t, 4, preferences.MaxNudgesPerDay)
	})

	t.Run("stored values win over defaults", func(t *testing.T) {
		mock := newMockPreferenceStore()
		mock.rows[3] = &store.UserPreferences{UserID: 3, Preferences: `{"max_nudges_per_day":1,"quiet_hours_start":"22:00","quiet_hours_end":"07:00"}`}
		service := NewService(mock)

		preferences, err := service.Get(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, 1, preferences.MaxNudgesPerDay)
		assert.Equal(t, "22:00", preferences.QuietHoursStart)
	})
}

func TestServiceUpdateTimezone(t *testing.T) {
	ctx := context.Background()

	t.Run("updates only the timezone key", func(t *testing.T) {
		mock := newMockPreferenceStore()
		mock.rows[1] = &store.UserPreferences{UserID: 1, Preferences: `{"timezone":"UTC","max_nudges_per_day":2,"custom_key":"kept"}`}
		service := NewService(mock)

		require.NoError(t, service.UpdateTimezone(ctx, 1, "America/New_York"))

		doc := mock.rows[1].Preferences
		assert.Equal(t, "America/New_York", gjson.Get(doc, "timezone").String())
		assert.Equal(t, int64(2), gjson.Get(doc, "max_nudges_per_day").Int())
		assert.Equal(t, "kept", gjson.Get(doc, "custom_key").String())
	})

	t.Run("creates document when none exists", func(t *testing.T) {
		mock := newMockPreferenceStore()
		service := NewService(mock)

		require.NoError(t, service.UpdateTimezone(ctx, 9, "Asia/Tokyo"))

		doc := mock.rows[9].Preferences
		assert.Equal(t, "Asia/Tokyo", gjson.Get(doc, "timezone").String())
		assert.Equal(t, int64(4), gjson.Get(doc, "max_nudges_per_day").Int())
	})
}

func TestIsWithinQuietHours(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
	}

	t.Run("unset bounds disable quiet hours", func(t *testing.T) {
		assert.False(t, IsWithinQuietHours(Default(), at(3, 0)))
	})

	t.Run("simple window", func(t *testing.T) {
		p := &Preferences{QuietHoursStart: "13:00", QuietHoursEnd: "14:00"}
		assert.False(t, IsWithinQuietHours(p, at(12, 59)))
		assert.True(t, IsWithinQuietHours(p, at(13, 0)))
		assert.True(t, IsWithinQuietHours(p, at(13, 30)))
		assert.True(t, IsWithinQuietHours(p, at(14, 0)))
		assert.False(t, IsWithinQuietHours(p, at(14, 1)))
	})

	t.Run("window wrapping midnight", func(t *testing.T) {
		p := &Preferences{QuietHoursStart: "22:00", QuietHoursEnd: "07:00"}
		assert.True(t, IsWithinQuietHours(p, at(23, 30)))
		assert.True(t, IsWithinQuietHours(p, at(2, 0)))
		assert.True(t, IsWithinQuietHours(p, at(7, 0)))
		assert.False(t, IsWithinQuietHours(p, at(12, 0)))
		assert.False(t, IsWithinQuietHours(p, at(21, 59)))
	})

	t.Run("malformed bound disables quiet hours", func(t *testing.T) {
		p := &Preferences{QuietHoursStart: "25:00", QuietHoursEnd: "07:00"}
		assert.False(t, IsWithinQuietHours(p, at(2, 0)))
	})
}
