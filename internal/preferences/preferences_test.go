package preferences

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeworks/router/internal/model"
)

var now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func TestCanonicalKey(t *testing.T) {
	dashed := "7c2b95c4-61c8-4b46-b030-933721931362"
	compact := "7c2b95c461c84b46b030933721931362"

	assert.Equal(t, compact, CanonicalKey(dashed))
	assert.Equal(t, compact, CanonicalKey(compact))
	assert.Equal(t, CanonicalKey(dashed), CanonicalKey(compact))
	// Non-UUID ids just lowercase.
	assert.Equal(t, "welcome-email", CanonicalKey("Welcome-Email"))
}

func TestEvaluateOptOut(t *testing.T) {
	n := model.Notification{ID: "n1", Type: model.TypeOptOut}
	prefs := model.Preferences{
		Notifications: map[string]model.Preference{
			"n1": {Status: model.StatusOptedOut},
		},
	}

	verdict := Evaluate(now, nil, n, prefs)
	require.True(t, verdict.Blocked)
	assert.Equal(t, model.ReasonUnsubscribed, verdict.Reason)

	// No stored preference on an opt-out notification delivers.
	verdict = Evaluate(now, nil, model.Notification{ID: "n2", Type: model.TypeOptOut}, prefs)
	assert.False(t, verdict.Blocked)
}

func TestEvaluateOptIn(t *testing.T) {
	n := model.Notification{ID: "n1", Type: model.TypeOptIn}

	verdict := Evaluate(now, nil, n, model.Preferences{})
	require.True(t, verdict.Blocked)
	assert.Equal(t, model.ReasonOptInRequired, verdict.Reason)

	verdict = Evaluate(now, nil, n, model.Preferences{
		Notifications: map[string]model.Preference{
			"n1": {Status: model.StatusOptedIn},
		},
	})
	assert.False(t, verdict.Blocked)
}

func TestEvaluateRequiredIgnoresPreferences(t *testing.T) {
	until := now.Add(time.Hour)
	prefs := model.Preferences{
		Notifications: map[string]model.Preference{
			"n1": {
				Status: model.StatusOptedOut,
				Rules:  []model.PreferenceRule{{Type: "snooze", Until: &until}},
			},
		},
	}

	verdict := Evaluate(now, nil, model.Notification{ID: "n1", Type: model.TypeRequired}, prefs)
	assert.False(t, verdict.Blocked)
}

func TestEvaluateCategoryPrecedence(t *testing.T) {
	category := &model.Category{ID: "c1", Type: model.TypeOptOut}
	n := model.Notification{ID: "n1", CategoryID: "c1", Type: model.TypeOptOut}

	// Category opt-out blocks even when the notification itself has no
	// stored preference.
	verdict := Evaluate(now, category, n, model.Preferences{
		Categories: map[string]model.Preference{
			"c1": {Status: model.StatusOptedOut},
		},
	})
	require.True(t, verdict.Blocked)
	assert.Equal(t, model.ReasonUnsubscribed, verdict.Reason)
	assert.Contains(t, verdict.Message, "category")

	// Required category overrides the recipient's category opt-out.
	required := &model.Category{ID: "c1", Type: model.TypeRequired}
	verdict = Evaluate(now, required, n, model.Preferences{
		Categories: map[string]model.Preference{
			"c1": {Status: model.StatusOptedOut},
		},
	})
	assert.False(t, verdict.Blocked)
}

func TestEvaluateKeyEncodingMismatch(t *testing.T) {
	// Preference stored under the compact form, notification id dashed.
	n := model.Notification{ID: "7c2b95c4-61c8-4b46-b030-933721931362", Type: model.TypeOptOut}
	prefs := model.Preferences{
		Notifications: map[string]model.Preference{
			"7c2b95c461c84b46b030933721931362": {Status: model.StatusOptedOut},
		},
	}

	verdict := Evaluate(now, nil, n, prefs)
	require.True(t, verdict.Blocked)
	assert.Equal(t, model.ReasonUnsubscribed, verdict.Reason)
}

func TestEvaluateSnooze(t *testing.T) {
	n := model.Notification{ID: "n1", Type: model.TypeOptOut}
	makePrefs := func(rules ...model.PreferenceRule) model.Preferences {
		return model.Preferences{
			Notifications: map[string]model.Preference{
				"n1": {Rules: rules},
			},
		}
	}
	hourAgo := now.Add(-time.Hour)
	hourAhead := now.Add(time.Hour)

	tests := []struct {
		name    string
		rules   []model.PreferenceRule
		blocked bool
	}{
		{"active snooze", []model.PreferenceRule{{Type: "snooze", Until: &hourAhead}}, true},
		{"expired snooze", []model.PreferenceRule{{Type: "snooze", Until: &hourAgo}}, false},
		{"not yet started", []model.PreferenceRule{{Type: "snooze", Start: &hourAhead, Until: &hourAhead}}, false},
		{"within window", []model.PreferenceRule{{Type: "snooze", Start: &hourAgo, Until: &hourAhead}}, true},
		{"no until", []model.PreferenceRule{{Type: "snooze"}}, false},
		{"non-snooze rule ignored", []model.PreferenceRule{{Type: "digest", Until: &hourAhead}}, false},
		{
			// Only the first snooze rule counts; the active second one is
			// never consulted.
			"first snooze wins",
			[]model.PreferenceRule{
				{Type: "snooze", Until: &hourAgo},
				{Type: "snooze", Until: &hourAhead},
			},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := Evaluate(now, nil, n, makePrefs(tt.rules...))
			assert.Equal(t, tt.blocked, verdict.Blocked)
			if tt.blocked {
				assert.Equal(t, model.ReasonFiltered, verdict.Reason)
			}
		})
	}
}

func channels(taxonomies ...string) []model.Channel {
	out := make([]model.Channel, len(taxonomies))
	for i, tax := range taxonomies {
		out[i] = model.Channel{ID: tax, Taxonomy: tax}
	}
	return out
}

func taxonomies(in []model.Channel) []string {
	out := make([]string, len(in))
	for i, ch := range in {
		out[i] = ch.Taxonomy
	}
	return out
}

func TestChannelPreferencesReorder(t *testing.T) {
	bestOf := channels("email", "push:web", "direct_message:slack", "push:mobile")
	n := model.Notification{ID: "n1"}

	t.Run("no declared preferences keeps order", func(t *testing.T) {
		got := ChannelPreferences(nil, n, model.Preferences{}, bestOf)
		assert.Equal(t, taxonomies(bestOf), taxonomies(got))
	})

	t.Run("preferred taxonomy moves to front, prefix match", func(t *testing.T) {
		prefs := model.Preferences{
			Notifications: map[string]model.Preference{
				"n1": {ChannelPreferences: []model.ChannelPreference{{Channel: "push"}}},
			},
		}
		got := ChannelPreferences(nil, n, prefs, bestOf)
		assert.Equal(t, []string{"push:web", "push:mobile", "email", "direct_message:slack"}, taxonomies(got))
	})

	t.Run("category entry wins over notification entry", func(t *testing.T) {
		category := &model.Category{ID: "c1"}
		prefs := model.Preferences{
			Categories: map[string]model.Preference{
				"c1": {ChannelPreferences: []model.ChannelPreference{{Channel: "email"}}},
			},
			Notifications: map[string]model.Preference{
				"n1": {ChannelPreferences: []model.ChannelPreference{{Channel: "push"}}},
			},
		}
		got := ChannelPreferences(category, n, prefs, bestOf)
		assert.Equal(t, "email", got[0].Taxonomy)
	})

	t.Run("multiple preferences keep declaration order", func(t *testing.T) {
		prefs := model.Preferences{
			Notifications: map[string]model.Preference{
				"n1": {ChannelPreferences: []model.ChannelPreference{
					{Channel: "direct_message:slack"},
					{Channel: "push"},
				}},
			},
		}
		got := ChannelPreferences(nil, n, prefs, bestOf)
		assert.Equal(t, []string{"direct_message:slack", "push:web", "push:mobile", "email"}, taxonomies(got))
	})

	t.Run("prefix does not match partial segment", func(t *testing.T) {
		prefs := model.Preferences{
			Notifications: map[string]model.Preference{
				"n1": {ChannelPreferences: []model.ChannelPreference{{Channel: "pus"}}},
			},
		}
		got := ChannelPreferences(nil, n, prefs, bestOf)
		assert.Equal(t, taxonomies(bestOf), taxonomies(got))
	})
}
