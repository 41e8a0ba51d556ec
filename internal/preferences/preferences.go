// Package preferences maps raw recipient preference data plus
// category/notification configuration into a delivery verdict and a
// preferred channel ordering. Pure functions, no I/O.
package preferences

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/routeworks/router/internal/model"
)

const ruleSnooze = "snooze"

// Verdict is the outcome of preference evaluation for one message.
type Verdict struct {
	Blocked bool
	Reason  string
	Message string
}

// CanonicalKey normalizes the two interchangeable id encodings onto one
// key form. Ids that parse as UUIDs (dashed or 32-hex compact) collapse
// to the compact lower-hex form; anything else lowercases as-is. Every
// preference map build and lookup goes through this function; raw ids are
// never compared directly.
func CanonicalKey(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return hex.EncodeToString(u[:])
	}
	return strings.ToLower(id)
}

// Normalize rebuilds the preference maps with canonical keys. Later
// entries colliding onto the same canonical key overwrite earlier ones.
func Normalize(p model.Preferences) model.Preferences {
	return model.Preferences{
		Categories:    normalizeMap(p.Categories),
		Notifications: normalizeMap(p.Notifications),
	}
}

func normalizeMap(in map[string]model.Preference) map[string]model.Preference {
	if in == nil {
		return nil
	}
	out := make(map[string]model.Preference, len(in))
	for k, v := range in {
		out[CanonicalKey(k)] = v
	}
	return out
}

// Evaluate applies the category checks first, then the notification
// checks, then the snooze rules. Category REQUIRED (and, failing that,
// notification REQUIRED) short-circuits to allowed before any preference
// value is consulted, so no stored status or snooze can block a required
// message.
func Evaluate(now time.Time, category *model.Category, n model.Notification, prefs model.Preferences) Verdict {
	prefs = Normalize(prefs)

	if category != nil {
		entry, ok := lookup(prefs.Categories, category.ID)
		if category.Type == model.TypeRequired {
			return Verdict{}
		}
		if ok && entry.Status == model.StatusOptedOut {
			return Verdict{Blocked: true, Reason: model.ReasonUnsubscribed, Message: "User opted out at category level"}
		}
		if category.Type == model.TypeOptIn && (!ok || entry.Status != model.StatusOptedIn) {
			return Verdict{Blocked: true, Reason: model.ReasonOptInRequired, Message: "Category requires opt in"}
		}
	}

	entry, ok := lookup(prefs.Notifications, n.ID)
	if n.Type == model.TypeRequired {
		return Verdict{}
	}
	if ok && entry.Status == model.StatusOptedOut {
		return Verdict{Blocked: true, Reason: model.ReasonUnsubscribed, Message: "User opted out at notification level"}
	}
	if n.Type == model.TypeOptIn && (!ok || entry.Status != model.StatusOptedIn) {
		return Verdict{Blocked: true, Reason: model.ReasonOptInRequired, Message: "Notification requires opt in"}
	}

	if category != nil {
		if entry, ok := lookup(prefs.Categories, category.ID); ok {
			if snoozed(now, entry) {
				return Verdict{Blocked: true, Reason: model.ReasonFiltered, Message: "Snoozed at category level by user"}
			}
		}
	}
	if ok && snoozed(now, entry) {
		return Verdict{Blocked: true, Reason: model.ReasonFiltered, Message: "Snoozed at notification level by user"}
	}

	return Verdict{}
}

// snoozed inspects only the first snooze rule of the entry; later rules
// are never consulted.
func snoozed(now time.Time, entry model.Preference) bool {
	rule, ok := firstSnooze(entry.Rules)
	if !ok || rule.Until == nil {
		return false
	}
	if rule.Start != nil && rule.Start.After(now) {
		return false
	}
	return rule.Until.After(now)
}

func firstSnooze(rules []model.PreferenceRule) (model.PreferenceRule, bool) {
	for _, r := range rules {
		if r.Type == ruleSnooze {
			return r, true
		}
	}
	return model.PreferenceRule{}, false
}

// ChannelPreferences reorders the bestOf channel list so that channels
// matching earlier-declared preferred taxonomies come first, preserving
// relative order within each matched group and appending unmatched
// channels afterward in original order. The category entry wins over the
// notification entry; with no declared preferences anywhere the list is
// returned unchanged.
func ChannelPreferences(category *model.Category, n model.Notification, prefs model.Preferences, bestOf []model.Channel) []model.Channel {
	prefs = Normalize(prefs)

	declared := declaredPreferences(category, n, prefs)
	if len(declared) == 0 {
		return bestOf
	}

	// Two passes: partition into matched-per-preference groups and the
	// unmatched remainder, both keeping input order, then concatenate.
	matched := make([]bool, len(bestOf))
	out := make([]model.Channel, 0, len(bestOf))
	for _, pref := range declared {
		for i, ch := range bestOf {
			if matched[i] {
				continue
			}
			if taxonomyMatches(ch.Taxonomy, pref.Channel) {
				matched[i] = true
				out = append(out, ch)
			}
		}
	}
	for i, ch := range bestOf {
		if !matched[i] {
			out = append(out, ch)
		}
	}
	return out
}

func declaredPreferences(category *model.Category, n model.Notification, prefs model.Preferences) []model.ChannelPreference {
	if category != nil {
		if entry, ok := lookup(prefs.Categories, category.ID); ok && len(entry.ChannelPreferences) > 0 {
			return entry.ChannelPreferences
		}
	}
	if entry, ok := lookup(prefs.Notifications, n.ID); ok && len(entry.ChannelPreferences) > 0 {
		return entry.ChannelPreferences
	}
	return nil
}

func taxonomyMatches(taxonomy, preferred string) bool {
	return taxonomy == preferred || strings.HasPrefix(taxonomy, preferred+":")
}

func lookup(m map[string]model.Preference, id string) (model.Preference, bool) {
	if m == nil {
		return model.Preference{}, false
	}
	entry, ok := m[CanonicalKey(id)]
	return entry, ok
}
