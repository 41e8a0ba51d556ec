// Package model holds the data types exchanged between the routing
// components: the queued job, the persisted message context, the channel
// graph and the recipient preference structures.
package model

import (
	"encoding/json"
	"time"

	"github.com/routeworks/router/internal/conditional"
)

// NotificationType controls how recipient preferences are interpreted for
// a category or notification.
type NotificationType string

const (
	TypeOptIn    NotificationType = "OPT_IN"
	TypeOptOut   NotificationType = "OPT_OUT"
	TypeRequired NotificationType = "REQUIRED"
)

// PreferenceStatus is the recipient's stored opt status for one category
// or notification.
type PreferenceStatus string

const (
	StatusOptedIn  PreferenceStatus = "OPTED_IN"
	StatusOptedOut PreferenceStatus = "OPTED_OUT"
	StatusRequired PreferenceStatus = "REQUIRED"
)

// RoutingMode selects real delivery or a dry run that skips the provider
// call.
type RoutingMode string

const (
	ModeDefault RoutingMode = "default"
	ModeMock    RoutingMode = "mock"
)

// BlockType tags a content block inside a notification template.
type BlockType string

const (
	BlockText   BlockType = "text"
	BlockAction BlockType = "action"
	BlockQuote  BlockType = "quote"
)

// Block is one authored content block. Action blocks carry the outbound
// link that gets rewired through click tracking.
type Block struct {
	ID      string    `json:"id"`
	Type    BlockType `json:"type"`
	Content string    `json:"content"`
	URL     string    `json:"url,omitempty"`
}

// ProviderRef binds a channel to one provider instance via its
// configuration id.
type ProviderRef struct {
	Key             string                  `json:"key"`
	ConfigurationID string                  `json:"configurationId"`
	If              *conditional.Expression `json:"conditional,omitempty"`
	Config          map[string]any          `json:"config,omitempty"`
}

// Channel is a delivery surface inside the notification's channel graph.
// Taxonomy is a colon-delimited capability path, e.g. "email" or
// "push:web:pusher".
type Channel struct {
	ID        string                  `json:"id"`
	Label     string                  `json:"label,omitempty"`
	Taxonomy  string                  `json:"taxonomy"`
	Disabled  bool                    `json:"disabled,omitempty"`
	If        *conditional.Expression `json:"conditional,omitempty"`
	Providers []ProviderRef           `json:"providers"`
}

// EmailContent carries the email-specific template configuration of a
// notification.
type EmailContent struct {
	Subject         string `json:"subject,omitempty"`
	PayloadOverride string `json:"payloadOverride,omitempty"`
}

// Notification is the immutable template definition snapshot passed in the
// queued message. Always channels are scanned ahead of BestOf; within
// BestOf the first eligible channel wins.
type Notification struct {
	ID         string           `json:"id"`
	Type       NotificationType `json:"type,omitempty"`
	CategoryID string           `json:"categoryId,omitempty"`
	Always     []Channel        `json:"always,omitempty"`
	BestOf     []Channel        `json:"bestOf,omitempty"`
	Blocks     []Block          `json:"blocks,omitempty"`
	Email      *EmailContent    `json:"email,omitempty"`
}

// Category groups notifications and carries its own notification type.
type Category struct {
	ID   string           `json:"id"`
	Type NotificationType `json:"type,omitempty"`
}

// Configuration holds tenant-scoped provider credentials and settings.
type Configuration struct {
	ID       string         `json:"id"`
	Provider string         `json:"provider"`
	JSON     map[string]any `json:"json,omitempty"`
}

// PreferenceRule is a recipient preference rule. Only snooze rules are
// currently interpreted.
type PreferenceRule struct {
	Type  string     `json:"type"`
	Start *time.Time `json:"start,omitempty"`
	Until *time.Time `json:"until,omitempty"`
}

// ChannelPreference names a preferred channel taxonomy prefix.
type ChannelPreference struct {
	Channel string `json:"channel"`
}

// Preference is one stored preference entry.
type Preference struct {
	Status             PreferenceStatus    `json:"status,omitempty"`
	ChannelPreferences []ChannelPreference `json:"channel_preferences,omitempty"`
	Rules              []PreferenceRule    `json:"rules,omitempty"`
}

// Preferences is the recipient's preference document, keyed by category
// and notification id. Keys may arrive in either id encoding; normalize
// with preferences.CanonicalKey before lookup.
type Preferences struct {
	Categories    map[string]Preference `json:"categories,omitempty"`
	Notifications map[string]Preference `json:"notifications,omitempty"`
}

// BrandSnippet is one brand email section. When InheritDefault is set and
// the snippet carries no content, the channel default applies.
type BrandSnippet struct {
	Content        string `json:"content,omitempty"`
	InheritDefault bool   `json:"inheritDefault,omitempty"`
}

// BrandEmail holds brand-level email settings merged into provider
// configuration during rendering.
type BrandEmail struct {
	Header *BrandSnippet `json:"header,omitempty"`
	Footer *BrandSnippet `json:"footer,omitempty"`
}

// Brand is the tenant brand snapshot referenced by rendered events.
type Brand struct {
	ID      string            `json:"id"`
	Version string            `json:"version,omitempty"`
	Email   *BrandEmail       `json:"email,omitempty"`
	Colors  map[string]string `json:"colors,omitempty"`
}

// TrackingSettings toggles which tracking records get created during
// rendering.
type TrackingSettings struct {
	Click       bool `json:"click,omitempty"`
	Open        bool `json:"open,omitempty"`
	Unsubscribe bool `json:"unsubscribe,omitempty"`
	Channel     bool `json:"channel,omitempty"`
}

// ChannelOverride carries per-channel override instructions supplied with
// one send request.
type ChannelOverride struct {
	Blocks []Block        `json:"blocks,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// Override groups the send-scoped override instructions by channel id.
type Override struct {
	Channels map[string]ChannelOverride `json:"channels,omitempty"`
}

// MessageContext is the blob-store payload describing one message routing
// attempt: everything the executor needs, resolved ahead of time.
type MessageContext struct {
	Notification   Notification     `json:"notification"`
	Category       *Category        `json:"category,omitempty"`
	Configurations []Configuration  `json:"configurations,omitempty"`
	Brand          *Brand           `json:"brand,omitempty"`
	Profile        map[string]any   `json:"profile,omitempty"`
	SentProfile    map[string]any   `json:"sentProfile,omitempty"`
	Data           map[string]any   `json:"data,omitempty"`
	Preferences    Preferences      `json:"preferences,omitempty"`
	Tracking       TrackingSettings `json:"tracking,omitempty"`
	Override       *Override        `json:"override,omitempty"`
	Mode           RoutingMode      `json:"mode,omitempty"`
}

// ConfigurationMap indexes configurations by id for selection.
func (m *MessageContext) ConfigurationMap() map[string]Configuration {
	out := make(map[string]Configuration, len(m.Configurations))
	for _, c := range m.Configurations {
		out[c.ID] = c
	}
	return out
}

// RoutingJob is the queued unit of work. It owns nothing persistent; the
// message context lives in the blob store unless Payload inlines it.
type RoutingJob struct {
	TenantID        string          `json:"tenantId"`
	MessageID       string          `json:"messageId"`
	RetryCount      int             `json:"retryCount"`
	TTL             int64           `json:"ttl,omitempty"` // unix millis deadline, 0 = none
	MessageLocation string          `json:"messageLocation,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Mock            bool            `json:"mock,omitempty"`
	Verify          bool            `json:"verify,omitempty"`
}

// TrackingRecordType enumerates the trackable interaction kinds.
type TrackingRecordType string

const (
	TrackClick       TrackingRecordType = "click"
	TrackOpen        TrackingRecordType = "open"
	TrackUnsubscribe TrackingRecordType = "unsubscribe"
	TrackChannel     TrackingRecordType = "channel"
)

// TrackingRecord resolves a later inbound hit back to the delivery it was
// embedded in. Created once per attempt, immutable afterward.
type TrackingRecord struct {
	ID          string             `json:"id"`
	TenantID    string             `json:"tenantId"`
	MessageID   string             `json:"messageId"`
	ChannelID   string             `json:"channelId"`
	Recipient   string             `json:"recipient,omitempty"`
	Type        TrackingRecordType `json:"type"`
	URL         string             `json:"url,omitempty"` // original destination for clicks
	TrackingURL string             `json:"trackingUrl"`
	CreatedAt   time.Time          `json:"createdAt"`
}
