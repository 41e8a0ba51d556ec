// Package tracking creates and persists the records that let an inbound
// click/open/unsubscribe hit be resolved back to the delivery it was
// embedded in.
package tracking

import (
	"time"

	"github.com/google/uuid"

	"github.com/routeworks/router/internal/model"
)

// Builder accumulates tracking records for one routing attempt. No I/O:
// rendering calls it to mint URLs, the executor persists the records
// afterward. Not safe for concurrent use; each attempt builds its own.
type Builder struct {
	tenantID  string
	messageID string
	channelID string
	recipient string
	baseURL   string
	settings  model.TrackingSettings
	enabled   bool
	now       func() time.Time
	records   []model.TrackingRecord
}

func NewBuilder(tenantID, messageID, channelID, recipient, baseURL string, settings model.TrackingSettings, enabled bool) *Builder {
	return &Builder{
		tenantID:  tenantID,
		messageID: messageID,
		channelID: channelID,
		recipient: recipient,
		baseURL:   baseURL,
		settings:  settings,
		enabled:   enabled,
		now:       time.Now,
	}
}

// Link returns the click-tracking redirect URL for href, or href itself
// when click tracking is off for this delivery mode.
func (b *Builder) Link(href string) string {
	if !b.enabled || !b.settings.Click {
		return href
	}
	return b.add(model.TrackClick, href)
}

// OpenPixel returns the open-tracking pixel URL, or "" when disabled.
func (b *Builder) OpenPixel() string {
	if !b.enabled || !b.settings.Open {
		return ""
	}
	return b.add(model.TrackOpen, "")
}

// UnsubscribeLink returns the unsubscribe URL, or "" when disabled.
func (b *Builder) UnsubscribeLink() string {
	if !b.enabled || !b.settings.Unsubscribe {
		return ""
	}
	return b.add(model.TrackUnsubscribe, "")
}

// ChannelRecord mints the per-channel tracking record, or "" when
// disabled.
func (b *Builder) ChannelRecord() string {
	if !b.enabled || !b.settings.Channel {
		return ""
	}
	return b.add(model.TrackChannel, "")
}

func (b *Builder) add(typ model.TrackingRecordType, href string) string {
	id := uuid.NewString()
	record := model.TrackingRecord{
		ID:          id,
		TenantID:    b.tenantID,
		MessageID:   b.messageID,
		ChannelID:   b.channelID,
		Recipient:   b.recipient,
		Type:        typ,
		URL:         href,
		TrackingURL: b.baseURL + "/r/" + id,
		CreatedAt:   b.now(),
	}
	b.records = append(b.records, record)
	return record.TrackingURL
}

// Records returns everything minted so far, in creation order.
func (b *Builder) Records() []model.TrackingRecord {
	return b.records
}

// IDs returns the minted record ids for the RENDERED event payload.
func (b *Builder) IDs() []string {
	ids := make([]string, len(b.records))
	for i, r := range b.records {
		ids[i] = r.ID
	}
	return ids
}
