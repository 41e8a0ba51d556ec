package model

import "time"

// EventType is the closed set of routing lifecycle event types. The final
// event appended for a job fully characterizes its outcome.
type EventType string

const (
	EventRouted            EventType = "ROUTED"
	EventRendered          EventType = "RENDERED"
	EventProviderAttempted EventType = "PROVIDER_ATTEMPTED"
	EventSent              EventType = "SENT"
	EventSimulated         EventType = "SIMULATED"
	EventUndeliverable     EventType = "UNDELIVERABLE"
	EventUnroutable        EventType = "UNROUTABLE"
	EventError             EventType = "ERROR"
	EventFiltered          EventType = "FILTERED"
)

// Reasons recorded on suppression and routing-failure events.
const (
	ReasonUnsubscribed   = "UNSUBSCRIBED"
	ReasonOptInRequired  = "OPT_IN_REQUIRED"
	ReasonFiltered       = "FILTERED"
	ReasonInvalidAddress = "INVALID_ADDRESS"
	ReasonNoChannels     = "NO_CHANNELS"
	ReasonNoProviders    = "NO_PROVIDERS"
)

// Event is one append-only audit entry, ordered by Seq within a
// (tenant, message) scope. Entries are never mutated or deleted.
type Event struct {
	Seq       int64          `json:"seq"`
	TenantID  string         `json:"tenantId"`
	MessageID string         `json:"messageId"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}
