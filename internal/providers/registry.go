// Package providers defines the provider capability interface and the
// concrete delivery integrations. A provider is opaque to routing: it can
// say whether it is able to deliver to the recipient, and it can send an
// assembled payload.
package providers

import (
	"context"

	"github.com/routeworks/router/internal/model"
)

// EligibilityContext is what a capability check may inspect.
type EligibilityContext struct {
	TenantID string
	Profile  map[string]any
	Data     map[string]any
	Config   model.Configuration
	// ProviderConfig is the per-provider config block on the channel's
	// provider reference.
	ProviderConfig map[string]any
}

// SendRequest is the fully assembled delivery parameter set.
type SendRequest struct {
	TenantID  string
	MessageID string
	ChannelID string
	Profile   map[string]any
	Config    model.Configuration
	Brand     *model.Brand
	// Templates are the rendered representations keyed by name
	// ("subject", "html", "text", "title", "body", "payload").
	Templates map[string]string
	// Override is the per-provider override block from the send request,
	// if any.
	Override map[string]any
}

// Provider is one delivery integration. Eligible returns (false, "", nil)
// when profile data is missing (recorded as INCOMPLETE_PROFILE_DATA), or
// a non-empty reason string to surface a specific rejection verbatim.
// Send returns the raw provider response for the SENT event.
type Provider interface {
	Eligible(ctx context.Context, ec EligibilityContext) (bool, string, error)
	Send(ctx context.Context, req SendRequest) (map[string]any, error)
}

// Registry is the fixed provider-key to implementation map, built once at
// process start and injected into the selector and executor.
type Registry struct {
	byKey map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Provider)}
}

func (r *Registry) Register(key string, p Provider) {
	r.byKey[key] = p
}

func (r *Registry) Get(key string) (Provider, bool) {
	p, ok := r.byKey[key]
	return p, ok
}
