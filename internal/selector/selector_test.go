package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeworks/router/internal/conditional"
	"github.com/routeworks/router/internal/model"
	"github.com/routeworks/router/internal/providers"
)

type fakeProvider struct {
	eligible bool
	detail   string
	err      error
}

func (f fakeProvider) Eligible(context.Context, providers.EligibilityContext) (bool, string, error) {
	return f.eligible, f.detail, f.err
}

func (f fakeProvider) Send(context.Context, providers.SendRequest) (map[string]any, error) {
	return nil, nil
}

func registryWith(entries map[string]providers.Provider) *providers.Registry {
	r := providers.NewRegistry()
	for k, p := range entries {
		r.Register(k, p)
	}
	return r
}

func emptyVars() *conditional.Context {
	return &conditional.Context{}
}

func channel(id, taxonomy string, refs ...model.ProviderRef) model.Channel {
	return model.Channel{ID: id, Taxonomy: taxonomy, Providers: refs}
}

func config(id, provider string) model.Configuration {
	return model.Configuration{ID: id, Provider: provider}
}

func TestSelectFirstEligiblePair(t *testing.T) {
	registry := registryWith(map[string]providers.Provider{
		"smtp": fakeProvider{eligible: true},
	})
	channels := []model.Channel{
		channel("ch-email", "email", model.ProviderRef{Key: "smtp", ConfigurationID: "cfg1"}),
		channel("ch-push", "push", model.ProviderRef{Key: "push", ConfigurationID: "cfg2"}),
	}
	configs := map[string]model.Configuration{
		"cfg1": config("cfg1", "smtp"),
		"cfg2": config("cfg2", "push"),
	}

	selection, diags := Select(context.Background(), emptyVars(), channels, configs, registry, "t1", false)

	require.NotNil(t, selection.Channel)
	assert.Equal(t, "ch-email", selection.Channel.ID)
	assert.Equal(t, "cfg1", selection.Configuration.ID)
	// Short-circuit: the second channel was never inspected.
	require.Len(t, diags, 1)
	assert.Equal(t, ReasonSelected, diags[0].Reason)
}

func TestSelectDiagnosticsPerRejection(t *testing.T) {
	filter := &conditional.Expression{Source: "data.skip", Operator: conditional.OpIsSet}
	vars := &conditional.Context{Data: map[string]any{"skip": true}}

	registry := registryWith(map[string]providers.Provider{
		"declines":   fakeProvider{eligible: false, detail: "recipient suppressed"},
		"incomplete": fakeProvider{eligible: false},
		"errors":     fakeProvider{err: errors.New("profile lookup failed")},
	})
	channels := []model.Channel{
		{ID: "disabled", Taxonomy: "email", Disabled: true},
		{ID: "filtered", Taxonomy: "email", If: filter},
		channel("no-cfg-id", "email", model.ProviderRef{Key: "smtp"}),
		channel("missing-cfg", "email", model.ProviderRef{Key: "smtp", ConfigurationID: "nope"}),
		channel("filtered-provider", "email", model.ProviderRef{Key: "smtp", ConfigurationID: "cfg1", If: filter}),
		channel("unsupported", "email", model.ProviderRef{Key: "x", ConfigurationID: "cfg-unknown"}),
		channel("declined", "email", model.ProviderRef{Key: "declines", ConfigurationID: "cfg-declines"}),
		channel("incomplete", "email", model.ProviderRef{Key: "incomplete", ConfigurationID: "cfg-incomplete"}),
		channel("errored", "email", model.ProviderRef{Key: "errors", ConfigurationID: "cfg-errors"}),
	}
	configs := map[string]model.Configuration{
		"cfg1":           config("cfg1", "smtp"),
		"cfg-unknown":    config("cfg-unknown", "mystery"),
		"cfg-declines":   config("cfg-declines", "declines"),
		"cfg-incomplete": config("cfg-incomplete", "incomplete"),
		"cfg-errors":     config("cfg-errors", "errors"),
	}

	selection, diags := Select(context.Background(), vars, channels, configs, registry, "t1", false)

	require.Nil(t, selection.Channel)
	reasons := make([]Reason, len(diags))
	for i, d := range diags {
		reasons[i] = d.Reason
	}
	assert.Equal(t, []Reason{
		ReasonChannelDisabled,
		ReasonFilteredOutAtChannel,
		ReasonMissingConfigurationID,
		ReasonMissingConfiguration,
		ReasonFilteredAtProvider,
		ReasonMissingProviderSupport,
		ReasonProviderDeclined,
		ReasonIncompleteProfileData,
		ReasonIncompleteProfileData,
	}, reasons)

	// Decline detail is surfaced verbatim; eligibility errors carry the
	// error text.
	assert.Equal(t, "recipient suppressed", diags[6].Detail)
	assert.Equal(t, "profile lookup failed", diags[8].Detail)
}

func TestSelectAllowMultipleKeepsScanning(t *testing.T) {
	registry := registryWith(map[string]providers.Provider{
		"smtp": fakeProvider{eligible: true},
		"push": fakeProvider{eligible: true},
	})
	channels := []model.Channel{
		channel("first", "email",
			model.ProviderRef{Key: "smtp", ConfigurationID: "cfg1"},
			model.ProviderRef{Key: "smtp", ConfigurationID: "cfg1b"},
		),
		channel("second", "push", model.ProviderRef{Key: "push", ConfigurationID: "cfg2"}),
	}
	configs := map[string]model.Configuration{
		"cfg1":  config("cfg1", "smtp"),
		"cfg1b": config("cfg1b", "smtp"),
		"cfg2":  config("cfg2", "push"),
	}

	selection, diags := Select(context.Background(), emptyVars(), channels, configs, registry, "t1", true)

	// The first eligible pair stays authoritative.
	require.NotNil(t, selection.Channel)
	assert.Equal(t, "first", selection.Channel.ID)
	assert.Equal(t, "cfg1", selection.Configuration.ID)

	// One provider per channel: cfg1b is skipped, but the second channel
	// still gets a SELECTED diagnostic.
	require.Len(t, diags, 2)
	assert.Equal(t, "first", diags[0].Channel)
	assert.Equal(t, "second", diags[1].Channel)
	assert.Equal(t, ReasonSelected, diags[1].Reason)
}

func TestSelectChannelWithoutProviders(t *testing.T) {
	registry := registryWith(nil)
	channels := []model.Channel{channel("empty", "email")}

	selection, diags := Select(context.Background(), emptyVars(), channels, nil, registry, "t1", false)

	require.Nil(t, selection.Channel)
	require.Len(t, diags, 1)
	assert.Equal(t, ReasonMissingProviders, diags[0].Reason)
	assert.Equal(t, "empty", diags[0].Channel)

	// The channel itself was eligible, so the failure reads as a
	// provider-level one.
	assert.Equal(t, model.ReasonNoProviders, UnroutableReason(diags))
}

func TestUnroutableReason(t *testing.T) {
	assert.Equal(t, model.ReasonNoChannels, UnroutableReason(nil))
	assert.Equal(t, model.ReasonNoChannels, UnroutableReason([]Diagnostic{
		{Reason: ReasonChannelDisabled},
		{Reason: ReasonFilteredOutAtChannel},
	}))
	assert.Equal(t, model.ReasonNoProviders, UnroutableReason([]Diagnostic{
		{Reason: ReasonChannelDisabled},
		{Reason: ReasonProviderDeclined},
	}))
	assert.Equal(t, model.ReasonNoProviders, UnroutableReason([]Diagnostic{
		{Reason: ReasonMissingConfiguration},
	}))
}
