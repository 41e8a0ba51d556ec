// Package selector walks the ordered channel list and, within each
// channel, the ordered provider list, returning the first fully eligible
// (channel, provider) pair plus a diagnostic trail explaining every other
// candidate's rejection. Ordering is the caller's responsibility; the
// selector never re-sorts.
package selector

import (
	"context"

	"github.com/routeworks/router/internal/conditional"
	"github.com/routeworks/router/internal/model"
	"github.com/routeworks/router/internal/providers"
)

// Reason classifies one diagnostic entry.
type Reason string

const (
	ReasonSelected               Reason = "SELECTED"
	ReasonChannelDisabled        Reason = "CHANNEL_DISABLED"
	ReasonFilteredOutAtChannel   Reason = "FILTERED_OUT_AT_CHANNEL"
	ReasonMissingProviders       Reason = "MISSING_PROVIDERS"
	ReasonMissingConfigurationID Reason = "MISSING_CONFIGURATION_ID"
	ReasonMissingConfiguration   Reason = "MISSING_CONFIGURATION"
	ReasonFilteredAtProvider     Reason = "FILTERED_AT_PROVIDER"
	ReasonMissingProviderSupport Reason = "MISSING_PROVIDER_SUPPORT"
	ReasonIncompleteProfileData  Reason = "INCOMPLETE_PROFILE_DATA"
	ReasonProviderDeclined       Reason = "PROVIDER_DECLINED"
)

// Diagnostic records the fate of one candidate in traversal order. The
// full list is persisted on the ROUTED event for later debugging.
type Diagnostic struct {
	Reason        Reason `json:"reason"`
	Channel       string `json:"channel"`
	Provider      string `json:"provider,omitempty"`
	Configuration string `json:"configuration,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// Selection is the chosen (channel, provider, configuration) triple.
type Selection struct {
	Channel       *model.Channel
	Provider      *model.ProviderRef
	Configuration *model.Configuration
}

// Select performs the single-pass scan. With allowMultiple false it stops
// at the first eligible pair; with allowMultiple true it keeps scanning to
// accumulate diagnostics, but only the first-found pair is authoritative.
func Select(
	ctx context.Context,
	vars *conditional.Context,
	channels []model.Channel,
	configurations map[string]model.Configuration,
	registry *providers.Registry,
	tenantID string,
	allowMultiple bool,
) (Selection, []Diagnostic) {
	var selection Selection
	diagnostics := make([]Diagnostic, 0, len(channels))

	for ci := range channels {
		channel := &channels[ci]

		if channel.Disabled {
			diagnostics = append(diagnostics, Diagnostic{Reason: ReasonChannelDisabled, Channel: channel.ID})
			continue
		}
		if conditional.ShouldFilter(vars, channel.If) {
			diagnostics = append(diagnostics, Diagnostic{Reason: ReasonFilteredOutAtChannel, Channel: channel.ID})
			continue
		}
		if len(channel.Providers) == 0 {
			// The channel itself was eligible, so the failure is at the
			// provider level for sub-reason derivation.
			diagnostics = append(diagnostics, Diagnostic{Reason: ReasonMissingProviders, Channel: channel.ID})
			continue
		}

		for pi := range channel.Providers {
			ref := &channel.Providers[pi]

			if ref.ConfigurationID == "" {
				diagnostics = append(diagnostics, Diagnostic{
					Reason: ReasonMissingConfigurationID, Channel: channel.ID, Provider: ref.Key,
				})
				continue
			}
			configuration, ok := configurations[ref.ConfigurationID]
			if !ok {
				diagnostics = append(diagnostics, Diagnostic{
					Reason: ReasonMissingConfiguration, Channel: channel.ID,
					Provider: ref.Key, Configuration: ref.ConfigurationID,
				})
				continue
			}
			if conditional.ShouldFilter(vars, ref.If) {
				diagnostics = append(diagnostics, Diagnostic{
					Reason: ReasonFilteredAtProvider, Channel: channel.ID,
					Provider: ref.Key, Configuration: ref.ConfigurationID,
				})
				continue
			}
			impl, ok := registry.Get(configuration.Provider)
			if !ok {
				diagnostics = append(diagnostics, Diagnostic{
					Reason: ReasonMissingProviderSupport, Channel: channel.ID,
					Provider: configuration.Provider, Configuration: ref.ConfigurationID,
				})
				continue
			}

			eligible, detail, err := impl.Eligible(ctx, providers.EligibilityContext{
				TenantID:       tenantID,
				Profile:        vars.Profile,
				Data:           vars.Data,
				Config:         configuration,
				ProviderConfig: ref.Config,
			})
			if err != nil {
				diagnostics = append(diagnostics, Diagnostic{
					Reason: ReasonIncompleteProfileData, Channel: channel.ID,
					Provider: configuration.Provider, Configuration: ref.ConfigurationID,
					Detail: err.Error(),
				})
				continue
			}
			if !eligible {
				reason := ReasonIncompleteProfileData
				if detail != "" {
					reason = ReasonProviderDeclined
				}
				diagnostics = append(diagnostics, Diagnostic{
					Reason: reason, Channel: channel.ID,
					Provider: configuration.Provider, Configuration: ref.ConfigurationID,
					Detail: detail,
				})
				continue
			}

			diagnostics = append(diagnostics, Diagnostic{
				Reason: ReasonSelected, Channel: channel.ID,
				Provider: configuration.Provider, Configuration: ref.ConfigurationID,
			})
			if selection.Channel == nil {
				cfg := configuration
				selection = Selection{Channel: channel, Provider: ref, Configuration: &cfg}
			}
			if !allowMultiple {
				return selection, diagnostics
			}
			// Keep scanning remaining channels for diagnostics, but stop
			// inside this channel: one provider per channel.
			break
		}
	}

	return selection, diagnostics
}

// UnroutableReason derives the UNROUTABLE sub-reason from the diagnostic
// trail: NO_PROVIDERS when at least one channel survived its own checks
// but none of its providers did, NO_CHANNELS otherwise.
func UnroutableReason(diagnostics []Diagnostic) string {
	for _, d := range diagnostics {
		switch d.Reason {
		case ReasonMissingProviders, ReasonMissingConfigurationID,
			ReasonMissingConfiguration, ReasonFilteredAtProvider,
			ReasonMissingProviderSupport, ReasonIncompleteProfileData,
			ReasonProviderDeclined:
			return model.ReasonNoProviders
		}
	}
	return model.ReasonNoChannels
}
