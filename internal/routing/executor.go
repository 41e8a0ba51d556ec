// Package routing drives one queued job through the full delivery state
// machine: load the message context, evaluate preferences, select a
// channel and provider, render, deliver, and append the event trail.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/routeworks/router/internal/conditional"
	"github.com/routeworks/router/internal/events"
	"github.com/routeworks/router/internal/model"
	"github.com/routeworks/router/internal/preferences"
	"github.com/routeworks/router/internal/providers"
	"github.com/routeworks/router/internal/render"
	"github.com/routeworks/router/internal/selector"
	"github.com/routeworks/router/internal/storage"
	"github.com/routeworks/router/internal/tracking"
)

// Publisher re-enqueues retryable failures and parks exhausted jobs.
type Publisher interface {
	Republish(ctx context.Context, job model.RoutingJob) error
	DeadLetter(ctx context.Context, job model.RoutingJob, reason string) error
}

// TrackingSink persists the tracking records minted during rendering.
type TrackingSink interface {
	Persist(ctx context.Context, records []model.TrackingRecord) error
}

// Executor is the routing state machine. Route returns an error only for
// infrastructure failures the worker should nack and redeliver; every
// domain outcome, success or failure, is absorbed into the event log and
// reported as nil.
type Executor struct {
	blobs           storage.BlobStore
	log             events.Log
	tracking        TrackingSink
	providers       *providers.Registry
	render          *render.Registry
	publisher       Publisher
	maxRetries      int
	trackingBaseURL string
	now             func() time.Time
}

func NewExecutor(
	blobs storage.BlobStore,
	log events.Log,
	trackingSink TrackingSink,
	providerRegistry *providers.Registry,
	renderRegistry *render.Registry,
	publisher Publisher,
	maxRetries int,
	trackingBaseURL string,
) *Executor {
	return &Executor{
		blobs:           blobs,
		log:             log,
		tracking:        trackingSink,
		providers:       providerRegistry,
		render:          renderRegistry,
		publisher:       publisher,
		maxRetries:      maxRetries,
		trackingBaseURL: trackingBaseURL,
		now:             time.Now,
	}
}

// Route processes one queued job end to end.
func (e *Executor) Route(ctx context.Context, job model.RoutingJob) error {
	logger := zlog.Logger.With().
		Str("tenant_id", job.TenantID).
		Str("message_id", job.MessageID).
		Int("retry_count", job.RetryCount).
		Logger()

	mctx, err := e.loadContext(ctx, job)
	if err != nil {
		var routeErr *model.RouteError
		if errors.As(err, &routeErr) && routeErr.Kind == model.KindContentParse {
			// A context that does not parse will never parse; terminal.
			return e.appendError(ctx, job, routeErr, false)
		}
		return fmt.Errorf("load message context: %w", err)
	}

	mock := job.Mock || mctx.Mode == model.ModeMock
	prefs := preferences.Normalize(mctx.Preferences)

	if verdict := preferences.Evaluate(e.now(), mctx.Category, mctx.Notification, mctx.Preferences); verdict.Blocked {
		// Snooze suppression is FILTERED; opt-out and missing opt-in mean
		// the recipient cannot be delivered to at all.
		eventType := model.EventUndeliverable
		if verdict.Reason == model.ReasonFiltered {
			eventType = model.EventFiltered
		}
		logger.Info().Str("reason", verdict.Reason).Msg("message suppressed by preferences")
		return e.log.Append(ctx, job.TenantID, job.MessageID, eventType, map[string]any{
			"reason":      verdict.Reason,
			"message":     verdict.Message,
			"preferences": prefs,
		})
	}

	vars := &conditional.Context{
		Data:    mctx.Data,
		Profile: mctx.Profile,
		Event: map[string]any{
			"tenantId":  job.TenantID,
			"messageId": job.MessageID,
		},
	}

	bestOf := preferences.ChannelPreferences(mctx.Category, mctx.Notification, mctx.Preferences, mctx.Notification.BestOf)
	channels := append(append([]model.Channel{}, mctx.Notification.Always...), bestOf...)
	allowMultiple := len(mctx.Notification.Always) > 0

	selection, diagnostics := selector.Select(
		ctx, vars, channels, mctx.ConfigurationMap(), e.providers, job.TenantID, allowMultiple,
	)
	if selection.Channel == nil {
		reason := selector.UnroutableReason(diagnostics)
		logger.Info().Str("reason", reason).Msg("no routable channel")
		return e.log.Append(ctx, job.TenantID, job.MessageID, model.EventUnroutable, map[string]any{
			"reason":      reason,
			"diagnostics": diagnosticsPayload(diagnostics),
		})
	}

	if err := e.log.Append(ctx, job.TenantID, job.MessageID, model.EventRouted, map[string]any{
		"channel":       selection.Channel.ID,
		"taxonomy":      selection.Channel.Taxonomy,
		"provider":      selection.Configuration.Provider,
		"configuration": selection.Configuration.ID,
		"diagnostics":   diagnosticsPayload(diagnostics),
		"preferences":   prefs,
	}); err != nil {
		return err
	}

	override := channelOverride(mctx.Override, selection.Channel.ID)
	config := mergeConfig(selection.Configuration.JSON, selection.Provider.Config, overrideConfig(override))

	links := tracking.NewBuilder(
		job.TenantID, job.MessageID, selection.Channel.ID,
		recipient(mctx.Profile),
		e.trackingBaseURL, mctx.Tracking, !mock,
	)

	output, err := e.render.Render(render.Request{
		Channel:     *selection.Channel,
		Override:    override,
		Vars:        vars,
		ProviderKey: selection.Configuration.Provider,
		Config:      config,
		Blocks:      mctx.Notification.Blocks,
		Brand:       mctx.Brand,
		Email:       mctx.Notification.Email,
		Links:       links,
	})
	if err != nil {
		return e.appendError(ctx, job, model.ClassifyError(err), false)
	}

	renderedPayload := map[string]any{
		"channel":        selection.Channel.ID,
		"templateString": output.TemplateString,
		"templates":      output.Templates,
		"trackingIds":    links.IDs(),
	}
	if mctx.Brand != nil {
		renderedPayload["brand"] = map[string]any{
			"id":      mctx.Brand.ID,
			"version": mctx.Brand.Version,
		}
	}
	if err := e.log.Append(ctx, job.TenantID, job.MessageID, model.EventRendered, renderedPayload); err != nil {
		return err
	}

	if records := links.Records(); len(records) > 0 {
		if err := e.tracking.Persist(ctx, records); err != nil {
			return fmt.Errorf("persist tracking records: %w", err)
		}
	}

	if err := e.log.Append(ctx, job.TenantID, job.MessageID, model.EventProviderAttempted, map[string]any{
		"provider":      selection.Configuration.Provider,
		"configuration": selection.Configuration.ID,
		"attempt":       job.RetryCount + 1,
	}); err != nil {
		return err
	}

	if mock {
		logger.Info().Str("channel", selection.Channel.ID).Msg("mock mode, delivery simulated")
		return e.log.Append(ctx, job.TenantID, job.MessageID, model.EventSimulated, map[string]any{
			"channel":   selection.Channel.ID,
			"provider":  selection.Configuration.Provider,
			"templates": output.Templates,
		})
	}

	impl, ok := e.providers.Get(selection.Configuration.Provider)
	if !ok {
		// The selector verified support; losing it between then and now
		// means registry misconfiguration.
		return e.appendError(ctx, job, model.NewRouteError(
			model.KindProviderConfiguration,
			fmt.Sprintf("provider %s not registered", selection.Configuration.Provider),
		), false)
	}

	response, err := impl.Send(ctx, providers.SendRequest{
		TenantID:  job.TenantID,
		MessageID: job.MessageID,
		ChannelID: selection.Channel.ID,
		Profile:   mctx.Profile,
		Config:    *selection.Configuration,
		Brand:     mctx.Brand,
		Templates: output.Templates,
		Override:  overrideConfig(override),
	})
	if err != nil {
		return e.handleSendFailure(ctx, job, selection, err)
	}

	logger.Info().Str("channel", selection.Channel.ID).Str("provider", selection.Configuration.Provider).Msg("message delivered")
	return e.log.Append(ctx, job.TenantID, job.MessageID, model.EventSent, map[string]any{
		"channel":  selection.Channel.ID,
		"provider": selection.Configuration.Provider,
		"response": response,
	})
}

func (e *Executor) handleSendFailure(ctx context.Context, job model.RoutingJob, selection selector.Selection, sendErr error) error {
	routeErr := model.ClassifyError(sendErr)
	logger := zlog.Logger.With().
		Str("tenant_id", job.TenantID).
		Str("message_id", job.MessageID).
		Logger()

	if routeErr.Kind == model.KindBlockedAddress {
		logger.Info().Str("channel", selection.Channel.ID).Msg("recipient address undeliverable")
		return e.log.Append(ctx, job.TenantID, job.MessageID, model.EventUndeliverable, map[string]any{
			"reason":  model.ReasonInvalidAddress,
			"channel": selection.Channel.ID,
			"message": routeErr.Message,
		})
	}

	willRetry := Retryable(routeErr.Kind) && BudgetRemaining(job, e.maxRetries, e.now())
	if err := e.appendError(ctx, job, routeErr, willRetry); err != nil {
		return err
	}

	if willRetry {
		logger.Warn().Str("kind", string(routeErr.Kind)).Msg("delivery failed, scheduling retry")
		return e.publisher.Republish(ctx, NextAttempt(job))
	}
	if Retryable(routeErr.Kind) {
		logger.Error().Str("kind", string(routeErr.Kind)).Msg("retry budget exhausted, dead-lettering")
		return e.publisher.DeadLetter(ctx, job, string(routeErr.Kind))
	}
	logger.Error().Str("kind", string(routeErr.Kind)).Msg("delivery failed permanently")
	return nil
}

func (e *Executor) appendError(ctx context.Context, job model.RoutingJob, routeErr *model.RouteError, willRetry bool) error {
	payload := map[string]any{
		"kind":       string(routeErr.Kind),
		"message":    routeErr.Message,
		"willRetry":  willRetry,
		"retryCount": job.RetryCount,
	}
	if routeErr.Payload != nil {
		payload["providerPayload"] = routeErr.Payload
	}
	return e.log.Append(ctx, job.TenantID, job.MessageID, model.EventError, payload)
}

// loadContext resolves the message context from the inline payload or the
// blob store. Transport failures surface as plain errors; malformed
// content comes back as a CONTENT_PARSE route error.
func (e *Executor) loadContext(ctx context.Context, job model.RoutingJob) (*model.MessageContext, error) {
	raw := []byte(job.Payload)
	if len(raw) == 0 {
		if job.MessageLocation == "" {
			return nil, model.NewRouteError(model.KindContentParse, "job carries neither payload nor message location")
		}
		data, err := e.blobs.Get(ctx, job.MessageLocation)
		if err != nil {
			return nil, err
		}
		raw = data
	}

	var mctx model.MessageContext
	if err := json.Unmarshal(raw, &mctx); err != nil {
		return nil, model.WrapRouteError(model.KindContentParse, "decode message context", err)
	}
	return &mctx, nil
}

func channelOverride(override *model.Override, channelID string) *model.ChannelOverride {
	if override == nil {
		return nil
	}
	o, ok := override.Channels[channelID]
	if !ok {
		return nil
	}
	return &o
}

func overrideConfig(override *model.ChannelOverride) map[string]any {
	if override == nil {
		return nil
	}
	return override.Config
}

// mergeConfig layers configuration sources; later maps win key by key.
func mergeConfig(layers ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// recipient picks the identifier tracking records are keyed on.
func recipient(profile map[string]any) string {
	if email, ok := profile["email"].(string); ok && email != "" {
		return email
	}
	if id, ok := profile["user_id"].(string); ok {
		return id
	}
	return ""
}

func diagnosticsPayload(diags []selector.Diagnostic) []map[string]any {
	out := make([]map[string]any, 0, len(diags))
	for _, d := range diags {
		entry := map[string]any{"reason": string(d.Reason), "channel": d.Channel}
		if d.Provider != "" {
			entry["provider"] = d.Provider
		}
		if d.Configuration != "" {
			entry["configuration"] = d.Configuration
		}
		if d.Detail != "" {
			entry["detail"] = d.Detail
		}
		out = append(out, entry)
	}
	return out
}
