package routing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeworks/router/internal/model"
	"github.com/routeworks/router/internal/providers"
	"github.com/routeworks/router/internal/render"
)

type recordedEvent struct {
	typ     model.EventType
	payload map[string]any
}

type recorderLog struct {
	events []recordedEvent
}

func (r *recorderLog) Append(_ context.Context, _, _ string, typ model.EventType, payload map[string]any) error {
	r.events = append(r.events, recordedEvent{typ: typ, payload: payload})
	return nil
}

func (r *recorderLog) types() []model.EventType {
	out := make([]model.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.typ
	}
	return out
}

type memBlobs map[string][]byte

func (m memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m[key]
	if !ok {
		return nil, errors.New("blob not found: " + key)
	}
	return data, nil
}

type recorderTracking struct {
	persisted []model.TrackingRecord
}

func (r *recorderTracking) Persist(_ context.Context, records []model.TrackingRecord) error {
	r.persisted = append(r.persisted, records...)
	return nil
}

type recorderPublisher struct {
	republished []model.RoutingJob
	deadLetters []model.RoutingJob
	reasons     []string
}

func (r *recorderPublisher) Republish(_ context.Context, job model.RoutingJob) error {
	r.republished = append(r.republished, job)
	return nil
}

func (r *recorderPublisher) DeadLetter(_ context.Context, job model.RoutingJob, reason string) error {
	r.deadLetters = append(r.deadLetters, job)
	r.reasons = append(r.reasons, reason)
	return nil
}

type scriptedProvider struct {
	response map[string]any
	sendErr  error
	sent     []providers.SendRequest
}

func (p *scriptedProvider) Eligible(context.Context, providers.EligibilityContext) (bool, string, error) {
	return true, "", nil
}

func (p *scriptedProvider) Send(_ context.Context, req providers.SendRequest) (map[string]any, error) {
	p.sent = append(p.sent, req)
	if p.sendErr != nil {
		return nil, p.sendErr
	}
	return p.response, nil
}

type fixture struct {
	executor  *Executor
	log       *recorderLog
	tracking  *recorderTracking
	publisher *recorderPublisher
	provider  *scriptedProvider
	blobs     memBlobs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		log:       &recorderLog{},
		tracking:  &recorderTracking{},
		publisher: &recorderPublisher{},
		provider:  &scriptedProvider{response: map[string]any{"accepted": true}},
		blobs:     memBlobs{},
	}
	registry := providers.NewRegistry()
	registry.Register("smtp", f.provider)
	f.executor = NewExecutor(
		f.blobs, f.log, f.tracking, registry, render.NewRegistry(), f.publisher,
		3, "https://trk.test",
	)
	return f
}

func messageContext() model.MessageContext {
	return model.MessageContext{
		Notification: model.Notification{
			ID:   "n1",
			Type: model.TypeOptOut,
			BestOf: []model.Channel{
				{ID: "ch-email", Taxonomy: "email", Providers: []model.ProviderRef{
					{Key: "smtp", ConfigurationID: "cfg1"},
				}},
			},
			Blocks: []model.Block{{ID: "b1", Type: model.BlockText, Content: "Hello {{ name }}"}},
			Email:  &model.EmailContent{Subject: "Greetings"},
		},
		Configurations: []model.Configuration{{ID: "cfg1", Provider: "smtp"}},
		Brand:          &model.Brand{ID: "brand1", Version: "3"},
		Profile:        map[string]any{"email": "user@example.com"},
		Data:           map[string]any{"name": "Ada"},
		Tracking:       model.TrackingSettings{Click: true, Open: true},
	}
}

func jobWith(t *testing.T, mctx model.MessageContext) model.RoutingJob {
	t.Helper()
	payload, err := json.Marshal(mctx)
	require.NoError(t, err)
	return model.RoutingJob{TenantID: "t1", MessageID: "m1", Payload: payload}
}

func TestRouteDelivered(t *testing.T) {
	f := newFixture(t)
	job := jobWith(t, messageContext())

	require.NoError(t, f.executor.Route(context.Background(), job))

	assert.Equal(t, []model.EventType{
		model.EventRouted,
		model.EventRendered,
		model.EventProviderAttempted,
		model.EventSent,
	}, f.log.types())

	require.Len(t, f.provider.sent, 1)
	sent := f.provider.sent[0]
	assert.Equal(t, "Greetings", sent.Templates["subject"])
	assert.Contains(t, sent.Templates["html"], "Hello Ada")

	// Open pixel record persisted before the provider attempt.
	require.NotEmpty(t, f.tracking.persisted)
	assert.Equal(t, "user@example.com", f.tracking.persisted[0].Recipient)

	routedEvent := f.log.events[0]
	assert.Contains(t, routedEvent.payload, "preferences")

	renderedEvent := f.log.events[1]
	assert.Equal(t, sent.Templates, renderedEvent.payload["templates"])
	assert.Equal(t, map[string]any{"id": "brand1", "version": "3"}, renderedEvent.payload["brand"])

	sentEvent := f.log.events[len(f.log.events)-1]
	assert.Equal(t, map[string]any{"accepted": true}, sentEvent.payload["response"])
}

func TestRouteSuppressedByPreferences(t *testing.T) {
	snoozeUntil := time.Now().Add(time.Hour)

	tests := []struct {
		name       string
		preference model.Preference
		notifType  model.NotificationType
		eventType  model.EventType
		reason     string
	}{
		{
			"opted out is undeliverable",
			model.Preference{Status: model.StatusOptedOut},
			model.TypeOptOut,
			model.EventUndeliverable,
			model.ReasonUnsubscribed,
		},
		{
			"missing opt-in is undeliverable",
			model.Preference{},
			model.TypeOptIn,
			model.EventUndeliverable,
			model.ReasonOptInRequired,
		},
		{
			"snooze is filtered",
			model.Preference{Rules: []model.PreferenceRule{{Type: "snooze", Until: &snoozeUntil}}},
			model.TypeOptOut,
			model.EventFiltered,
			model.ReasonFiltered,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			mctx := messageContext()
			mctx.Notification.Type = tt.notifType
			mctx.Preferences = model.Preferences{
				Notifications: map[string]model.Preference{"n1": tt.preference},
			}

			require.NoError(t, f.executor.Route(context.Background(), jobWith(t, mctx)))

			require.Equal(t, []model.EventType{tt.eventType}, f.log.types())
			assert.Equal(t, tt.reason, f.log.events[0].payload["reason"])
			assert.Contains(t, f.log.events[0].payload, "preferences")
			assert.Empty(t, f.provider.sent)
		})
	}
}

func TestRouteUnroutable(t *testing.T) {
	f := newFixture(t)
	mctx := messageContext()
	mctx.Notification.BestOf[0].Disabled = true

	require.NoError(t, f.executor.Route(context.Background(), jobWith(t, mctx)))

	require.Equal(t, []model.EventType{model.EventUnroutable}, f.log.types())
	assert.Equal(t, model.ReasonNoChannels, f.log.events[0].payload["reason"])
	diags := f.log.events[0].payload["diagnostics"].([]map[string]any)
	require.Len(t, diags, 1)
	assert.Equal(t, "CHANNEL_DISABLED", diags[0]["reason"])
}

func TestRouteMockSimulates(t *testing.T) {
	f := newFixture(t)
	job := jobWith(t, messageContext())
	job.Mock = true

	require.NoError(t, f.executor.Route(context.Background(), job))

	assert.Equal(t, []model.EventType{
		model.EventRouted,
		model.EventRendered,
		model.EventProviderAttempted,
		model.EventSimulated,
	}, f.log.types())
	assert.Empty(t, f.provider.sent)
	// Mock runs never mint tracking records.
	assert.Empty(t, f.tracking.persisted)
}

func TestRouteRetryableFailureRepublishes(t *testing.T) {
	f := newFixture(t)
	f.provider.sendErr = model.NewRouteError(model.KindProviderRetryable, "smtp timeout")

	mctx := messageContext()
	payload, err := json.Marshal(mctx)
	require.NoError(t, err)
	f.blobs["messages/m1"] = payload

	job := model.RoutingJob{
		TenantID:        "t1",
		MessageID:       "m1",
		RetryCount:      1,
		TTL:             time.Now().Add(time.Hour).UnixMilli(),
		MessageLocation: "messages/m1",
		Verify:          true,
	}

	require.NoError(t, f.executor.Route(context.Background(), job))

	errEvent := f.log.events[len(f.log.events)-1]
	require.Equal(t, model.EventError, errEvent.typ)
	assert.Equal(t, true, errEvent.payload["willRetry"])
	assert.Equal(t, string(model.KindProviderRetryable), errEvent.payload["kind"])

	// Every field except the counter carries over unchanged.
	require.Len(t, f.publisher.republished, 1)
	want := job
	want.RetryCount = 2
	assert.Equal(t, want, f.publisher.republished[0])
	assert.Empty(t, f.publisher.deadLetters)
}

func TestRouteBudgetExhaustedDeadLetters(t *testing.T) {
	f := newFixture(t)
	f.provider.sendErr = model.NewRouteError(model.KindProviderRetryable, "smtp timeout")

	job := jobWith(t, messageContext())
	job.RetryCount = 3 // equals maxRetries

	require.NoError(t, f.executor.Route(context.Background(), job))

	errEvent := f.log.events[len(f.log.events)-1]
	require.Equal(t, model.EventError, errEvent.typ)
	assert.Equal(t, false, errEvent.payload["willRetry"])

	assert.Empty(t, f.publisher.republished)
	require.Len(t, f.publisher.deadLetters, 1)
	assert.Equal(t, string(model.KindProviderRetryable), f.publisher.reasons[0])
}

func TestRouteExpiredTTLDeadLetters(t *testing.T) {
	f := newFixture(t)
	f.provider.sendErr = model.NewRouteError(model.KindProviderRetryable, "smtp timeout")

	job := jobWith(t, messageContext())
	job.TTL = time.Now().Add(-time.Minute).UnixMilli()

	require.NoError(t, f.executor.Route(context.Background(), job))

	assert.Empty(t, f.publisher.republished)
	assert.Len(t, f.publisher.deadLetters, 1)
}

func TestRouteNonRetryableFailureIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.provider.sendErr = model.NewRouteError(model.KindProviderResponse, "rejected by upstream")

	require.NoError(t, f.executor.Route(context.Background(), jobWith(t, messageContext())))

	errEvent := f.log.events[len(f.log.events)-1]
	require.Equal(t, model.EventError, errEvent.typ)
	assert.Equal(t, false, errEvent.payload["willRetry"])
	assert.Empty(t, f.publisher.republished)
	assert.Empty(t, f.publisher.deadLetters)
}

func TestRouteBlockedAddressUndeliverable(t *testing.T) {
	f := newFixture(t)
	f.provider.sendErr = model.NewRouteError(model.KindBlockedAddress, "domain example.org is blocked")

	require.NoError(t, f.executor.Route(context.Background(), jobWith(t, messageContext())))

	last := f.log.events[len(f.log.events)-1]
	require.Equal(t, model.EventUndeliverable, last.typ)
	assert.Equal(t, model.ReasonInvalidAddress, last.payload["reason"])
	assert.Empty(t, f.publisher.republished)
	assert.Empty(t, f.publisher.deadLetters)
}

func TestRouteMalformedContextIsTerminal(t *testing.T) {
	f := newFixture(t)
	job := model.RoutingJob{TenantID: "t1", MessageID: "m1", Payload: []byte("{not json")}

	require.NoError(t, f.executor.Route(context.Background(), job))

	require.Equal(t, []model.EventType{model.EventError}, f.log.types())
	assert.Equal(t, string(model.KindContentParse), f.log.events[0].payload["kind"])
}

func TestRouteBlobFailureIsInfrastructure(t *testing.T) {
	f := newFixture(t)
	job := model.RoutingJob{TenantID: "t1", MessageID: "m1", MessageLocation: "missing"}

	err := f.executor.Route(context.Background(), job)
	require.Error(t, err)
	// Infra errors never produce events; the worker nacks and redelivers.
	assert.Empty(t, f.log.events)
}

func TestRouteAlwaysChannelsScanFirst(t *testing.T) {
	f := newFixture(t)
	mctx := messageContext()
	mctx.Notification.Always = []model.Channel{
		{ID: "ch-audit", Taxonomy: "webhook", Providers: []model.ProviderRef{
			{Key: "smtp", ConfigurationID: "cfg1"},
		}},
	}

	require.NoError(t, f.executor.Route(context.Background(), jobWith(t, mctx)))

	routed := f.log.events[0]
	require.Equal(t, model.EventRouted, routed.typ)
	assert.Equal(t, "ch-audit", routed.payload["channel"])
	// With always channels present the scan continues for diagnostics,
	// so the bestOf channel also shows up in the trail.
	diags := routed.payload["diagnostics"].([]map[string]any)
	assert.Len(t, diags, 2)
}
