package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/routeworks/router/internal/model"
)

// TokenSource looks up a cached device token for a recipient. Backed by
// Redis in production; fakes implement it directly in tests.
type TokenSource interface {
	Token(ctx context.Context, tenantID, recipient string) (string, error)
}

// PushProvider delivers push notifications through the tenant's push
// gateway. Eligibility requires a device token, either inline on the
// profile or resolvable through the token cache.
type PushProvider struct {
	tokens TokenSource
	client *http.Client
}

func NewPushProvider(tokens TokenSource, timeout time.Duration) *PushProvider {
	return &PushProvider{tokens: tokens, client: &http.Client{Timeout: timeout}}
}

func (p *PushProvider) Eligible(ctx context.Context, ec EligibilityContext) (bool, string, error) {
	token, err := p.resolveToken(ctx, ec.TenantID, ec.Profile)
	if err != nil {
		return false, "", fmt.Errorf("push token lookup: %w", err)
	}
	if token == "" {
		return false, "", nil
	}
	return true, "", nil
}

func (p *PushProvider) Send(ctx context.Context, req SendRequest) (map[string]any, error) {
	token, err := p.resolveToken(ctx, req.TenantID, req.Profile)
	if err != nil {
		return nil, model.WrapRouteError(model.KindInternal, "push token lookup", err)
	}
	if token == "" {
		return nil, model.NewRouteError(model.KindProviderResponse, "recipient has no device token")
	}

	gateway, _ := req.Config.JSON["gatewayUrl"].(string)
	if gateway == "" {
		return nil, model.NewRouteError(model.KindProviderConfiguration, "push configuration is missing gatewayUrl")
	}

	payload, err := json.Marshal(map[string]any{
		"token": token,
		"title": req.Templates["title"],
		"body":  req.Templates["body"],
	})
	if err != nil {
		return nil, model.WrapRouteError(model.KindContentParse, "marshal push payload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gateway, bytes.NewBuffer(payload))
	if err != nil {
		return nil, model.WrapRouteError(model.KindProviderConfiguration, "build push request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key, ok := req.Config.JSON["apiKey"].(string); ok && key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, model.WrapRouteError(model.KindProviderRetryable, "push gateway call failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	response := map[string]any{"statusCode": resp.StatusCode, "body": string(respBody)}
	if resp.StatusCode >= 300 {
		kind := model.KindProviderResponse
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			kind = model.KindProviderRetryable
		}
		return nil, &model.RouteError{
			Kind:    kind,
			Message: fmt.Sprintf("push gateway responded %d", resp.StatusCode),
			Payload: response,
		}
	}
	return response, nil
}

func (p *PushProvider) resolveToken(ctx context.Context, tenantID string, profile map[string]any) (string, error) {
	if token, ok := profile["push_token"].(string); ok && token != "" {
		return token, nil
	}
	recipient, _ := profile["user_id"].(string)
	if recipient == "" || p.tokens == nil {
		return "", nil
	}
	return p.tokens.Token(ctx, tenantID, recipient)
}
