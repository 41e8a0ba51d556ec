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

// WebhookProvider posts the rendered payload as JSON to the recipient's
// webhook endpoint. The URL comes from the profile's webhook block or,
// failing that, from the tenant configuration.
type WebhookProvider struct {
	client *http.Client
}

func NewWebhookProvider(timeout time.Duration) *WebhookProvider {
	return &WebhookProvider{client: &http.Client{Timeout: timeout}}
}

func (p *WebhookProvider) Eligible(_ context.Context, ec EligibilityContext) (bool, string, error) {
	if webhookURL(ec.Profile, ec.Config) == "" {
		return false, "", nil
	}
	return true, "", nil
}

func (p *WebhookProvider) Send(ctx context.Context, req SendRequest) (map[string]any, error) {
	url := webhookURL(req.Profile, req.Config)
	if url == "" {
		return nil, model.NewRouteError(model.KindProviderConfiguration, "no webhook url configured")
	}

	body := req.Templates["payload"]
	if body == "" {
		encoded, err := json.Marshal(map[string]any{
			"tenantId":  req.TenantID,
			"messageId": req.MessageID,
			"body":      req.Templates["body"],
		})
		if err != nil {
			return nil, model.WrapRouteError(model.KindContentParse, "marshal webhook payload", err)
		}
		body = string(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		return nil, model.WrapRouteError(model.KindProviderConfiguration, "build webhook request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, model.WrapRouteError(model.KindProviderRetryable, "webhook call failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	response := map[string]any{
		"statusCode": resp.StatusCode,
		"body":       string(respBody),
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return response, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &model.RouteError{
			Kind:    model.KindProviderRetryable,
			Message: fmt.Sprintf("webhook responded %d", resp.StatusCode),
			Payload: response,
		}
	default:
		return nil, &model.RouteError{
			Kind:    model.KindProviderResponse,
			Message: fmt.Sprintf("webhook responded %d", resp.StatusCode),
			Payload: response,
		}
	}
}

func webhookURL(profile map[string]any, cfg model.Configuration) string {
	if block, ok := profile["webhook"].(map[string]any); ok {
		if url, ok := block["url"].(string); ok && url != "" {
			return url
		}
	}
	if url, ok := cfg.JSON["url"].(string); ok {
		return url
	}
	return ""
}
