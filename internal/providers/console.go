package providers

import (
	"context"

	"github.com/wb-go/wbf/zlog"
)

// ConsoleProvider writes the rendered message to the process log. Always
// eligible; useful for local development and as the plain fallback.
type ConsoleProvider struct{}

func NewConsoleProvider() *ConsoleProvider { return &ConsoleProvider{} }

func (p *ConsoleProvider) Eligible(_ context.Context, _ EligibilityContext) (bool, string, error) {
	return true, "", nil
}

func (p *ConsoleProvider) Send(_ context.Context, req SendRequest) (map[string]any, error) {
	zlog.Logger.Info().
		Str("tenant_id", req.TenantID).
		Str("message_id", req.MessageID).
		Str("channel_id", req.ChannelID).
		Str("body", req.Templates["body"]).
		Msg("console delivery")
	return map[string]any{"delivered": true}, nil
}
