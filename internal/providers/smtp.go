package providers

import (
	"context"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/routeworks/router/internal/model"
)

// SMTPProvider delivers email through a configured SMTP relay. The host,
// port, credentials and sender address come from the tenant configuration
// JSON; blockedDomains lists destination domains that must never be sent
// to.
type SMTPProvider struct{}

func NewSMTPProvider() *SMTPProvider { return &SMTPProvider{} }

func (p *SMTPProvider) Eligible(_ context.Context, ec EligibilityContext) (bool, string, error) {
	addr, _ := ec.Profile["email"].(string)
	if addr == "" {
		return false, "", nil
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return false, fmt.Sprintf("profile email address %q is not valid", addr), nil
	}
	return true, "", nil
}

func (p *SMTPProvider) Send(_ context.Context, req SendRequest) (map[string]any, error) {
	to, _ := req.Profile["email"].(string)
	if to == "" {
		return nil, model.NewRouteError(model.KindProviderResponse, "recipient has no email address")
	}

	host, _ := req.Config.JSON["host"].(string)
	port, _ := req.Config.JSON["port"].(string)
	username, _ := req.Config.JSON["username"].(string)
	password, _ := req.Config.JSON["password"].(string)
	from, _ := req.Config.JSON["from"].(string)
	if from == "" {
		from = username
	}
	if host == "" || from == "" {
		return nil, model.NewRouteError(model.KindProviderConfiguration, "smtp configuration is missing host or sender")
	}
	if port == "" {
		port = "587"
	}

	if domain := addressDomain(to); blockedDomain(req.Config.JSON, domain) {
		return nil, model.NewRouteError(model.KindBlockedAddress, fmt.Sprintf("destination domain %q is blocked", domain))
	}

	subject := req.Templates["subject"]
	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
	}
	body := req.Templates["text"]
	if html := req.Templates["payload"]; html != "" {
		headers = append(headers, "Content-Type: text/html; charset=UTF-8")
		body = html
	} else if html := req.Templates["html"]; html != "" {
		headers = append(headers, "Content-Type: text/html; charset=UTF-8")
		body = html
	} else {
		headers = append(headers, "Content-Type: text/plain; charset=UTF-8")
	}
	data := strings.Join(headers, "\r\n") + "\r\n\r\n" + body

	var auth smtp.Auth
	if username != "" || password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	if err := smtp.SendMail(host+":"+port, auth, from, []string{to}, []byte(data)); err != nil {
		return nil, model.WrapRouteError(model.KindProviderRetryable, "smtp send failed", err)
	}

	return map[string]any{"accepted": []string{to}, "subject": subject}, nil
}

func addressDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return strings.ToLower(addr[i+1:])
	}
	return ""
}

func blockedDomain(cfg map[string]any, domain string) bool {
	raw, ok := cfg["blockedDomains"]
	if !ok || domain == "" {
		return false
	}
	list, ok := raw.([]any)
	if !ok {
		return false
	}
	for _, v := range list {
		if s, ok := v.(string); ok && strings.EqualFold(s, domain) {
			return true
		}
	}
	return false
}
