package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/routeworks/router/internal/model"
)

type emailHandler struct{}

func (emailHandler) Render(req Request, blocks []model.Block, sub func(string) string) (map[string]string, error) {
	subject := ""
	if req.Email != nil {
		subject = req.Email.Subject
	}
	if s, ok := req.Config["subject"].(string); ok && s != "" {
		subject = s
	}
	if subject == "" && len(blocks) == 0 {
		return nil, model.NewRouteError(model.KindTemplateEvaluation, "email has no subject and no content blocks")
	}

	header, footer := brandSections(req.Brand, req.Config)

	var html strings.Builder
	if header != "" {
		html.WriteString(`<div class="header">` + sub(header) + "</div>")
	}
	var text []string
	for _, b := range blocks {
		content := sub(b.Content)
		switch b.Type {
		case model.BlockAction:
			href := b.URL
			if href != "" {
				href = req.Links.Link(sub(href))
			}
			html.WriteString(fmt.Sprintf(`<p><a href="%s">%s</a></p>`, href, content))
			text = append(text, content+": "+href)
		case model.BlockQuote:
			html.WriteString("<blockquote>" + content + "</blockquote>")
			text = append(text, "> "+content)
		default:
			html.WriteString("<p>" + rewireLinks(content, req.Links) + "</p>")
			text = append(text, content)
		}
	}
	if footer != "" {
		html.WriteString(`<div class="footer">` + sub(footer) + "</div>")
	}
	if unsub := req.Links.UnsubscribeLink(); unsub != "" {
		html.WriteString(fmt.Sprintf(`<p><a href="%s">Unsubscribe</a></p>`, unsub))
	}
	if pixel := req.Links.OpenPixel(); pixel != "" {
		html.WriteString(fmt.Sprintf(`<img src="%s" width="1" height="1" alt=""/>`, pixel))
	}

	return map[string]string{
		"subject": sub(subject),
		"html":    html.String(),
		"text":    strings.Join(text, "\n"),
	}, nil
}

// brandSections resolves the email header/footer: the brand snippet wins;
// with InheritDefault set and no content, the channel's configured
// default applies.
func brandSections(brand *model.Brand, cfg map[string]any) (string, string) {
	defaultHeader, _ := cfg["header"].(string)
	defaultFooter, _ := cfg["footer"].(string)
	header, footer := defaultHeader, defaultFooter
	if brand == nil || brand.Email == nil {
		return header, footer
	}
	if s := brand.Email.Header; s != nil {
		if s.Content != "" {
			header = s.Content
		} else if !s.InheritDefault {
			header = ""
		}
	}
	if s := brand.Email.Footer; s != nil {
		if s.Content != "" {
			footer = s.Content
		} else if !s.InheritDefault {
			footer = ""
		}
	}
	return header, footer
}

type chatHandler struct{}

func (chatHandler) Render(req Request, blocks []model.Block, sub func(string) string) (map[string]string, error) {
	var lines []string
	for _, b := range blocks {
		content := sub(b.Content)
		if b.Type == model.BlockAction && b.URL != "" {
			lines = append(lines, content+": "+req.Links.Link(sub(b.URL)))
			continue
		}
		lines = append(lines, content)
	}
	return map[string]string{"body": strings.Join(lines, "\n")}, nil
}

type pushHandler struct{}

func (pushHandler) Render(req Request, blocks []model.Block, sub func(string) string) (map[string]string, error) {
	title := ""
	if req.Email != nil {
		title = sub(req.Email.Subject)
	}
	if t, ok := req.Config["title"].(string); ok && t != "" {
		title = sub(t)
	}
	var lines []string
	for _, b := range blocks {
		lines = append(lines, sub(b.Content))
	}
	body := strings.Join(lines, "\n")
	if title == "" && len(lines) > 0 {
		title = lines[0]
	}
	return map[string]string{"title": title, "body": body}, nil
}

type webhookHandler struct{}

func (webhookHandler) Render(req Request, blocks []model.Block, sub func(string) string) (map[string]string, error) {
	rendered := make([]map[string]any, 0, len(blocks))
	var lines []string
	for _, b := range blocks {
		content := sub(b.Content)
		entry := map[string]any{"type": string(b.Type), "content": content}
		if b.URL != "" {
			entry["url"] = req.Links.Link(sub(b.URL))
		}
		rendered = append(rendered, entry)
		lines = append(lines, content)
	}
	payload, err := json.Marshal(map[string]any{"blocks": rendered})
	if err != nil {
		return nil, model.WrapRouteError(model.KindTemplateEvaluation, "marshal webhook blocks", err)
	}
	return map[string]string{
		"payload": string(payload),
		"body":    strings.Join(lines, "\n"),
	}, nil
}

type inAppHandler struct{}

func (inAppHandler) Render(req Request, blocks []model.Block, sub func(string) string) (map[string]string, error) {
	title := ""
	if req.Email != nil {
		title = sub(req.Email.Subject)
	}
	var lines []string
	for _, b := range blocks {
		content := sub(b.Content)
		if b.Type == model.BlockAction && b.URL != "" {
			content += ": " + req.Links.Link(sub(b.URL))
		}
		lines = append(lines, content)
	}
	if record := req.Links.ChannelRecord(); record != "" {
		// The in-app inbox resolves read state through the channel
		// tracking record.
		return map[string]string{"title": title, "body": strings.Join(lines, "\n"), "trackingUrl": record}, nil
	}
	return map[string]string{"title": title, "body": strings.Join(lines, "\n")}, nil
}

type plainHandler struct{}

func (plainHandler) Render(_ Request, blocks []model.Block, sub func(string) string) (map[string]string, error) {
	var lines []string
	for _, b := range blocks {
		lines = append(lines, sub(b.Content))
	}
	return map[string]string{"body": strings.Join(lines, "\n")}, nil
}
