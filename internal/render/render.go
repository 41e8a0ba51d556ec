// Package render turns the selected channel's content blocks into the
// provider-specific payload: it classifies the channel family, merges
// overrides and brand settings, substitutes variables and rewires
// outbound links through click tracking.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/routeworks/router/internal/conditional"
	"github.com/routeworks/router/internal/model"
	"github.com/routeworks/router/internal/tracking"
)

// Family is the render-strategy variant selected from the channel
// taxonomy. Plain is the fallback for unknown taxonomies.
type Family string

const (
	FamilyEmail   Family = "email"
	FamilyChat    Family = "chat"
	FamilyPush    Family = "push"
	FamilyWebhook Family = "webhook"
	FamilyInApp   Family = "inapp"
	FamilyPlain   Family = "plain"
)

// FamilyOf classifies a colon-delimited taxonomy path.
func FamilyOf(taxonomy string) Family {
	switch {
	case taxonomy == "email" || strings.HasPrefix(taxonomy, "email:"):
		return FamilyEmail
	case strings.Contains(taxonomy, "webhook"):
		return FamilyWebhook
	case taxonomy == "push" || strings.HasPrefix(taxonomy, "push:"):
		return FamilyPush
	case taxonomy == "inbox" || strings.HasPrefix(taxonomy, "inbox:"):
		return FamilyInApp
	case strings.HasPrefix(taxonomy, "direct_message:") || strings.HasPrefix(taxonomy, "chat"):
		return FamilyChat
	default:
		return FamilyPlain
	}
}

// Request carries everything one render pass needs.
type Request struct {
	Channel     model.Channel
	Override    *model.ChannelOverride
	Vars        *conditional.Context
	ProviderKey string
	Config      map[string]any
	Blocks      []model.Block
	Brand       *model.Brand
	Email       *model.EmailContent
	Links       *tracking.Builder
}

// Output is the rendered artifact set. TemplateString is the raw joined
// template before substitution, persisted on the RENDERED event for
// reproducibility.
type Output struct {
	TemplateString string
	Templates      map[string]string
}

// Handler is one per-family rendering strategy.
type Handler interface {
	Render(req Request, blocks []model.Block, sub func(string) string) (map[string]string, error)
}

// Registry maps channel families to strategies. Built once at process
// start and injected into the executor.
type Registry struct {
	byFamily map[Family]Handler
}

// NewRegistry builds the default strategy set.
func NewRegistry() *Registry {
	return &Registry{byFamily: map[Family]Handler{
		FamilyEmail:   emailHandler{},
		FamilyChat:    chatHandler{},
		FamilyPush:    pushHandler{},
		FamilyWebhook: webhookHandler{},
		FamilyInApp:   inAppHandler{},
		FamilyPlain:   plainHandler{},
	}}
}

// Render runs the full pipeline for one selected (channel, provider).
func (r *Registry) Render(req Request) (Output, error) {
	blocks := mergeBlocks(req.Blocks, req.Override)
	sub := substituter(req.Vars)

	family := FamilyOf(req.Channel.Taxonomy)
	handler, ok := r.byFamily[family]
	if !ok {
		handler = plainHandler{}
	}

	templates, err := handler.Render(req, blocks, sub)
	if err != nil {
		return Output{}, err
	}

	if family == FamilyEmail && req.Email != nil && req.Email.PayloadOverride != "" {
		templates["payload"] = applyPayloadOverride(req.Email.PayloadOverride, templates)
	}

	return Output{TemplateString: templateString(blocks), Templates: templates}, nil
}

// mergeBlocks applies explicit per-block content overrides by block id
// before rendering.
func mergeBlocks(blocks []model.Block, override *model.ChannelOverride) []model.Block {
	if override == nil || len(override.Blocks) == 0 {
		return blocks
	}
	byID := make(map[string]model.Block, len(override.Blocks))
	for _, b := range override.Blocks {
		byID[b.ID] = b
	}
	merged := make([]model.Block, len(blocks))
	copy(merged, blocks)
	for i, b := range merged {
		o, ok := byID[b.ID]
		if !ok {
			continue
		}
		if o.Content != "" {
			merged[i].Content = o.Content
		}
		if o.URL != "" {
			merged[i].URL = o.URL
		}
	}
	return merged
}

var variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// substituter resolves {{path}} references against the variable context.
// Unresolvable references substitute to the empty string.
func substituter(vars *conditional.Context) func(string) string {
	return func(s string) string {
		return variablePattern.ReplaceAllStringFunc(s, func(match string) string {
			path := variablePattern.FindStringSubmatch(match)[1]
			value, ok := vars.Resolve(path)
			if !ok || value == nil {
				return ""
			}
			return fmt.Sprintf("%v", value)
		})
	}
}

var hrefPattern = regexp.MustCompile(`href="([^"]+)"`)

// rewireLinks routes every outbound href through the click-tracking
// redirect.
func rewireLinks(s string, links *tracking.Builder) string {
	return hrefPattern.ReplaceAllStringFunc(s, func(match string) string {
		href := hrefPattern.FindStringSubmatch(match)[1]
		return `href="` + links.Link(href) + `"`
	})
}

// applyPayloadOverride rewrites the rendered payload according to the
// configured override template; {{subject}}, {{html}} and {{text}} refer
// to the already-rendered representations.
func applyPayloadOverride(tmpl string, templates map[string]string) string {
	return variablePattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := variablePattern.FindStringSubmatch(match)[1]
		return templates[name]
	})
}

func templateString(blocks []model.Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.Content)
	}
	return strings.Join(parts, "\n\n")
}
