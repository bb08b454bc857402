package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NotARoomba/canvas/internal/platform/httpx"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/platform/openrouter"
	"github.com/NotARoomba/canvas/internal/platform/wikipedia"
)

var ErrNoRelevantImage = errors.New("no relevant encyclopedia image")

type EncyclopediaDeps struct {
	Log     *logger.Logger
	Chat    openrouter.Client
	Wiki    wikipedia.Client
	Model   string
	Timeout time.Duration
}

type EncyclopediaOutput struct {
	URL        string   `json:"url"`
	ImageNames []string `json:"image_names"`
}

type encyclopediaResponse struct {
	URL string `json:"wikipedia_url"`
}

// ResolveEncyclopedia picks the encyclopedia page for the topic. The image
// listing is best-effort: a failure there still returns the URL.
func ResolveEncyclopedia(ctx context.Context, deps EncyclopediaDeps, topic string) (EncyclopediaOutput, error) {
	out := EncyclopediaOutput{ImageNames: []string{}}
	if deps.Log == nil || deps.Chat == nil {
		return out, fmt.Errorf("encyclopedia: missing deps")
	}

	callCtx, cancel := withTimeout(ctx, deps.Timeout)
	var resp encyclopediaResponse
	err := deps.Chat.CompleteJSON(callCtx, openrouter.Request{
		Model:  deps.Model,
		Prompt: fmt.Sprintf(encyclopediaPrompt, strings.TrimSpace(topic)),
		Schema: encyclopediaSchema,
	}, &resp)
	cancel()
	if err != nil {
		return out, fmt.Errorf("encyclopedia: %w", err)
	}
	pageURL := strings.TrimSpace(resp.URL)
	if !httpx.IsAbsoluteHTTPURL(pageURL) {
		return out, &openrouter.ErrInvalidResponse{Err: fmt.Errorf("wikipedia_url %q is not an absolute http(s) url", pageURL)}
	}
	out.URL = pageURL

	if deps.Wiki == nil {
		return out, nil
	}
	title := wikipedia.TitleFromURL(pageURL)
	if title == "" {
		return out, nil
	}
	imgCtx, imgCancel := withTimeout(ctx, deps.Timeout)
	defer imgCancel()
	names, err := deps.Wiki.PageImages(imgCtx, title)
	if err != nil {
		deps.Log.Warn("Encyclopedia image listing failed", "page", title, "error", err)
		return out, nil
	}
	out.ImageNames = names
	return out, nil
}

// IsRelevantImage matches an image file name against a step title: the name
// is split on '_' and '-' and matches when any part contains a title word.
func IsRelevantImage(name, title string) bool {
	words := strings.Fields(strings.ToLower(title))
	if len(words) == 0 {
		return false
	}
	parts := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '_' || r == '-'
	})
	for _, part := range parts {
		for _, w := range words {
			if strings.Contains(part, w) {
				return true
			}
		}
	}
	return false
}

// FindEncyclopediaImage resolves the first image name relevant to title into
// a URL. Names whose URL lookup fails are passed over.
func FindEncyclopediaImage(ctx context.Context, deps EncyclopediaDeps, names []string, title string) (string, error) {
	if deps.Wiki == nil {
		return "", ErrNoRelevantImage
	}
	for _, name := range names {
		if !IsRelevantImage(name, title) {
			continue
		}
		callCtx, cancel := withTimeout(ctx, deps.Timeout)
		u, err := deps.Wiki.ImageURL(callCtx, name)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			deps.Log.Debug("Encyclopedia image url lookup failed", "image", name, "error", err)
			continue
		}
		if httpx.IsAbsoluteHTTPURL(u) {
			return u, nil
		}
	}
	return "", ErrNoRelevantImage
}
