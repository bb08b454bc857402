package steps

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	types "github.com/NotARoomba/canvas/internal/domain"
	"github.com/NotARoomba/canvas/internal/platform/httpx"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/platform/openrouter"
	"github.com/NotARoomba/canvas/internal/platform/wikipedia"
)

type ReferenceDeps struct {
	Log     *logger.Logger
	Chat    openrouter.Client
	Wiki    wikipedia.Client
	Model   string
	Timeout time.Duration
}

type ReferenceInput struct {
	MediaKind       types.MediaKind
	Explanation     string
	EncyclopediaURL string
	// ImageSourceURL is the provenance of an externally hosted image.
	ImageSourceURL string
}

type referencesResponse struct {
	References []string `json:"references"`
}

// GatherReferences returns the supporting links for one step. The slice is
// never nil; on error it is empty and the caller decides whether to degrade.
func GatherReferences(ctx context.Context, deps ReferenceDeps, in ReferenceInput) ([]string, error) {
	refs := []string{}
	if in.MediaKind == types.MediaKindImage {
		if src := strings.TrimSpace(in.ImageSourceURL); httpx.IsAbsoluteHTTPURL(src) {
			refs = append(refs, src)
		}
		return refs, nil
	}

	if strings.TrimSpace(in.EncyclopediaURL) == "" {
		return refs, nil
	}
	if deps.Log == nil || deps.Chat == nil || deps.Wiki == nil {
		return refs, fmt.Errorf("references: missing deps")
	}
	title := wikipedia.TitleFromURL(in.EncyclopediaURL)
	if title == "" {
		return refs, fmt.Errorf("references: no page title in %q", in.EncyclopediaURL)
	}

	srcCtx, srcCancel := withTimeout(ctx, deps.Timeout)
	source, err := deps.Wiki.PageSource(srcCtx, title)
	srcCancel()
	if err != nil {
		return refs, fmt.Errorf("references: page source: %w", err)
	}
	source = truncateRunes(source, MaxSourceRunes)

	callCtx, cancel := withTimeout(ctx, deps.Timeout)
	defer cancel()
	var resp referencesResponse
	err = deps.Chat.CompleteJSON(callCtx, openrouter.Request{
		Model:  deps.Model,
		Prompt: fmt.Sprintf(referencesPrompt, in.Explanation, source),
		Schema: referencesSchema,
	}, &resp)
	if err != nil {
		return refs, fmt.Errorf("references: %w", err)
	}
	return FilterReferences(resp.References), nil
}

// FilterReferences keeps absolute http(s) links that are not encyclopedia
// pages, drops duplicates and caps the result at MaxReferences.
func FilterReferences(in []string) []string {
	out := make([]string, 0, MaxReferences)
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		u := strings.TrimSpace(raw)
		if !httpx.IsAbsoluteHTTPURL(u) || isEncyclopediaURL(u) {
			continue
		}
		key := strings.TrimRight(strings.ToLower(u), "/")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
		if len(out) == MaxReferences {
			break
		}
	}
	return out
}

func isEncyclopediaURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "wikipedia.org" || strings.HasSuffix(host, ".wikipedia.org")
}
