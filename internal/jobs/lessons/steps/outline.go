package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	types "github.com/NotARoomba/canvas/internal/domain"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/platform/openrouter"
)

type OutlineDeps struct {
	Log     *logger.Logger
	Chat    openrouter.Client
	Model   string
	Timeout time.Duration
}

type OutlineInput struct {
	Topic      string
	Difficulty types.Difficulty
}

type OutlineOutput struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Outline     []types.OutlineStep `json:"outline"`
}

type outlineResponse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Outline     []struct {
		Title     string `json:"title"`
		MediaType string `json:"media_type"`
		Prompt    string `json:"prompt"`
		Speech    string `json:"speech"`
	} `json:"outline"`
}

// GenerateOutline asks the chat model for the lesson skeleton. Any response
// that decodes but is unusable (no steps, unknown media type, blank prompt)
// is reported as *openrouter.ErrInvalidResponse.
func GenerateOutline(ctx context.Context, deps OutlineDeps, in OutlineInput) (OutlineOutput, error) {
	out := OutlineOutput{}
	if deps.Log == nil || deps.Chat == nil {
		return out, fmt.Errorf("outline: missing deps")
	}
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		return out, fmt.Errorf("outline: missing topic")
	}

	callCtx, cancel := withTimeout(ctx, deps.Timeout)
	defer cancel()

	var resp outlineResponse
	err := deps.Chat.CompleteJSON(callCtx, openrouter.Request{
		Model:  deps.Model,
		Prompt: fmt.Sprintf(outlinePrompt, topic, in.Difficulty.String()),
		Schema: outlineSchema,
	}, &resp)
	if err != nil {
		return out, fmt.Errorf("outline: %w", err)
	}

	if len(resp.Outline) == 0 {
		return out, &openrouter.ErrInvalidResponse{Err: errors.New("outline has no steps")}
	}
	outline := make([]types.OutlineStep, 0, len(resp.Outline))
	for i, entry := range resp.Outline {
		kind, ok := types.ParseMediaKind(entry.MediaType)
		if !ok {
			return out, &openrouter.ErrInvalidResponse{Err: fmt.Errorf("outline step %d: unknown media_type %q", i, entry.MediaType)}
		}
		title := strings.TrimSpace(entry.Title)
		instruction := strings.TrimSpace(entry.Prompt)
		if title == "" || instruction == "" {
			return out, &openrouter.ErrInvalidResponse{Err: fmt.Errorf("outline step %d: blank title or prompt", i)}
		}
		outline = append(outline, types.OutlineStep{
			Title:           title,
			MediaKind:       kind,
			Instruction:     instruction,
			NarrationScript: strings.TrimSpace(entry.Speech),
		})
	}

	out.Title = strings.TrimSpace(resp.Title)
	out.Description = strings.TrimSpace(resp.Description)
	out.Outline = outline
	deps.Log.Debug("Outline generated", "title", out.Title, "steps", len(outline))
	return out, nil
}
