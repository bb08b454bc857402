package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NotARoomba/canvas/internal/platform/elevenlabs"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/services"
)

type NarrationDeps struct {
	Log     *logger.Logger
	TTS     elevenlabs.Client
	Assets  services.AssetService
	Timeout time.Duration
}

// Narrate synthesizes the script and stores the audio. A blank script yields
// no audio and no error. A missing TTS credential surfaces as
// elevenlabs.ErrMissingAPIKey so the caller can treat it apart.
func Narrate(ctx context.Context, deps NarrationDeps, script string) (*uuid.UUID, error) {
	if deps.Log == nil || deps.TTS == nil || deps.Assets == nil {
		return nil, fmt.Errorf("narration: missing deps")
	}
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, nil
	}

	callCtx, cancel := withTimeout(ctx, deps.Timeout)
	audio, err := deps.TTS.Synthesize(callCtx, script)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("narration: %w", err)
	}

	storeCtx, storeCancel := withTimeout(ctx, deps.Timeout)
	defer storeCancel()
	asset, err := deps.Assets.StoreAudio(storeCtx, audio)
	if err != nil {
		return nil, fmt.Errorf("narration: store audio: %w", err)
	}
	id := asset.ID
	return &id, nil
}
