package app

import (
	"fmt"
	"strings"

	"github.com/NotARoomba/canvas/internal/platform/elevenlabs"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/platform/openai"
	"github.com/NotARoomba/canvas/internal/platform/openrouter"
	"github.com/NotARoomba/canvas/internal/platform/ratelimit"
	"github.com/NotARoomba/canvas/internal/platform/wikipedia"
	"github.com/NotARoomba/canvas/internal/realtime/bus"
)

type Clients struct {
	Chat   openrouter.Client
	Images openai.Client
	TTS    elevenlabs.Client
	Wiki   wikipedia.Client
	// Bus is nil unless REDIS_ADDR is set.
	Bus bus.Bus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// one limiter pool: buckets are keyed per model / host
	limits := ratelimit.NewPool()

	// Redis
	var sseBus bus.Bus
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		b, err := bus.NewRedisBus(log, cfg.Redis)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		sseBus = b
	}

	return Clients{
		Chat:   openrouter.NewClient(log, cfg.OpenRouter, limits),
		Images: openai.NewClient(log, cfg.OpenAI),
		TTS:    elevenlabs.NewClient(log, cfg.ElevenLabs),
		Wiki:   wikipedia.NewClient(log, cfg.Wikipedia, limits),
		Bus:    sseBus,
	}, nil
}

func (c Clients) Close() {
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
