package app

import (
	"gorm.io/gorm"

	httpx "github.com/NotARoomba/canvas/internal/http"
	httpH "github.com/NotARoomba/canvas/internal/http/handlers"
	"github.com/NotARoomba/canvas/internal/observability"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Lesson   *httpH.LessonHandler
	Asset    *httpH.AssetHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, svcs Services, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(db),
		Lesson:   httpH.NewLessonHandler(svcs.Lessons),
		Asset:    httpH.NewAssetHandler(log, svcs.Assets),
		Realtime: httpH.NewRealtimeHandler(log, hub, svcs.Lessons),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *httpx.Server {
	return httpx.NewServer(cfg.Addr(), httpx.RouterConfig{
		Log:             log.With("component", "HTTP"),
		AllowedOrigins:  cfg.AllowedOrigins,
		Metrics:         metrics,
		HealthHandler:   handlers.Health,
		LessonHandler:   handlers.Lesson,
		AssetHandler:    handlers.Asset,
		RealtimeHandler: handlers.Realtime,
	})
}
