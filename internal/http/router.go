package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/NotARoomba/canvas/internal/http/handlers"
	httpMW "github.com/NotARoomba/canvas/internal/http/middleware"
	"github.com/NotARoomba/canvas/internal/observability"
	"github.com/NotARoomba/canvas/internal/platform/logger"
)

const serviceName = "canvas"

type RouterConfig struct {
	Log            *logger.Logger
	AllowedOrigins []string
	// Metrics enables request instrumentation and GET /metrics when set.
	Metrics        *observability.Metrics

	HealthHandler   *httpH.HealthHandler
	LessonHandler   *httpH.LessonHandler
	AssetHandler    *httpH.AssetHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	// Lessons
	if cfg.LessonHandler != nil {
		r.GET("/lessons", cfg.LessonHandler.ListLessons)
		r.POST("/lessons/start", cfg.LessonHandler.StartLesson)
		r.GET("/gallery/:count", cfg.LessonHandler.Gallery)

		lesson := r.Group("/lessons/:id", httpMW.AttachLessonContext())
		lesson.GET("", cfg.LessonHandler.GetLesson)
		lesson.DELETE("", cfg.LessonHandler.DeleteLesson)
		lesson.GET("/run", cfg.LessonHandler.GetLessonRun)
		if cfg.RealtimeHandler != nil {
			lesson.GET("/events", cfg.RealtimeHandler.LessonEvents)
		}
	}

	// Assets
	if cfg.AssetHandler != nil {
		r.GET("/images/:id", cfg.AssetHandler.GetImage)
		r.GET("/tts/:id", cfg.AssetHandler.GetAudio)
	}

	return r
}
