package app

import (
	"strings"
	"time"

	"github.com/NotARoomba/canvas/internal/jobs/pipeline/lesson_generate"
	"github.com/NotARoomba/canvas/internal/jobs/worker"
	"github.com/NotARoomba/canvas/internal/platform/elevenlabs"
	"github.com/NotARoomba/canvas/internal/platform/envutil"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/platform/openai"
	"github.com/NotARoomba/canvas/internal/platform/openrouter"
	"github.com/NotARoomba/canvas/internal/platform/wikipedia"
	"github.com/NotARoomba/canvas/internal/realtime/bus"
	"github.com/NotARoomba/canvas/internal/services"
)

const (
	DefaultOutlineModel     = "google/gemini-2.0-flash-lite-001"
	DefaultExplanationModel = "google/gemini-2.5-flash-preview"
	DefaultReferenceModel   = "google/gemini-2.0-flash-lite-001"
)

// Config is read once at startup and passed by value.
type Config struct {
	Port        string
	Environment string
	Version     string

	OpenRouter openrouter.Config
	OpenAI     openai.Config
	ElevenLabs elevenlabs.Config
	Wikipedia  wikipedia.Config
	Redis      bus.RedisConfig

	// AssetStorage is "db" or "gcs"; gcs reads its bucket settings from
	// OBJECT_STORAGE_MODE, STORAGE_EMULATOR_HOST and ASSET_GCS_BUCKET_NAME.
	AssetStorage string

	Worker     worker.Config
	Pipeline   lesson_generate.Options
	PolicyFile string

	AllowedOrigins []string

	MetricsEnabled        bool
	MetricsScrapeInterval time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:        envutil.String("PORT", "3000"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),

		OpenRouter: openrouter.ConfigFromEnv(),
		OpenAI:     openai.ConfigFromEnv(),
		ElevenLabs: elevenlabs.ConfigFromEnv(),
		Wikipedia:  wikipedia.ConfigFromEnv(),
		Redis:      bus.RedisConfigFromEnv(),

		AssetStorage: strings.ToLower(envutil.String("ASSET_STORAGE", services.AssetStorageDB)),

		Worker: worker.Config{
			Concurrency: envutil.Int("WORKER_CONCURRENCY", 4),
			QueueSize:   envutil.Int("WORKER_QUEUE_SIZE", 64),
		},
		Pipeline: lesson_generate.Options{
			OutlineModel:       envutil.String("OUTLINE_MODEL", DefaultOutlineModel),
			ExplanationModel:   envutil.String("EXPLANATION_MODEL", DefaultExplanationModel),
			ReferenceModel:     envutil.String("REFERENCE_MODEL", DefaultReferenceModel),
			StepTimeout:        envutil.Seconds("STEP_TIMEOUT_SECONDS", 120*time.Second),
			VisionExplanations: envutil.Bool("VISION_EXPLANATIONS", false),
			EncyclopediaImages: envutil.Bool("ENCYCLOPEDIA_IMAGES", false),
		},
		PolicyFile: envutil.String("PIPELINE_POLICY_FILE", ""),

		AllowedOrigins: envutil.List("CORS_ALLOWED_ORIGINS", nil),

		MetricsEnabled:        envutil.Bool("METRICS_ENABLED", false),
		MetricsScrapeInterval: envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 15*time.Second),
	}
	if log != nil {
		log.Info("Configuration loaded",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"asset_storage", cfg.AssetStorage,
			"worker_concurrency", cfg.Worker.Concurrency,
			"worker_queue_size", cfg.Worker.QueueSize,
			"outline_model", cfg.Pipeline.OutlineModel,
			"explanation_model", cfg.Pipeline.ExplanationModel,
			"reference_model", cfg.Pipeline.ReferenceModel,
			"realtime_bus", cfg.Redis.Addr != "",
			"policy_file", cfg.PolicyFile,
			"metrics", cfg.MetricsEnabled,
		)
	}
	return cfg
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	port := strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
	if port == "" {
		port = "3000"
	}
	return ":" + port
}
