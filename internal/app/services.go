package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/NotARoomba/canvas/internal/jobs/pipeline/lesson_generate"
	jobruntime "github.com/NotARoomba/canvas/internal/jobs/runtime"
	"github.com/NotARoomba/canvas/internal/jobs/worker"
	"github.com/NotARoomba/canvas/internal/observability"
	"github.com/NotARoomba/canvas/internal/platform/dbctx"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/realtime"
	"github.com/NotARoomba/canvas/internal/services"
)

type Services struct {
	Assets   services.AssetService
	Lessons  services.LessonService
	Notifier services.LessonNotifier

	JobRegistry *jobruntime.Registry
	JobTracker  *jobruntime.Tracker
	JobWorker   *worker.Worker
}

// emitter picks the realtime path: with a bus every instance publishes to
// Redis and its forwarder feeds the local hub, otherwise events go straight
// to the hub.
func emitter(log *logger.Logger, clients Clients, hub *realtime.SSEHub) services.SSEEmitter {
	if clients.Bus != nil {
		return &services.RedisEmitter{Bus: clients.Bus, Log: log.With("component", "RealtimeEmitter")}
	}
	return &services.HubEmitter{Hub: hub}
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients, hub *realtime.SSEHub, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	assets, _, err := resolveAssetService(log, cfg, reposet.Asset)
	if err != nil {
		return Services{}, err
	}
	notifier := services.NewLessonNotifier(emitter(log, clients, hub))

	policy, err := lesson_generate.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return Services{}, fmt.Errorf("load pipeline policy: %w", err)
	}

	registry := jobruntime.NewRegistry()
	pipeline := lesson_generate.New(
		db,
		log,
		reposet.Lesson,
		assets,
		clients.Chat,
		clients.Images,
		clients.TTS,
		clients.Wiki,
		notifier,
		policy,
		cfg.Pipeline,
	)
	if err := registry.Register(pipeline); err != nil {
		return Services{}, fmt.Errorf("register %s: %w", pipeline.Type(), err)
	}
	log.Info("Registered job handlers", "types", registry.Types())

	tracker := jobruntime.NewTracker()
	workerCfg := cfg.Worker
	workerCfg.Metrics = metrics
	jobWorker := worker.NewWorker(db, log, reposet.JobRun, registry, tracker, notifier, workerCfg)

	lessons := services.NewLessonService(log, reposet.Lesson, reposet.JobRun, jobWorker, tracker, notifier)

	return Services{
		Assets:      assets,
		Lessons:     lessons,
		Notifier:    notifier,
		JobRegistry: registry,
		JobTracker:  tracker,
		JobWorker:   jobWorker,
	}, nil
}

// abandonStaleRuns closes out runs a previous process left queued or running.
func abandonStaleRuns(ctx context.Context, log *logger.Logger, reposet Repos) {
	n, err := reposet.JobRun.AbandonUnfinished(dbctx.Of(ctx), lesson_generate.JobType, "server restarted")
	if err != nil {
		log.Warn("Failed to abandon unfinished runs", "error", err)
		return
	}
	if n > 0 {
		log.Info("Abandoned unfinished runs from a previous process", "count", n)
	}
}
