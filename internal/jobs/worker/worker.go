package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/NotARoomba/canvas/internal/data/repos"
	types "github.com/NotARoomba/canvas/internal/domain"
	jobstatus "github.com/NotARoomba/canvas/internal/domain/jobs"
	"github.com/NotARoomba/canvas/internal/jobs/runtime"
	"github.com/NotARoomba/canvas/internal/observability"
	"github.com/NotARoomba/canvas/internal/platform/ctxutil"
	"github.com/NotARoomba/canvas/internal/platform/dbctx"
	"github.com/NotARoomba/canvas/internal/platform/logger"
)

var (
	ErrQueueFull = errors.New("job queue full")
	ErrStopped   = errors.New("worker stopped")
)

type Config struct {
	Concurrency int
	QueueSize   int
	// Metrics may be nil.
	Metrics     *observability.Metrics
}

type queued struct {
	ctx context.Context
	job *types.JobRun
}

// Worker runs submitted jobs on a fixed pool of goroutines. Jobs live only in
// memory: a restart abandons whatever was queued or running.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	tracker  *runtime.Tracker
	notify   runtime.JobNotifier
	metrics  *observability.Metrics

	concurrency int
	queue       chan queued

	// mu orders Submit against shutdown so nothing is enqueued after drain.
	mu      sync.Mutex
	stopped bool
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, tracker *runtime.Tracker, notify runtime.JobNotifier, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	return &Worker{
		db:          db,
		log:         baseLog.With("component", "JobWorker"),
		repo:        repo,
		registry:    registry,
		tracker:     tracker,
		notify:      notify,
		metrics:     cfg.Metrics,
		concurrency: cfg.Concurrency,
		queue:       make(chan queued, cfg.QueueSize),
	}
}

/*
Submit enqueues a persisted job run and registers it with the tracker so
callers can Wait on it right away. ctx only carries trace data: the run itself
is detached from the caller and canceled through the tracker or on shutdown.
*/
func (w *Worker) Submit(ctx context.Context, job *types.JobRun) error {
	if job == nil || job.ID == uuid.Nil {
		return fmt.Errorf("submit: job run not persisted")
	}
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}

	runCtx, cancel := context.WithCancel(ctxutil.Detach(ctx))
	lessonID := uuid.Nil
	if job.EntityID != nil {
		lessonID = *job.EntityID
	}
	w.tracker.Track(job.ID, lessonID, cancel)

	select {
	case w.queue <- queued{ctx: runCtx, job: job}:
		w.mu.Unlock()
		w.log.Debug("Job queued", "job_id", job.ID, "job_type", job.JobType, "queued", len(w.queue))
		return nil
	default:
	}
	w.mu.Unlock()

	jc := w.newContext(runCtx, job)
	jc.Fail("queue", ErrQueueFull)
	w.finish(jc)
	return ErrQueueFull
}

// Run processes the queue until ctx ends. In-flight jobs see ctx canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting job worker pool", "concurrency", w.concurrency, "queue_size", cap(w.queue))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.runLoop(gctx, workerID)
			return nil
		})
	}
	err := g.Wait()
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.drain()
	return err
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case item := <-w.queue:
			w.process(ctx, workerID, item)
		}
	}
}

// drain abandons jobs still queued after shutdown.
func (w *Worker) drain() {
	for {
		select {
		case item := <-w.queue:
			jc := w.newContext(item.ctx, item.job)
			jc.Fail("shutdown", ErrStopped)
			w.finish(jc)
		default:
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, workerID int, item queued) {
	job := item.job
	runCtx, cancel := context.WithCancel(item.ctx)
	defer cancel()
	stopRun := context.AfterFunc(ctx, cancel)
	defer stopRun()

	jc := w.newContext(runCtx, job)
	defer w.finish(jc)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type",
			"worker_id", workerID,
			"job_type", job.JobType,
			"job_id", job.ID,
		)
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		return
	}
	if !jc.Start() {
		w.log.Info("Job finished before it started", "job_id", job.ID, "worker_id", workerID)
		if latest, err := w.repo.GetByID(dbctx.Of(context.WithoutCancel(runCtx)), job.ID); err == nil {
			jc.Job = latest
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic",
				"worker_id", workerID,
				"job_id", job.ID,
				"job_type", job.JobType,
				"panic", r,
			)
			jc.Fail("panic", errFromRecover(r))
		}
	}()

	if runErr := h.Run(jc); runErr != nil {
		// pipelines normally call jc.Fail themselves
		jc.Fail("run", runErr)
	}
	if !jc.Finished() {
		jc.Fail("run", errors.New("handler returned without finishing the run"))
	}
}

func (w *Worker) newContext(ctx context.Context, job *types.JobRun) *runtime.Context {
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)
	jc.Metrics = w.metrics
	return jc
}

// finish releases Wait callers and records the run's metrics.
func (w *Worker) finish(jc *runtime.Context) {
	out := outcomeOf(jc)
	if !jobstatus.IsTerminal(out.Status) {
		out.Status = jobstatus.StatusAbandoned
	}
	var dur time.Duration
	if jc.Job.StartedAt != nil && jc.Job.FinishedAt != nil {
		dur = jc.Job.FinishedAt.Sub(*jc.Job.StartedAt)
	}
	w.metrics.ObserveRun(jc.Job.JobType, out.Status, dur, out.StepsAppended, out.StepsSkipped)
	w.tracker.Finish(jc.Job.ID, out)
}

func outcomeOf(jc *runtime.Context) runtime.Outcome {
	out := runtime.Outcome{}
	if jc == nil || jc.Job == nil {
		return out
	}
	out.Status = jc.Job.Status
	out.Error = jc.Job.Error
	if len(jc.Job.Result) > 0 {
		var counts struct {
			StepsAppended int `json:"steps_appended"`
			StepsSkipped  int `json:"steps_skipped"`
		}
		if err := json.Unmarshal(jc.Job.Result, &counts); err == nil {
			out.StepsAppended = counts.StepsAppended
			out.StepsSkipped = counts.StepsSkipped
		}
	}
	return out
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
