package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/NotARoomba/canvas/internal/data/repos"
	types "github.com/NotARoomba/canvas/internal/domain"
	jobstatus "github.com/NotARoomba/canvas/internal/domain/jobs"
	"github.com/NotARoomba/canvas/internal/observability"
	"github.com/NotARoomba/canvas/internal/platform/ctxutil"
	"github.com/NotARoomba/canvas/internal/platform/dbctx"
)

// JobNotifier receives run lifecycle events. Implementations must not block.
type JobNotifier interface {
	JobProgress(job *types.JobRun, stage string, progress int, message string)
	JobFailed(job *types.JobRun, stage string, errorMessage string)
	JobDone(job *types.JobRun)
}

/*
Context is the execution handle for a single job run.
It wraps:
  - the run's context.Context (timeouts, cancellation on lesson delete or shutdown)
  - the mutable job_run row
  - the notifier side channel
  - the only sanctioned ways to report progress or terminate a run

Pipelines never touch job_run directly. They go through this object, and every
terminal write is guarded so a canceled or finished run is never overwritten.
*/
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.JobRun
	Repo    repos.JobRunRepo
	Notify  JobNotifier
	// Metrics may be nil.
	Metrics *observability.Metrics
	payload map[string]any
}

/*
NewContext builds the handle for a claimed run. The payload is decoded eagerly;
a malformed payload leaves an empty map and handlers report missing fields.
*/
func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, notify JobNotifier) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	payload := c.Payload()
	td := &ctxutil.TraceData{
		TraceID:   payloadString(payload, "trace_id"),
		RequestID: payloadString(payload, "request_id"),
		LessonID:  payloadString(payload, "lesson_id"),
	}
	if td.TraceID == "" && td.RequestID == "" && td.LessonID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, td)
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadString(key string) string {
	return payloadString(c.Payload(), key)
}

// PayloadUUID returns (uuid.Nil, false) when the key is missing or unparseable.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := payloadString(c.Payload(), key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// PayloadInt accepts JSON numbers and numeric strings.
func (c *Context) PayloadInt(key string) (int, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return int(t), t == float64(int(t))
	case int:
		return t, true
	default:
		var n int
		if _, err := fmt.Sscan(fmt.Sprint(v), &n); err != nil {
			return 0, false
		}
		return n, true
	}
}

func (c *Context) bg() context.Context {
	// run-state writes must land even after the run context is canceled
	if c.Ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(c.Ctx)
}

func (c *Context) write(updates map[string]interface{}) bool {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return true
	}
	ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.bg()}, c.Job.ID, jobstatus.TerminalStatuses, updates)
	return err == nil && ok
}

/*
Start moves the run from queued to running. It returns false if the run was
already finished (for example canceled while still queued).
*/
func (c *Context) Start() bool {
	if c == nil {
		return false
	}
	now := time.Now()
	if !c.write(map[string]interface{}{
		"status":       jobstatus.StatusRunning,
		"stage":        "start",
		"started_at":   now,
		"heartbeat_at": now,
	}) {
		return false
	}
	if c.Job != nil {
		c.Job.Status = jobstatus.StatusRunning
		c.Job.Stage = "start"
		c.Job.StartedAt = &now
		c.Job.HeartbeatAt = &now
	}
	return true
}

/*
Progress publishes a non-terminal status update: stage, percentage and message
are persisted with a heartbeat, mirrored on c.Job, and sent to the notifier.
*/
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 99 {
		pct = 99
	}
	now := time.Now()
	if !c.write(map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"message":      msg,
		"heartbeat_at": now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	c.appendEvent(jobstatus.JobEventProgress, stage, msg, nil)
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job, stage, pct, msg)
	}
}

// Decision appends a timeline entry describing how the run handled a failure.
// It does not change the run's status.
func (c *Context) Decision(stage string, msg string, data map[string]any) {
	if c == nil || c.Finished() {
		return
	}
	c.appendEvent(jobstatus.JobEventDecision, stage, msg, data)
}

func (c *Context) appendEvent(kind jobstatus.JobEventKind, stage, msg string, data map[string]any) {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	ev := &types.JobRunEvent{
		JobID:    c.Job.ID,
		JobType:  c.Job.JobType,
		Kind:     string(kind),
		Status:   c.Job.Status,
		Stage:    stage,
		Progress: c.Job.Progress,
		Message:  msg,
	}
	if len(data) > 0 {
		if b, err := json.Marshal(data); err == nil {
			ev.Data = datatypes.JSON(b)
		}
	}
	// the timeline is best effort; the job_run row stays authoritative
	_ = c.Repo.AppendEvent(dbctx.Context{Ctx: c.bg()}, ev)
}

// SetResult records a result payload that the next terminal transition persists.
func (c *Context) SetResult(result any) {
	if c == nil || c.Job == nil || result == nil {
		return
	}
	b, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.Job.Result = datatypes.JSON(b)
}

/*
Fail marks the run abandoned with an error message. Whatever the pipeline
already persisted is kept; nothing is rolled back.
*/
func (c *Context) Fail(stage string, err error) {
	c.finish(jobstatus.StatusAbandoned, stage, err)
}

// Cancel marks the run canceled, used when its lesson was deleted.
func (c *Context) Cancel(stage string, err error) {
	c.finish(jobstatus.StatusCanceled, stage, err)
}

// Succeed marks the run complete and stores result.
func (c *Context) Succeed(finalStage string, result any) {
	c.SetResult(result)
	c.finish(jobstatus.StatusComplete, finalStage, nil)
}

func (c *Context) finish(status, stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	updates := map[string]interface{}{
		"status":      status,
		"stage":       stage,
		"message":     "",
		"error":       msg,
		"finished_at": now,
	}
	if status == jobstatus.StatusComplete {
		updates["progress"] = 100
	}
	if c.Job != nil && len(c.Job.Result) > 0 {
		updates["result"] = c.Job.Result
	}
	if !c.write(updates) {
		return
	}
	if c.Job != nil {
		c.Job.Status = status
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.FinishedAt = &now
		c.Job.UpdatedAt = now
		if status == jobstatus.StatusComplete {
			c.Job.Progress = 100
		}
	}
	c.appendEvent(finishKind(status), stage, msg, nil)
	if c.Notify == nil || c.Job == nil {
		return
	}
	if status == jobstatus.StatusComplete {
		c.Notify.JobDone(c.Job)
	} else {
		c.Notify.JobFailed(c.Job, stage, msg)
	}
}

// Finished reports whether the run reached a terminal status in this process.
func (c *Context) Finished() bool {
	return c != nil && c.Job != nil && jobstatus.IsTerminal(c.Job.Status)
}

func finishKind(status string) jobstatus.JobEventKind {
	switch status {
	case jobstatus.StatusComplete:
		return jobstatus.JobEventSucceeded
	case jobstatus.StatusCanceled:
		return jobstatus.JobEventCanceled
	default:
		return jobstatus.JobEventFailed
	}
}
