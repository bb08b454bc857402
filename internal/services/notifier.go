package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/NotARoomba/canvas/internal/domain"
	"github.com/NotARoomba/canvas/internal/realtime"
)

// =========================
// Lesson notifier
// =========================

/*
LessonNotifier pushes lesson and run events to the lesson's realtime channel.
It satisfies runtime.JobNotifier, so the worker and the pipeline share one
instance. Every method is fire-and-forget.
*/
type LessonNotifier interface {
	JobProgress(job *types.JobRun, stage string, progress int, message string)
	JobFailed(job *types.JobRun, stage string, errorMessage string)
	JobDone(job *types.JobRun)
	LessonUpdated(lesson *types.Lesson)
	LessonDeleted(lessonID uuid.UUID)
}

type lessonNotifier struct {
	emit SSEEmitter
}

func NewLessonNotifier(emit SSEEmitter) LessonNotifier {
	return &lessonNotifier{emit: emit}
}

func (n *lessonNotifier) send(lessonID uuid.UUID, event realtime.SSEEvent, data any) {
	if n == nil || n.emit == nil || lessonID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.LessonChannel(lessonID.String()),
		Event:   event,
		Data:    data,
	})
}

func lessonOf(job *types.JobRun) uuid.UUID {
	if job == nil || job.EntityID == nil {
		return uuid.Nil
	}
	return *job.EntityID
}

func (n *lessonNotifier) JobProgress(job *types.JobRun, stage string, progress int, message string) {
	n.send(lessonOf(job), realtime.SSEEventJobProgress, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *lessonNotifier) JobFailed(job *types.JobRun, stage string, errorMessage string) {
	n.send(lessonOf(job), realtime.SSEEventJobFailed, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"status":   job.Status,
		"stage":    stage,
		"error":    errorMessage,
	})
}

func (n *lessonNotifier) JobDone(job *types.JobRun) {
	n.send(lessonOf(job), realtime.SSEEventJobDone, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"job":      job,
	})
}

func (n *lessonNotifier) LessonUpdated(lesson *types.Lesson) {
	if lesson == nil {
		return
	}
	n.send(lesson.ID, realtime.SSEEventLessonUpdated, map[string]any{"lesson": lesson})
}

func (n *lessonNotifier) LessonDeleted(lessonID uuid.UUID) {
	n.send(lessonID, realtime.SSEEventLessonDeleted, map[string]any{"id": lessonID})
}
