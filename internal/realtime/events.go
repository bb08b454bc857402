package realtime

type SSEEvent string

const (
	// SSEEventLessonSnapshot is the first event of a stream: the lesson as stored.
	SSEEventLessonSnapshot SSEEvent = "lesson.snapshot"
	SSEEventLessonUpdated  SSEEvent = "lesson.updated"
	SSEEventLessonDeleted  SSEEvent = "lesson.deleted"
	SSEEventJobProgress    SSEEvent = "job.progress"
	SSEEventJobFailed      SSEEvent = "job.failed"
	SSEEventJobDone        SSEEvent = "job.done"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// LessonChannel is the channel carrying events for one lesson.
func LessonChannel(lessonID string) string {
	return "lesson:" + lessonID
}
