package handlers

import (
	"github.com/gin-gonic/gin"

	types "github.com/NotARoomba/canvas/internal/domain"
	"github.com/NotARoomba/canvas/internal/http/response"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/realtime"
	"github.com/NotARoomba/canvas/internal/services"
)

type RealtimeHandler struct {
	Log     *logger.Logger
	Hub     *realtime.SSEHub
	lessons services.LessonService
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, lessons services.LessonService) *RealtimeHandler {
	return &RealtimeHandler{
		Log:     log.With("handler", "RealtimeHandler"),
		Hub:     hub,
		lessons: lessons,
	}
}

/*
LessonEvents streams one lesson's events. The first event is always the stored
lesson (lesson.snapshot); after it come lesson.updated, lesson.deleted and the
job.* events of its generation run.
*/
func (h *RealtimeHandler) LessonEvents(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	ctx := c.Request.Context()
	lesson, err := h.lessons.Get(ctx, id)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	channel := realtime.LessonChannel(id.String())
	client := h.Hub.NewSSEClient()
	client.Outbound <- realtime.SSEMessage{
		Channel: channel,
		Event:   realtime.SSEEventLessonSnapshot,
		Data:    gin.H{"lesson": lesson},
	}
	h.Hub.AddChannel(client, channel)

	// an update published between the snapshot read and the subscription
	// would otherwise be lost
	if latest, err := h.lessons.Get(ctx, id); err == nil && changed(lesson, latest) {
		client.Outbound <- realtime.SSEMessage{
			Channel: channel,
			Event:   realtime.SSEEventLessonUpdated,
			Data:    gin.H{"lesson": latest},
		}
	}

	h.Log.Debug("Lesson event stream open", "lesson_id", id, "client_id", client.ID)
	h.Hub.ServeHTTP(c.Writer, c.Request, client)
	h.Hub.CloseClient(client)
	h.Log.Debug("Lesson event stream closed", "lesson_id", id, "client_id", client.ID)
}

func changed(before, after *types.Lesson) bool {
	if before == nil || after == nil {
		return false
	}
	return len(before.Steps) != len(after.Steps) ||
		len(before.Outline) != len(after.Outline) ||
		!before.UpdatedAt.Equal(after.UpdatedAt)
}
