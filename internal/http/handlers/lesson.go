package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NotARoomba/canvas/internal/domain"
	"github.com/NotARoomba/canvas/internal/http/response"
	"github.com/NotARoomba/canvas/internal/platform/apierr"
	"github.com/NotARoomba/canvas/internal/services"
)

type LessonHandler struct {
	svc services.LessonService
}

func NewLessonHandler(svc services.LessonService) *LessonHandler {
	return &LessonHandler{svc: svc}
}

// POST /lessons/start
func (h *LessonHandler) StartLesson(c *gin.Context) {
	var in services.StartLessonInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, apierr.InvalidData(errors.New("invalid request body")))
		return
	}
	lesson, run, err := h.svc.Start(c.Request.Context(), in)
	if err != nil {
		if lesson != nil {
			// lesson row exists but nothing will generate it
			response.RespondError(c, apierr.New(http.StatusServiceUnavailable, domain.StatusGenericError, err))
			return
		}
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"id": lesson.ID, "run_id": run.ID})
}

// GET /lessons
func (h *LessonHandler) ListLessons(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := positiveInt(raw, "limit")
		if err != nil {
			response.RespondError(c, err)
			return
		}
		limit = n
	}
	lessons, err := h.svc.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"lessons": lessons})
}

// GET /lessons/:id
func (h *LessonHandler) GetLesson(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	lesson, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"lesson": lesson})
}

// DELETE /lessons/:id
func (h *LessonHandler) DeleteLesson(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, nil)
}

// GET /lessons/:id/run
func (h *LessonHandler) GetLessonRun(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	run, err := h.svc.LatestRun(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	events, err := h.svc.RunEvents(c.Request.Context(), run.ID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"run": run, "events": events})
}

// GET /gallery/:count
func (h *LessonHandler) Gallery(c *gin.Context) {
	count, err := positiveInt(c.Param("count"), "count")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	lessons, err := h.svc.ListRecent(c.Request.Context(), count)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"gallery": lessons})
}
