package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/NotARoomba/canvas/internal/platform/ctxutil"
)

// AttachLessonContext copies a valid :id path parameter into the request's
// trace data so service logs carry lesson_id.
func AttachLessonContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.Param("id"))
		if _, err := uuid.Parse(raw); err != nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		td := ctxutil.TraceData{}
		if cur := ctxutil.GetTraceData(ctx); cur != nil {
			td = *cur
		}
		td.LessonID = raw
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(ctx, &td))
		c.Next()
	}
}
