package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NotARoomba/canvas/internal/observability"
)

// Metrics instruments HTTP request counts/latency when metrics are enabled.
// Event streams are counted but kept out of the in-flight gauge.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		streaming := route == "/lessons/:id/events"
		if !streaming {
			m.ApiInflightInc()
			defer m.ApiInflightDec()
		}

		c.Next()

		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
