package middleware

import (
	"context"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/NotARoomba/canvas/internal/platform/ctxutil"
)

const (
	HeaderTraceID   = "X-Trace-Id"
	HeaderRequestID = "X-Request-Id"
)

// maxClientIDLen bounds ids accepted from request headers.
const maxClientIDLen = 128

/*
AttachTraceContext seeds ctxutil.TraceData for the request and echoes both ids
on the response. The trace id comes from the X-Trace-Id header, then the
otelgin span, then a fresh uuid. Header values that are too long or contain
control characters are ignored.
*/
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		td := &ctxutil.TraceData{
			TraceID:   clientID(c.GetHeader(HeaderTraceID)),
			RequestID: clientID(c.GetHeader(HeaderRequestID)),
		}
		if td.TraceID == "" {
			td.TraceID = spanTraceID(c.Request.Context())
		}
		if td.TraceID == "" {
			td.TraceID = uuid.NewString()
		}
		if td.RequestID == "" {
			td.RequestID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Header(HeaderTraceID, td.TraceID)
		c.Header(HeaderRequestID, td.RequestID)
		c.Next()
	}
}

func clientID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxClientIDLen {
		return ""
	}
	for _, r := range raw {
		if unicode.IsControl(r) {
			return ""
		}
	}
	return raw
}

func spanTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
