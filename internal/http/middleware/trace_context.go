package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/aggsync/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// AttachTraceContext stores the request and trace ids on the request context so
// aggregate spans and change events can name the API call behind them. It runs after
// otelgin: the active span's trace id wins over the X-Trace-Id header.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		req := ctxutil.Request{RequestID: strings.TrimSpace(c.GetHeader(headerRequestID))}
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}
		span := trace.SpanFromContext(ctx)
		switch sc := span.SpanContext(); {
		case sc.HasTraceID():
			req.TraceID = sc.TraceID().String()
		case strings.TrimSpace(c.GetHeader(headerTraceID)) != "":
			req.TraceID = strings.TrimSpace(c.GetHeader(headerTraceID))
		default:
			req.TraceID = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		if span.IsRecording() {
			span.SetAttributes(attribute.String("request.id", req.RequestID))
			if name := c.Param("name"); name != "" {
				span.SetAttributes(attribute.String("aggregate.definition", name))
			}
		}

		c.Request = c.Request.WithContext(ctxutil.WithRequest(ctx, req))
		c.Set("trace_id", req.TraceID)
		c.Set("request_id", req.RequestID)
		c.Writer.Header().Set(headerTraceID, req.TraceID)
		c.Writer.Header().Set(headerRequestID, req.RequestID)
		c.Next()
	}
}
