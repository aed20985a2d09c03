package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/uav-offload-sim/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// requestID ensures a request_id is present on the request context, sourcing
// it from the X-Request-ID header if provided, and attaches a per-request
// logger annotated with the method and route.
func requestID(base logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := c.GetHeader(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, id := logging.EnsureRequestID(ctx)

		reqLog := base.With(
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path))
		c.Request = c.Request.WithContext(logging.ContextWithLogger(ctx, reqLog))
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()
		reqLog.Debug(c.Request.Context(), "request handled",
			logging.Int("status", c.Writer.Status()),
			logging.Duration("duration", time.Since(start)))
	}
}

func loggerFrom(c *gin.Context, fallback logging.Logger) logging.Logger {
	if l := logging.LoggerFromContext(c.Request.Context()); l != nil {
		return l
	}
	return fallback
}
