package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/kongfuworld/settlement/internal/observability/context"
	"go.uber.org/zap"
)

// GinMiddleware logs each ops request with a request id.
func GinMiddleware(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}

		log := WithContext(c.Request.Context(), base)
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("http_request", fields...)
		case route == "/metrics" || route == "/healthz":
			log.Debug("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-Id", requestID)
	return requestID
}
