package fakectrl

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nextensio/ctrlseed/internal/logging"
	"github.com/nextensio/ctrlseed/sdk"
)

// RequestLogger logs every request with a request ID. The client's
// X-Request-ID is reused when present so both sides log the same ID.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(sdk.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(sdk.HeaderRequestID, requestID)

		start := time.Now()

		requestLogger := logger.With(
			zap.String(logging.FieldRequestID, requestID),
			zap.String(logging.FieldMethod, c.Request.Method),
			zap.String(logging.FieldPath, c.Request.URL.Path),
			zap.String(logging.FieldRemoteAddr, c.ClientIP()),
		)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), requestLogger))

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int(logging.FieldStatusCode, status),
			zap.Int64(logging.FieldDuration, time.Since(start).Milliseconds()),
		}

		if status >= 500 {
			requestLogger.Error("request completed with server error", fields...)
		} else if status >= 400 {
			requestLogger.Warn("request completed with client error", fields...)
		} else {
			requestLogger.Info("request completed", fields...)
		}
	}
}
