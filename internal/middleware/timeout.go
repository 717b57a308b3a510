package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultRequestTimeout = 30 * time.Second

// Timeout bounds every request by the given duration. The deadline
// propagates through the request context, so repository calls and push
// dispatches respect it too.
func Timeout(duration time.Duration) gin.HandlerFunc {
	if duration <= 0 {
		duration = defaultRequestTimeout
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), duration)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		go func() {
			c.Next()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				c.AbortWithStatusJSON(http.StatusGatewayTimeout, ErrorResponse{
					Code:    http.StatusGatewayTimeout,
					Message: "request timed out",
					TraceID: c.GetString(ContextRequestID),
				})
			}
		}
	}
}
