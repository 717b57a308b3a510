package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Booking payloads are tiny; anything past this is not a legitimate client.
const defaultMaxBodySize = 1 << 20

// SizeLimit rejects oversized request bodies before they reach a handler.
func SizeLimit(maxBodySize int64) gin.HandlerFunc {
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBodySize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Code:    http.StatusRequestEntityTooLarge,
				Message: "request body too large",
				TraceID: c.GetString(ContextRequestID),
			})
			return
		}

		// Chunked requests carry no Content-Length; cap the reader instead.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}
