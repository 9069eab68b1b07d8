package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/nrednav/cuid2"
)

const (
	ContextKeyRequestID = "request_id"
	requestIDHeader     = "X-Request-ID"
)

// RequestID tags every request with an id, reusing a sane inbound one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = cuid2.Generate()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func CurrentRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}
