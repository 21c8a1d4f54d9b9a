package middleware

import (
	"github.com/ErlanBelekov/offboarding-scheduler/internal/requestid"
	"github.com/gin-gonic/gin"
)

const maxRequestIDLen = 128

// RequestID injects a request ID into the context and response header.
// A well-formed incoming X-Request-ID is kept so that a caller can trace an
// execute call across services; anything else is replaced by a new UUID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if !validRequestID(id) {
			id = requestid.New()
		}

		ctx := requestid.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// The id ends up in logs and response headers, so only printable ASCII
// without spaces is accepted.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}
