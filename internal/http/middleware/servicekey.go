// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements shared-secret authentication for inter-service
// traffic. Collaborating services authenticate every relay call with a
// single deployment-wide key carried in the X-Service-Key header; there is
// no per-service credential. Requests that present the correct key are also
// flagged for rate-limit bypass so machine traffic never competes with
// citizen-facing buckets.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServiceKeyHeader carries the shared secret on inter-service calls.
const ServiceKeyHeader = "X-Service-Key"

// ServiceKeyAuth returns a Gin middleware that rejects requests whose
// X-Service-Key header does not match key. The comparison is constant
// time. An empty configured key disables the check entirely, which is
// only acceptable in development setups.
//
// On mismatch the middleware emits:
//
//	HTTP/1.1 401 Unauthorized
//	{
//	  "request_id": "<uuid>",
//	  "code":       "auth_failed",
//	  "message":    "invalid or missing service key"
//	}
func ServiceKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader(ServiceKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "auth_failed",
				"message":    "invalid or missing service key",
			})
			return
		}
		// Authenticated machine traffic skips the citizen rate limiter.
		c.Set(ctxKeyRateBypass, true)
		c.Next()
	}
}
