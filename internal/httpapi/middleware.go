// Package httpapi is the HTTP boundary: route groups per resource, a
// bearer-token principal extractor, and translation of apperr.Kind
// values to status codes.
//
// Request authentication itself (validating and issuing the bearer
// token) lives in front of this service. PrincipalMiddleware only reads
// the principal a prior auth layer attached, here stood in for by
// treating the bearer token's value as the caller's userID directly.
package httpapi

import (
	"net/http"
	"strings"

	"mailsync/internal/apperr"

	"github.com/gin-gonic/gin"
)

const contextUserIDKey = "userID"

// PrincipalMiddleware reads "Authorization: Bearer <userID>" and sets
// the caller's user id on the request context. A real deployment sits
// this behind an external token-validation layer.
func PrincipalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed bearer token"})
			c.Abort()
			return
		}
		c.Set(contextUserIDKey, strings.TrimSpace(parts[1]))
		c.Next()
	}
}

func userID(c *gin.Context) string {
	v, _ := c.Get(contextUserIDKey)
	s, _ := v.(string)
	return s
}

// corsMiddleware handles CORS inline, including OPTIONS preflight.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// statusFor maps an apperr.Kind to its HTTP status code.
func statusFor(err error) int {
	kind, ok := apperr.Of(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case apperr.NotFound, apperr.ProviderStaleCursor:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.IntegrityFailure, apperr.ProviderFatal, apperr.AiFailure, apperr.ProviderTransient:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error body at the status its Kind maps to.
func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
