// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file authenticates callers from an "Authorization: Bearer <jwt>"
// header and enforces role requirements per route. The verified subject is
// stored under the "userID" context key (read by the logger, the rate limiter
// and the idempotency validator) and the role under "role".
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-discount-backend/internal/auth"
)

const (
	ctxKeyUserID = "userID"
	ctxKeyRole   = "role"
)

// TokenVerifier validates a bearer token and returns the caller.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Authenticate rejects requests without a valid bearer token with 401.
func Authenticate(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		id, err := v.Verify(raw)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		c.Set(ctxKeyUserID, id.Subject)
		c.Set(ctxKeyRole, id.Role)
		c.Next()
	}
}

// RequireRole lets only callers holding role through; others get 403.
// It must run after Authenticate.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Role(c) != role {
			abortJSON(c, http.StatusForbidden, "forbidden", "this operation requires the "+role+" role")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated subject, or "" when unauthenticated.
func UserID(c *gin.Context) string {
	return c.GetString(ctxKeyUserID)
}

// Role returns the authenticated role, or "".
func Role(c *gin.Context) string {
	return c.GetString(ctxKeyRole)
}

func bearerToken(h string) string {
	h = strings.TrimSpace(h)
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// abortJSON writes the standard error envelope and stops the chain.
func abortJSON(c *gin.Context, status int, code, msg string) {
	abortJSONField(c, status, code, msg, "")
}

func abortJSONField(c *gin.Context, status int, code, msg, field string) {
	body := gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	}
	if field != "" {
		body["field"] = field
	}
	c.AbortWithStatusJSON(status, body)
}
