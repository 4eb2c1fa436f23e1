// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Request correlation and access logging. Install RequestID, Logger and
// Recovery in that order. Authentication runs further down the chain, so the
// caller's identity is only known once the handlers return and is added to
// the access line then.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	loggerKey       = "logger"
	requestIDHeader = "X-Request-ID"

	maxQueryLogLength  = 2048
	maxRequestIDLength = 128
)

// RequestID reuses a client X-Request-ID when it is short printable ASCII and
// mints a UUIDv4 otherwise. The ID is echoed on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !usableRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(requestIDHeader, rid)
		c.Next()
	}
}

func usableRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// RequestIDFrom returns the correlation ID set by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger emits one access line per request. Handlers get a request-scoped
// logger through LoggerFrom, and the same logger is attached to the request
// context for code that only sees a context.Context (zerolog.Ctx).
//
// Level is picked by outcome: error for 5xx or recorded gin errors, warn for
// 4xx, info otherwise. Scrubbed headers are logged at debug.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		lg := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", route).
			Str("remote_ip", c.ClientIP()).
			Logger()
		c.Set(loggerKey, &lg)
		c.Request = c.Request.WithContext(lg.WithContext(c.Request.Context()))

		c.Next()

		accessLine(c, &lg, time.Since(start))
	}
}

func accessLine(c *gin.Context, lg *zerolog.Logger, took time.Duration) {
	status := c.Writer.Status()

	var ev *zerolog.Event
	switch {
	case len(c.Errors) > 0:
		ev = lg.Error().Str("errors", c.Errors.String())
	case status >= http.StatusInternalServerError:
		ev = lg.Error()
	case status >= http.StatusBadRequest:
		ev = lg.Warn()
	default:
		ev = lg.Info()
	}
	if !ev.Enabled() {
		return
	}

	if q := c.Request.URL.RawQuery; q != "" {
		ev.Str("query", truncate(redact(q), maxQueryLogLength))
	}
	if uid := UserID(c); uid != "" {
		ev.Str("user_id", uid).Str("role", Role(c))
	}
	if id := c.Param("id"); id != "" {
		ev.Str("campaign_id", id)
	}
	if IsReplay(c) {
		ev.Bool("idempotent_replay", true)
	}
	ev.Int("status", status).
		Dur("latency", took).
		Int64("bytes_in", c.Request.ContentLength).
		Int("bytes_out", c.Writer.Size()).
		Str("user_agent", c.Request.UserAgent()).
		Msg("request")

	if dbg := lg.Debug(); dbg.Enabled() {
		dbg.Interface("headers", safeHeaders(c.Request.Header)).Msg("request headers")
	}
}

// Recovery turns a panic into the standard 500 envelope when nothing has been
// written yet, and logs the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger tagged
// with the request ID when Logger is not installed. Never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if lg, ok := c.Value(loggerKey).(*zerolog.Logger); ok && lg != nil {
		return lg
	}
	l := log.With().Str("request_id", RequestIDFrom(c)).Logger()
	return &l
}

// truncate caps s at n bytes and marks the cut. n <= 0 disables it.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
