// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds request correlation and access logging:
//
//   - RequestID() accepts a well-formed X-Request-ID from the caller or mints
//     a UUID. The id is echoed in responses, relay error frames and logs.
//   - Logger() emits one access line per request and attaches a
//     request-scoped zerolog.Logger carrying the correlation id plus the
//     session or payment the route addresses.
//   - Recovery() turns panics into the standard JSON error envelope.
//   - LoggerFrom() returns the request-scoped logger for handlers; services
//     read the same logger through log.Ctx(ctx).
//
// Order: RequestID, then Logger (or RedactingLogger), then Recovery.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// maxRequestIDLength bounds caller-supplied correlation ids.
	maxRequestIDLength = 128
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// RequestID attaches a correlation id to every request. A caller-supplied
// X-Request-ID is reused only when it is short and made of visible ASCII
// without spaces or quotes; anything else is replaced with a fresh UUID so
// the value is always safe to echo into headers, JSON and log lines.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if b := s[i]; b <= ' ' || b > '~' || b == '"' || b == '\\' {
			return false
		}
	}
	return true
}

// RequestIDFrom returns the correlation id assigned by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		return asString(v)
	}
	return c.Writer.Header().Get(requestIDHeader)
}

// Logger writes a structured access log for each request.
//
// Level follows the outcome: error for 5xx or when handlers recorded gin
// errors, warn for 4xx, info otherwise. Session routes add session_id and
// payment routes add payment_id (or owner_id for the per-user listing).
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		lc := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("user_id", UserID(c)).
			Str("method", c.Request.Method).
			Str("path", path)
		lc = withRouteSubject(lc, c, path, func(s string) string { return s })
		l := lc.Logger()
		attachLogger(c, &l)

		c.Next()

		ev := l.With().
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		status := c.Writer.Status()
		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// withRouteSubject adds the entity a route addresses, passed through scrub.
func withRouteSubject(lc zerolog.Context, c *gin.Context, route string, scrub func(string) string) zerolog.Context {
	id := c.Param("id")
	if id == "" {
		return lc
	}
	switch {
	case strings.Contains(route, "/sessions/:id"), strings.Contains(route, "/endpoints/:id"):
		return lc.Str("session_id", scrub(id))
	case strings.Contains(route, "/payments/:id"):
		return lc.Str("payment_id", scrub(id))
	case strings.Contains(route, "/users/:id"):
		return lc.Str("owner_id", scrub(id))
	}
	return lc
}

// Recovery converts a panic into a 500 with the standard error envelope,
// logging the panic value and stack. When the handler already wrote a
// response only the status is recorded.
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
				Str("request_id", RequestIDFrom(c)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortError(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// abortError writes the gateway error envelope ({request_id, code, message})
// from middleware, which cannot depend on the handlers package.
func abortError(c *gin.Context, status int, code, msg string) {
	rid := RequestIDFrom(c)
	if rid != "" {
		c.Header(requestIDHeader, rid)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": rid,
		"code":       code,
		"message":    msg,
	})
}

// attachLogger makes l available to handlers (Gin key "logger") and to
// services (zerolog context logger on the request).
func attachLogger(c *gin.Context, l *zerolog.Logger) {
	c.Set("logger", l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
}

// LoggerFrom returns the request-scoped logger, or a plain one when no
// access logger ran.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate cuts s to at most max bytes on a rune boundary and appends an
// ellipsis. max <= 0 disables truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
