// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the gateway's response helpers. Every failure leaves as an
// ErrorResponse carrying the request id and a stable code. When the failure
// came from the upstream messaging provider, the envelope also names the
// provider operation and the HTTP status the provider answered with, so
// clients can tell "provider said 503" from "gateway broke":
//
//	HTTP/1.1 502 Bad Gateway
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "bad_gateway",
//	  "message": "provider unavailable",
//	  "provider_op": "send-message",
//	  "provider_status": 503
//	}
//
// Relay error frames reuse the same envelope.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-session-gateway/internal/http/middleware"
	"github.com/tbourn/go-session-gateway/internal/provider"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"bad_gateway"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"provider unavailable"`
	// Provider operation that failed; only on upstream failures
	ProviderOp string `json:"provider_op,omitempty" example:"send-message"`
	// Provider HTTP status; absent when the provider was unreachable
	ProviderStatus int `json:"provider_status,omitempty" example:"503"`
}

// newErrorResponse builds an envelope for code/msg and, for gateway-class
// statuses, copies the upstream detail out of cause.
func newErrorResponse(status int, code, msg string, cause error) ErrorResponse {
	resp := ErrorResponse{Code: code, Message: msg}
	if status < http.StatusInternalServerError {
		return resp
	}
	var pe *provider.Error
	if errors.As(cause, &pe) {
		resp.ProviderOp = pe.Op.String()
		resp.ProviderStatus = pe.StatusCode
	}
	return resp
}

// fail aborts the request with a structured error. 5xx answers are logged
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	respond(c, status, newErrorResponse(status, code, msg, nil), nil)
}

// failCause is fail for errors returned by a service: upstream detail from
// cause reaches the envelope and cause itself reaches the log.
func failCause(c *gin.Context, status int, code, msg string, cause error) {
	respond(c, status, newErrorResponse(status, code, msg, cause), cause)
}

// Fail is the exported variant of fail for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func respond(c *gin.Context, status int, resp ErrorResponse, cause error) {
	resp.RequestID = middleware.RequestIDFrom(c)

	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Message)
		if resp.ProviderOp != "" {
			ev = ev.Str("provider_op", resp.ProviderOp).Int("provider_status", resp.ProviderStatus)
		}
		if cause != nil {
			ev = ev.Err(cause)
		}
		ev.Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
