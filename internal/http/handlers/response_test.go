package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-session-gateway/internal/endpoints"
	"github.com/tbourn/go-session-gateway/internal/http/middleware"
	"github.com/tbourn/go-session-gateway/internal/provider"
	"github.com/tbourn/go-session-gateway/internal/services"
)

// scopedRouter mounts the session routes behind RequestID and a request
// logger writing to buf.
func scopedRouter(h *Handlers, buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	lg := zerolog.New(buf)
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		c.Set("logger", &lg)
		c.Next()
	})
	r.GET("/api/v1/sessions/:id/status", h.SessionStatus)
	r.POST("/api/v1/sessions/:id/messages", h.SendMessage)
	r.NoRoute(func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found") })
	return r
}

func TestFail_ProviderDetailOnBadGateway(t *testing.T) {
	var buf bytes.Buffer
	upstream := &provider.Error{Op: endpoints.OpSendMessage, StatusCode: http.StatusServiceUnavailable, Message: "queue full"}
	sess := &fakeSessions{err: fmt.Errorf("%w: %w", services.ErrProviderUnavailable, upstream)}
	r := scopedRouter(newTestHandlers(t, sess), &buf)

	w := do(r, http.MethodPost, "/api/v1/sessions/s1/messages",
		map[string]string{"chatId": "5511@c.us", "content": "oi"},
		map[string]string{"X-Request-ID": "rid-502"})

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	e := decodeError(t, w)
	if e.RequestID != "rid-502" || e.Code != ErrCodeBadGateway || e.Message != "provider unavailable" {
		t.Fatalf("unexpected envelope: %+v", e)
	}
	if e.ProviderOp != "send-message" || e.ProviderStatus != http.StatusServiceUnavailable {
		t.Fatalf("provider detail = %q/%d", e.ProviderOp, e.ProviderStatus)
	}
	// The provider's own message is logged, never echoed.
	if strings.Contains(w.Body.String(), "queue full") {
		t.Fatalf("provider message leaked: %s", w.Body.String())
	}
	out := buf.String()
	for _, want := range []string{`"level":"error"`, `"provider_op":"send-message"`, `"provider_status":503`, "queue full"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %s:\n%s", want, out)
		}
	}
}

func TestFail_UnreachableProviderHasOpButNoStatus(t *testing.T) {
	var buf bytes.Buffer
	upstream := &provider.Error{Op: endpoints.OpCheckStatus, Err: errors.New("dial tcp: connection refused")}
	sess := &fakeSessions{err: fmt.Errorf("%w: %w", services.ErrProviderUnavailable, upstream)}
	r := scopedRouter(newTestHandlers(t, sess), &buf)

	w := do(r, http.MethodGet, "/api/v1/sessions/s1/status", nil, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", w.Code)
	}
	if strings.Contains(w.Body.String(), "provider_status") {
		t.Fatalf("zero status should be omitted: %s", w.Body.String())
	}
	if e := decodeError(t, w); e.ProviderOp != "check-status" || e.RequestID == "" {
		t.Fatalf("unexpected envelope: %+v", e)
	}
}

func TestFail_TimeoutAndClientErrorsCarryNoProviderDetail(t *testing.T) {
	var buf bytes.Buffer
	sess := &fakeSessions{}
	r := scopedRouter(newTestHandlers(t, sess), &buf)

	sess.err = fmt.Errorf("status: %w", context.DeadlineExceeded)
	w := do(r, http.MethodGet, "/api/v1/sessions/s1/status", nil, nil)
	if w.Code != http.StatusGatewayTimeout || decodeError(t, w).Code != ErrCodeGatewayTimeout {
		t.Fatalf("timeout -> %d %s", w.Code, w.Body.String())
	}

	// A provider 404 becomes the gateway's own 404 with no upstream fields.
	buf.Reset()
	sess.err = fmt.Errorf("%w: %w", services.ErrSessionNotFound,
		&provider.Error{Op: endpoints.OpCheckStatus, StatusCode: http.StatusNotFound})
	w = do(r, http.MethodGet, "/api/v1/sessions/gone/status", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("not found -> %d", w.Code)
	}
	if e := decodeError(t, w); e.ProviderOp != "" || e.ProviderStatus != 0 {
		t.Fatalf("4xx leaked provider detail: %+v", e)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx should not log: %s", buf.String())
	}
}

func TestFail_RouteFallbackAndSuccessHelpers(t *testing.T) {
	var buf bytes.Buffer
	sess := &fakeSessions{}
	h := newTestHandlers(t, sess)
	r := scopedRouter(h, &buf)
	r.DELETE("/api/v1/profile", func(c *gin.Context) { noContent(c) })
	r.GET("/api/v1/endpoints/:id", func(c *gin.Context) {
		ok(c, http.StatusOK, EndpointsResponse{SessionID: c.Param("id"), Paths: map[string]string{}})
	})

	w := do(r, http.MethodGet, "/api/v1/nowhere", nil, map[string]string{"X-Request-ID": "rid-404"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	if e := decodeError(t, w); e.RequestID != "rid-404" || e.Code != ErrCodeNotFound {
		t.Fatalf("unexpected 404 body: %+v", e)
	}

	w = do(r, http.MethodGet, "/api/v1/endpoints/s9", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"session_id":"s9"`) {
		t.Fatalf("ok -> %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodDelete, "/api/v1/profile", nil, nil)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("noContent -> %d %q", w.Code, w.Body.String())
	}
}
