package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-session-gateway/internal/cache"
	"github.com/tbourn/go-session-gateway/internal/config"
	"github.com/tbourn/go-session-gateway/internal/domain"
	"github.com/tbourn/go-session-gateway/internal/http/middleware"
	"github.com/tbourn/go-session-gateway/internal/provider"
	"github.com/tbourn/go-session-gateway/internal/repo"
	"github.com/tbourn/go-session-gateway/internal/services"
)

// stubProvider answers every provider call without a network.
type stubProvider struct{}

func (p *stubProvider) StartSession(_ context.Context, _ string) (*provider.SessionState, error) {
	return &provider.SessionState{Success: true, State: "STARTING"}, nil
}

func (p *stubProvider) QRCode(_ context.Context, _ string) ([]byte, string, error) {
	return []byte{0x89, 'P', 'N', 'G'}, "image/png", nil
}

func (p *stubProvider) Status(_ context.Context, _ string) (*provider.SessionState, error) {
	return &provider.SessionState{Success: true, State: "CONNECTED"}, nil
}

func (p *stubProvider) FetchMessages(_ context.Context, _, _ string) ([]domain.Message, error) {
	return nil, nil
}

func (p *stubProvider) SendMessage(_ context.Context, _ string, req provider.SendMessageRequest) (*provider.SendMessageResult, error) {
	return &provider.SendMessageResult{Success: true, Message: domain.Message{ID: "m1", Receiver: domain.ChatUser{ID: req.ChatID}}}, nil
}

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:routerdb_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:      "/api/v1",
		LogRedact:        true,
		RateRPS:          100,
		RateBurst:        100,
		SessionRateRPS:   100,
		SessionRateBurst: 100,
		IdempotencyTTL:   time.Hour,
		OTEL:             config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newTestDeps(t *testing.T, db *gorm.DB) Deps {
	t.Helper()
	store := cache.NewMemoryStore()
	return Deps{
		Sessions: services.NewSessionService(&stubProvider{}, store, time.Minute),
		Profiles: services.NewProfileService(store, time.Hour),
		Payments: services.NewPaymentService(db, time.Hour),
	}
}

func newEngine(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	deps := newTestDeps(t, db)
	RegisterRoutes(r, deps, cfg)
	return r, db
}

func serve(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newEngine(t, testConfig())

	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	w = serve(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}
	if !strings.Contains(w.Body.String(), `gateway_http_requests_total{family="ops",method="GET",route="/health",status="200"}`) {
		t.Fatalf("/health not counted under the ops family")
	}

	if w := serve(r, http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newEngine(t, cfg)

	w := serve(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_SessionRoutesUnderBasePath(t *testing.T) {
	r, _ := newEngine(t, testConfig())

	w := serve(r, http.MethodGet, "/api/v1/sessions/s1/status", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"CONNECTED"`) {
		t.Fatalf("status -> %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/v1/sessions/s1/qr", "", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("qr -> %d %q", w.Code, w.Header().Get("Content-Type"))
	}

	w = serve(r, http.MethodPost, "/api/v1/sessions/s1/messages", `{"chatId":"c@c.us","content":"hi"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("send -> %d %s", w.Code, w.Body.String())
	}

	if w := serve(r, http.MethodGet, "/api/v1/endpoints/s1", "", nil); w.Code != http.StatusOK {
		t.Fatalf("endpoints -> %d", w.Code)
	}
}

func TestRegisterRoutes_GzipSkipsWebsocket(t *testing.T) {
	r, _ := newEngine(t, testConfig())

	w := serve(r, http.MethodGet, "/api/v1/endpoints/s1", "", map[string]string{"Accept-Encoding": "gzip"})
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip on JSON routes, got %q", w.Header().Get("Content-Encoding"))
	}

	// Not an upgrade request, so the relay rejects it; the point is that the
	// response was not wrapped by gzip.
	w = serve(r, http.MethodGet, "/api/v1/ws/sessions/s1?user=a&peer=b", "", map[string]string{"Accept-Encoding": "gzip"})
	if w.Header().Get("Content-Encoding") == "gzip" {
		t.Fatalf("websocket route must not be compressed")
	}
}

func TestRegisterRoutes_PerSessionRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.SessionRateRPS = 0.001
	cfg.SessionRateBurst = 1
	r, _ := newEngine(t, cfg)

	if w := serve(r, http.MethodGet, "/api/v1/sessions/busy/status", "", nil); w.Code != http.StatusOK {
		t.Fatalf("first call -> %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/api/v1/sessions/busy/status", "", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second call on same session -> %d", w.Code)
	}
	// Other sessions have their own bucket.
	if w := serve(r, http.MethodGet, "/api/v1/sessions/quiet/status", "", nil); w.Code != http.StatusOK {
		t.Fatalf("other session -> %d", w.Code)
	}
	// Payments are not provider-bound.
	if w := serve(r, http.MethodGet, "/api/v1/users/u1/payments", "", nil); w.Code != http.StatusOK {
		t.Fatalf("payments list -> %d", w.Code)
	}
}

func TestRegisterRoutes_ProfileNeverCached(t *testing.T) {
	r, _ := newEngine(t, testConfig())

	w := serve(r, http.MethodGet, "/api/v1/profile", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("profile without token -> %d", w.Code)
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("profile responses must be no-store, got %q", w.Header().Get("Cache-Control"))
	}
	if h := serve(r, http.MethodGet, "/health", "", nil).Header().Get("Cache-Control"); h == "no-store" {
		t.Fatalf("no-store must be scoped to the profile group")
	}
}

func TestRegisterRoutes_PaymentReplayBypassesRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r, _ := newEngine(t, cfg)

	body := `{"userId":"u1","stripePlanID":"price_1","stripeSessionID":"cs_router","amount":10,
		"paymentDate":"2025-04-01T12:00:00Z","type":"one_time","status":"pending",
		"purchaseType":"plan","pathFrontRedictToCheckPayment":"/ok"}`
	hdr := map[string]string{"X-User-ID": "u1", middleware.HeaderIdempotencyKey: "route-key"}

	w := serve(r, http.MethodPost, "/api/v1/payments", body, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("create -> %d %s", w.Code, w.Body.String())
	}
	var first domain.Payment
	_ = json.Unmarshal(w.Body.Bytes(), &first)

	// Bucket is empty now, but a replay is served anyway.
	w = serve(r, http.MethodPost, "/api/v1/payments", body, hdr)
	if w.Code != http.StatusCreated || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay -> %d %s", w.Code, w.Body.String())
	}
	var again domain.Payment
	_ = json.Unmarshal(w.Body.Bytes(), &again)
	if again.ID != first.ID {
		t.Fatalf("replay returned a different payment")
	}

	// A fresh key is an ordinary request and is limited.
	hdr[middleware.HeaderIdempotencyKey] = "other-key"
	if w := serve(r, http.MethodPost, "/api/v1/payments", body, hdr); w.Code != http.StatusTooManyRequests {
		t.Fatalf("fresh key with empty bucket -> %d", w.Code)
	}
}

func TestRegisterRoutes_InvalidIdempotencyKey(t *testing.T) {
	r, _ := newEngine(t, testConfig())
	w := serve(r, http.MethodPost, "/api/v1/payments", `{}`, map[string]string{middleware.HeaderIdempotencyKey: "bad key!"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRegisterRoutes_IdempotencyLookupError_DoesNotBlock(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	deps := newTestDeps(t, db)
	RegisterRoutes(r, deps, testConfig())

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	w := serve(r, http.MethodGet, "/health", "", map[string]string{middleware.HeaderIdempotencyKey: "force-error"})
	if w.Code != http.StatusOK {
		t.Fatalf("lookup failure must not block the request, got %d", w.Code)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := testConfig()
	if w := serve(mustEngine(t, cfg), http.MethodGet, "/swagger/doc.json", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled -> %d", w.Code)
	}
	cfg.SwaggerEnabled = true
	w := serve(mustEngine(t, cfg), http.MethodGet, "/swagger/doc.json", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"/payments"`) {
		t.Fatalf("swagger doc -> %d", w.Code)
	}
}

func mustEngine(t *testing.T, cfg config.Config) *gin.Engine {
	r, _ := newEngine(t, cfg)
	return r
}

func TestRegisterRoutes_PlainLoggerWhenRedactionOff(t *testing.T) {
	cfg := testConfig()
	cfg.LogRedact = false
	r, _ := newEngine(t, cfg)
	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("pipeline GET /health = %d rid=%q", w.Code, w.Header().Get("X-Request-ID"))
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := serve(r, http.MethodPost, "/echo", "0123456789AB", nil) // 12 bytes
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := serve(r, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
