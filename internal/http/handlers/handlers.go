// Package handlers provides the HTTP handlers of the session gateway.
//
// Handlers are transport-thin: they validate path/query/body input, call the
// application services through the interfaces below, and translate results
// into HTTP responses using the shared envelope in response.go.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-session-gateway/internal/domain"
	"github.com/tbourn/go-session-gateway/internal/http/middleware"
	"github.com/tbourn/go-session-gateway/internal/provider"
	"github.com/tbourn/go-session-gateway/internal/services"
	"github.com/tbourn/go-session-gateway/internal/utils"
)

//
// Service contracts (context-aware)
//

// SessionService drives messaging sessions on the provider.
type SessionService interface {
	Start(ctx context.Context, sessionID string) (*provider.SessionState, error)
	QRCode(ctx context.Context, sessionID string) (*services.QRImage, error)
	Status(ctx context.Context, sessionID string) (*provider.SessionState, error)
	Conversation(ctx context.Context, sessionID, chatID string) (*domain.Chat, error)
	Send(ctx context.Context, sessionID, chatID, content string) (*domain.Message, error)
}

// ProfileService holds logged-in user profiles keyed by token.
type ProfileService interface {
	Put(ctx context.Context, p domain.UserProfile) (time.Duration, error)
	Get(ctx context.Context, token string) (*domain.UserProfile, error)
	Logout(ctx context.Context, token string) error
}

// PaymentService is the payment ledger.
type PaymentService interface {
	Record(ctx context.Context, p domain.Payment) (*domain.Payment, error)
	Get(ctx context.Context, id string) (*domain.Payment, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Payment, int64, error)
	Transition(ctx context.Context, id string, to domain.PaymentStatus, expiration *time.Time) (*domain.Payment, error)
	Stats(ctx context.Context, userID string) (domain.PaymentStats, error)
	Replay(ctx context.Context, userID, scope, key string) (*domain.Payment, error)
	Remember(ctx context.Context, userID, scope, key, paymentID string, status int) error
}

//
// Handler wiring
//

// Handlers groups the gateway endpoints.
type Handlers struct {
	sessions SessionService
	profiles ProfileService
	payments PaymentService

	// AllowedOrigins restricts websocket upgrades; empty allows any origin.
	AllowedOrigins []string

	// now classifies payment stages; tests pin it.
	now func() time.Time
}

// New constructs Handlers bound to the given services.
func New(sessions SessionService, profiles ProfileService, payments PaymentService) *Handlers {
	return &Handlers{sessions: sessions, profiles: profiles, payments: payments, now: time.Now}
}

// userID resolves the caller the same way the idempotency middleware does,
// so replays are scoped to the identity that stored them.
func userID(c *gin.Context) string { return middleware.UserID(c) }

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	pages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}

// clampPagination parses page/page_size with defaults and caps.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.PageParams(c.Query("page"), c.Query("page_size"))
}
