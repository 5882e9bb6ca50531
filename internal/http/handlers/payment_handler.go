// Payment HTTP handlers.
//
// This file exposes the payment ledger:
//   - POST  /payments               (record; Idempotency-Key aware)
//   - GET   /payments/{id}          (fetch)
//   - PATCH /payments/{id}/status   (lifecycle transition)
//   - GET   /users/{id}/payments    (list, paginated, ETag support)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// create exists for (user, route, key), the handler returns that payment and
// sets `Idempotency-Replayed: true`.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-session-gateway/internal/domain"
	"github.com/tbourn/go-session-gateway/internal/http/middleware"
	"github.com/tbourn/go-session-gateway/internal/services"
)

//
// DTOs
//

// UpdatePaymentStatusRequest moves a payment to a new status. ExpirationDate,
// when set, replaces the stored expiration (subscription renewal).
type UpdatePaymentStatusRequest struct {
	Status         domain.PaymentStatus `json:"status"                   binding:"required" example:"active"`
	ExpirationDate *time.Time           `json:"expirationDate,omitempty" example:"2025-05-01T12:00:00Z"`
}

// ListPaymentsResponse wraps a page of payments and pagination information.
type ListPaymentsResponse struct {
	Payments   []domain.Payment `json:"payments"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// idempotencyKey prefers the key validated by middleware and falls back to
// the raw header when the middleware is not installed.
func idempotencyKey(c *gin.Context) string {
	if k, found := middleware.GetIdempotencyKey(c); found {
		return k
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
}

func paymentIDParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "payment id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// CreatePayment godoc
// @ID          createPayment
// @Summary     Record a payment
// @Description Records a payment for a Stripe checkout session. One payment per checkout session.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Caller ID"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    domain.Payment  true  "Payment"
//
// @Success     201  {object}  domain.Payment
// @Header      201  {string}  Idempotency-Replayed  "true when served from a previous attempt"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid payment"
// @Failure     409  {object}  handlers.ErrorResponse  "Checkout session already recorded"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /payments [post]
func (h *Handlers) CreatePayment(c *gin.Context) {
	ctx := c.Request.Context()
	caller := userID(c)
	scope := middleware.IdempotencyScope(c)

	key := idempotencyKey(c)
	if key != "" {
		if prev, err := h.payments.Replay(ctx, caller, scope, key); err == nil && prev != nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusCreated, prev)
			return
		}
	}

	raw, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read body")
		return
	}
	if err := domain.ValidatePaymentJSON(raw); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	var in domain.Payment
	if err := json.Unmarshal(raw, &in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	p, err := h.payments.Record(ctx, in)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidPayment):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrDuplicatePayment):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	default:
		failCause(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not record payment", err)
		return
	}

	if key != "" {
		if err := h.payments.Remember(ctx, caller, scope, key, p.ID, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("payment_id", p.ID).Msg("idempotency record not stored")
		}
	}
	ok(c, http.StatusCreated, p)
}

// PaymentView is a payment plus the lifecycle stage it is in at read time.
type PaymentView struct {
	domain.Payment
	// pending, active, expired or closed
	Stage string `json:"stage" example:"active"`
}

// GetPayment godoc
// @ID          getPayment
// @Summary     Get a payment
// @Tags        Payments
// @Produce     json
// @Param       id   path  string  true  "Payment ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.PaymentView
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Payment not found"
// @Router      /payments/{id} [get]
func (h *Handlers) GetPayment(c *gin.Context) {
	id, okID := paymentIDParam(c)
	if !okID {
		return
	}
	p, err := h.payments.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "payment not found")
			return
		}
		failCause(c, http.StatusInternalServerError, ErrCodeInternal, "could not load payment", err)
		return
	}
	ok(c, http.StatusOK, PaymentView{Payment: *p, Stage: p.Stage(h.now()).Name()})
}

// UpdatePaymentStatus godoc
// @ID          updatePaymentStatus
// @Summary     Change payment status
// @Description Moves the payment along its lifecycle (pending → paid/active/failed/canceled, active → past_due/canceled/expired, …).
// @Tags        Payments
// @Accept      json
// @Produce     json
// @Param       id    path  string                                true  "Payment ID (UUID)"  format(uuid)
// @Param       body  body  handlers.UpdatePaymentStatusRequest   true  "New status"
// @Success     200  {object}  domain.Payment
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Payment not found"
// @Failure     422  {object}  handlers.ErrorResponse  "Transition not allowed"
// @Router      /payments/{id}/status [patch]
func (h *Handlers) UpdatePaymentStatus(c *gin.Context) {
	id, okID := paymentIDParam(c)
	if !okID {
		return
	}
	var req UpdatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(string(req.Status)) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}

	p, err := h.payments.Transition(c.Request.Context(), id, req.Status, req.ExpirationDate)
	switch {
	case err == nil:
		ok(c, http.StatusOK, p)
	case errors.Is(err, services.ErrPaymentNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "payment not found")
	case errors.Is(err, services.ErrInvalidTransition):
		fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidTransition, err.Error())
	default:
		failCause(c, http.StatusInternalServerError, ErrCodeInternal, "could not update payment", err)
	}
}

// listETag is a weak validator for one page of a user's ledger. It moves
// whenever any of the user's records changes, not only when the count or
// the latest update second does.
func listETag(uid string, page, pageSize int, st domain.PaymentStats) string {
	return fmt.Sprintf(`W/"payments:%s:%dx%d:%d:%s"`, uid, page, pageSize, st.Count, st.Digest)
}

// ListUserPayments godoc
// @ID          listUserPayments
// @Summary     List a user's payments (paginated)
// @Description Newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Payments
// @Produce     json
//
// @Param       id             path    string  true  "User ID"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"payments:u1:1x20:3:9f86d081884c7d65\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListPaymentsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /users/{id}/payments [get]
func (h *Handlers) ListUserPayments(c *gin.Context) {
	ctx := c.Request.Context()
	uid := strings.TrimSpace(c.Param("id"))
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id is required")
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if st, err := h.payments.Stats(ctx, uid); err == nil {
		etag := listETag(uid, page, pageSize, st)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.payments.ListByUser(ctx, uid, page, pageSize)
	if err != nil {
		failCause(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list payments", err)
		return
	}
	ok(c, http.StatusOK, ListPaymentsResponse{
		Payments:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}
