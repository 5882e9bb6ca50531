// Package services – PaymentService
//
// PaymentService owns the payment ledger. A payment is recorded once per
// Stripe checkout session, then only moves between statuses along the
// lifecycle enforced by domain.CanTransition. Records are never deleted.
//
// It also fronts the idempotency store used by POST /payments so that a
// retried request returns the payment created by the first attempt.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-session-gateway/internal/domain"
	"github.com/tbourn/go-session-gateway/internal/repo"
	"github.com/tbourn/go-session-gateway/internal/utils"
)

// PaymentService coordinates payment persistence and lifecycle rules.
type PaymentService struct {
	DB *gorm.DB
	// IdempotencyTTL bounds how long a replayable key is remembered.
	IdempotencyTTL time.Duration
}

// NewPaymentService wires a PaymentService.
func NewPaymentService(db *gorm.DB, idemTTL time.Duration) *PaymentService {
	return &PaymentService{DB: db, IdempotencyTTL: idemTTL}
}

// Record validates p, assigns a fresh id, and stores it. A second payment for
// the same StripeSessionID yields ErrDuplicatePayment.
func (s *PaymentService) Record(ctx context.Context, p domain.Payment) (*domain.Payment, error) {
	ctx, span := otel.Tracer("services/PaymentService").Start(ctx, "Record",
		trace.WithAttributes(
			attribute.String("user.id", p.UserID),
			attribute.String("payment.status", string(p.Status)),
		))
	defer span.End()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.ID = uuid.NewString()
	p.PaymentDate = p.PaymentDate.UTC()
	p.CreatedAt, p.UpdatedAt = nil, nil

	if err := repo.CreatePayment(ctx, s.DB, &p); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicatePayment
		}
		return nil, err
	}
	return &p, nil
}

// Get returns payment id.
func (s *PaymentService) Get(ctx context.Context, id string) (*domain.Payment, error) {
	ctx, span := otel.Tracer("services/PaymentService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("payment.id", id)))
	defer span.End()

	p, err := repo.GetPayment(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// ListByUser returns one page of userID's payments and the total count.
func (s *PaymentService) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Payment, int64, error) {
	ctx, span := otel.Tracer("services/PaymentService").Start(ctx, "ListByUser",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}

	total, err := repo.CountPayments(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Payment{}, 0, nil
	}
	items, err := repo.ListPaymentsPage(ctx, s.DB, userID, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// Transition moves payment id to status to. A non-nil expiration replaces
// the stored expiration date (subscription renewal). The read-check-write
// runs in one transaction.
func (s *PaymentService) Transition(ctx context.Context, id string, to domain.PaymentStatus, expiration *time.Time) (*domain.Payment, error) {
	ctx, span := otel.Tracer("services/PaymentService").Start(ctx, "Transition",
		trace.WithAttributes(
			attribute.String("payment.id", id),
			attribute.String("payment.to", string(to)),
		))
	defer span.End()

	if to == "" {
		return nil, fmt.Errorf("%w: empty status", ErrInvalidTransition)
	}

	var out *domain.Payment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := repo.GetPayment(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		if !domain.CanTransition(cur.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
		}
		if err := repo.UpdatePaymentStatus(ctx, tx, id, to, expiration); err != nil {
			return err
		}
		out, err = repo.GetPayment(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stats summarizes userID's ledger for the listing ETag.
func (s *PaymentService) Stats(ctx context.Context, userID string) (domain.PaymentStats, error) {
	return repo.PaymentsStats(ctx, s.DB, userID)
}

// Replay returns the payment previously created under (userID, scope, key),
// or (nil, nil) when no live record exists.
func (s *PaymentService) Replay(ctx context.Context, userID, scope, key string) (*domain.Payment, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := repo.GetPayment(ctx, s.DB, rec.ResourceID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// Remember links (userID, scope, key) to paymentID for later replays. A
// concurrent duplicate is not an error.
func (s *PaymentService) Remember(ctx context.Context, userID, scope, key, paymentID string, status int) error {
	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, scope, key, paymentID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// HasReplay reports whether a live idempotency record exists. It matches the
// middleware.IdempotencyLookup signature.
func (s *PaymentService) HasReplay(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// PurgeIdempotency drops expired idempotency records.
func (s *PaymentService) PurgeIdempotency(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, time.Now().UTC())
}
