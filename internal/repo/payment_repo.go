// Package repo implements the data persistence layer for the payment ledger.
// This file provides repository functions for the Payment model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the thin-repository approach:
// no lifecycle rules live here (see services.PaymentService), only
// persistence and query composition. There is deliberately no delete.
//
// Error semantics:
//   - Missing rows yield ErrNotFound (gorm.ErrRecordNotFound).
//   - A second payment for the same Stripe checkout session yields ErrDuplicate.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-session-gateway/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// CreatePayment inserts p as-is. The caller assigns the ID. CreatedAt and
// UpdatedAt are set to now (UTC) when nil.
func CreatePayment(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	now := time.Now().UTC()
	if p.CreatedAt == nil {
		p.CreatedAt = &now
	}
	if p.UpdatedAt == nil {
		p.UpdatedAt = &now
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetPayment fetches a payment by id.
func GetPayment(ctx context.Context, db *gorm.DB, id string) (*domain.Payment, error) {
	var p domain.Payment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPaymentBySession fetches the payment recorded for a Stripe checkout session.
func GetPaymentBySession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Payment, error) {
	var p domain.Payment
	if err := db.WithContext(ctx).Where("stripe_session_id = ?", sessionID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CountPayments returns the number of payments owned by userID.
func CountPayments(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListPaymentsPage returns a page of userID's payments, newest payment date
// first (ties broken by id for stable paging).
func ListPaymentsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Payment, error) {
	var out []domain.Payment
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("payment_date desc").
		Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdatePaymentStatus sets status (and expiration, when non-nil) on payment
// id and bumps UpdatedAt. It returns ErrNotFound if no row matched.
func UpdatePaymentStatus(ctx context.Context, db *gorm.DB, id string, status domain.PaymentStatus, expiration *time.Time) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if expiration != nil {
		updates["expiration_date"] = expiration.UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation recognizes unique-constraint failures across drivers.
// glebarez/sqlite often returns plain-text errors; postgres is translated
// to gorm.ErrDuplicatedKey via TranslateError.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}
