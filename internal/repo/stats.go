// Package repo implements the data persistence layer for the payment ledger.
// This file provides the aggregate query behind the payment listing ETag.
package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-session-gateway/internal/domain"
)

// digestLen is the number of hex characters of the SHA-256 kept in an ETag.
const digestLen = 16

// PaymentsStats summarizes the payments owned by userID. The digest covers
// every record's id, status, expiration date and update time in id order,
// so a status change is visible even when UpdatedAt did not move.
// When the user has no payments the result is the zero value.
func PaymentsStats(ctx context.Context, db *gorm.DB, userID string) (domain.PaymentStats, error) {
	var rows []struct {
		ID             string
		Status         string
		ExpirationDate *time.Time
		UpdatedAt      *time.Time
	}
	if err := db.WithContext(ctx).Model(&domain.Payment{}).
		Select("id", "status", "expiration_date", "updated_at").
		Where("user_id = ?", userID).
		Order("id").
		Scan(&rows).Error; err != nil {
		return domain.PaymentStats{}, err
	}
	if len(rows) == 0 {
		return domain.PaymentStats{}, nil
	}

	h := sha256.New()
	var st domain.PaymentStats
	for i := range rows {
		r := &rows[i]
		fmt.Fprintf(h, "%s|%s|%d|%d\n", r.ID, r.Status, unixNano(r.UpdatedAt), unixNano(r.ExpirationDate))
		if r.UpdatedAt != nil && (st.MaxUpdatedAt == nil || r.UpdatedAt.After(*st.MaxUpdatedAt)) {
			st.MaxUpdatedAt = r.UpdatedAt
		}
	}
	st.Count = int64(len(rows))
	st.Digest = hex.EncodeToString(h.Sum(nil))[:digestLen]
	return st, nil
}

func unixNano(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}
