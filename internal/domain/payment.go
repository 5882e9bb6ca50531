package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidPayment wraps every structural or semantic payment validation
// failure so callers can match it with errors.Is.
var ErrInvalidPayment = errors.New("invalid payment")

// PaymentStatus is the billing-provider status of a payment or subscription.
// The set is open: unknown values are carried as-is and Known reports whether
// a value belongs to the vocabulary below.
type PaymentStatus string

const (
	StatusPending  PaymentStatus = "pending"
	StatusPaid     PaymentStatus = "paid"
	StatusActive   PaymentStatus = "active"
	StatusPastDue  PaymentStatus = "past_due"
	StatusCanceled PaymentStatus = "canceled"
	StatusExpired  PaymentStatus = "expired"
	StatusFailed   PaymentStatus = "failed"
)

// Known reports whether s is part of the known status vocabulary.
func (s PaymentStatus) Known() bool {
	switch s {
	case StatusPending, StatusPaid, StatusActive, StatusPastDue, StatusCanceled, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s PaymentStatus) Terminal() bool {
	return s == StatusFailed || s == StatusCanceled || s == StatusExpired
}

// PaymentType discriminates one-off payments from subscriptions.
type PaymentType string

const (
	TypeOneTime      PaymentType = "one_time"
	TypeSubscription PaymentType = "subscription"
)

// Known reports whether t is part of the known type vocabulary.
func (t PaymentType) Known() bool { return t == TypeOneTime || t == TypeSubscription }

// PurchaseType names what was bought.
type PurchaseType string

const (
	PurchasePlan       PurchaseType = "plan"
	PurchaseAdBoost    PurchaseType = "ad_boost"
	PurchaseChatUnlock PurchaseType = "chat_unlock"
)

// Known reports whether p is part of the known purchase vocabulary.
func (p PurchaseType) Known() bool {
	return p == PurchasePlan || p == PurchaseAdBoost || p == PurchaseChatUnlock
}

// Amount is an exact monetary value encoded as a bare JSON number.
type Amount struct {
	decimal.Decimal
}

// NewAmount parses s (e.g. "49.90") into an Amount.
func NewAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{d}, nil
}

// MustAmount is NewAmount that panics on malformed input. Intended for tests
// and constants.
func MustAmount(s string) Amount { return Amount{decimal.RequireFromString(s)} }

// MarshalJSON emits the amount as an unquoted number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// UnmarshalJSON accepts only JSON numbers; quoted strings are rejected.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == '"' || bytes.Equal(b, []byte("null")) {
		return fmt.Errorf("%w: amount must be a number", ErrInvalidPayment)
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("%w: amount: %v", ErrInvalidPayment, err)
	}
	a.Decimal = d
	return nil
}

// Payment records one payment or subscription transaction issued by the
// billing provider. Records are created once and then only move between
// statuses; they are never deleted.
//
// Fields:
//   - ID: internal UUID primary key.
//   - StripeCustomerID / StripePaymentIntentID / StripeSubscriptionID:
//     provider identifiers, present only in some lifecycle stages.
//   - UserID, StripePlanID, StripeSessionID: owner, plan, and checkout session.
//   - Amount: exact amount charged.
//   - PaymentDate / ExpirationDate: when paid and (optionally) until when.
//   - Type, Status, PurchaseType: discriminators (see their types).
//   - PathFrontRedictToCheckPayment: front-end path to redirect to after checkout.
//   - UserIDToChat / AdID: optional targets of chat-unlock and ad purchases.
type Payment struct {
	ID                    string  `json:"id"                              gorm:"type:char(36);primaryKey"`
	StripeCustomerID      *string `json:"stripeCustomerID,omitempty"      gorm:"type:varchar(255)"`
	StripePaymentIntentID *string `json:"stripePaymentIntentID,omitempty" gorm:"type:varchar(255)"`
	StripeSubscriptionID  *string `json:"stripeSubscriptionID,omitempty"  gorm:"type:varchar(255);index"`

	UserID          string `json:"userId"          gorm:"type:varchar(64);not null;index:idx_user_payments,priority:1"`
	StripePlanID    string `json:"stripePlanID"    gorm:"type:varchar(255);not null"`
	StripeSessionID string `json:"stripeSessionID" gorm:"type:varchar(255);not null;uniqueIndex:ux_payment_session"`

	Amount         Amount     `json:"amount"                   gorm:"type:decimal(12,2);not null"`
	PaymentDate    time.Time  `json:"paymentDate"              gorm:"not null;index:idx_user_payments,priority:2"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`

	Type         PaymentType   `json:"type"         gorm:"type:varchar(32);not null"`
	Status       PaymentStatus `json:"status"       gorm:"type:varchar(32);not null;index"`
	PurchaseType PurchaseType  `json:"purchaseType" gorm:"type:varchar(32);not null"`

	PathFrontRedictToCheckPayment string `json:"pathFrontRedictToCheckPayment" gorm:"type:varchar(512);not null"`

	UserIDToChat *string `json:"userIdToChat,omitempty" gorm:"type:varchar(64)"`
	AdID         *string `json:"adId,omitempty"         gorm:"type:varchar(64)"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// TableName returns the database table name for Payment.
func (Payment) TableName() string { return "payments" }

// PaymentStats summarizes one user's ledger for conditional listing.
// Digest changes whenever any record's id, status, expiration date or update
// time changes, even within the same second.
type PaymentStats struct {
	Count        int64
	MaxUpdatedAt *time.Time
	Digest       string
}

// Validate checks a decoded payment: every field named in requiredPaymentText
// must be non-blank and paymentDate must be set. It applies the same text
// rule as ValidatePaymentJSON, so a payload accepted there is accepted here.
func (p Payment) Validate() error {
	var missing []string
	req := map[string]string{
		"userId":                        p.UserID,
		"stripePlanID":                  p.StripePlanID,
		"stripeSessionID":               p.StripeSessionID,
		"type":                          string(p.Type),
		"status":                        string(p.Status),
		"purchaseType":                  string(p.PurchaseType),
		"pathFrontRedictToCheckPayment": p.PathFrontRedictToCheckPayment,
	}
	for k, v := range req {
		if blank(v) {
			missing = append(missing, k)
		}
	}
	if p.PaymentDate.IsZero() {
		missing = append(missing, "paymentDate")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %s", ErrInvalidPayment, strings.Join(missing, ", "))
	}
	return nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// requiredPaymentText lists the fields that must be present as JSON strings.
var requiredPaymentText = []string{
	"userId",
	"stripePlanID",
	"stripeSessionID",
	"paymentDate",
	"type",
	"status",
	"purchaseType",
	"pathFrontRedictToCheckPayment",
}

// ValidatePaymentJSON checks the raw shape of a payment payload: amount must
// be a JSON number and every required text field must be a JSON string that
// is not blank. A whitespace-only value counts as absent, as in Validate.
// Optional fields are not inspected.
func ValidatePaymentJSON(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayment, err)
	}
	if obj == nil {
		return fmt.Errorf("%w: payload must be an object", ErrInvalidPayment)
	}
	if _, ok := obj["amount"].(json.Number); !ok {
		return fmt.Errorf("%w: amount must be a number", ErrInvalidPayment)
	}
	for _, k := range requiredPaymentText {
		v, ok := obj[k].(string)
		if !ok {
			return fmt.Errorf("%w: %s must be text", ErrInvalidPayment, k)
		}
		if blank(v) {
			return fmt.Errorf("%w: missing %s", ErrInvalidPayment, k)
		}
	}
	return nil
}

// CanTransition reports whether a record in status from may move to status to.
// Terminal statuses never move. Re-asserting a non-terminal status is allowed
// (subscription renewals arrive as active → active). Unknown statuses may move
// to anything.
func CanTransition(from, to PaymentStatus) bool {
	if from.Terminal() {
		return false
	}
	if from == to || !from.Known() || !to.Known() {
		return true
	}
	switch from {
	case StatusPending:
		return to != StatusPastDue
	case StatusPaid:
		return to == StatusActive || to == StatusCanceled || to == StatusExpired
	case StatusActive:
		return to == StatusPastDue || to == StatusCanceled || to == StatusExpired
	case StatusPastDue:
		return to == StatusActive || to == StatusCanceled || to == StatusExpired
	}
	return false
}

// PaymentStage is a lifecycle view of a payment. Each variant carries only the
// fields that are meaningful in that stage.
type PaymentStage interface {
	// Name is the stage's wire name: pending, active, expired or closed.
	Name() string
	isPaymentStage()
}

// PendingStage is a checkout that has not been confirmed yet.
type PendingStage struct {
	SessionID string
}

// ActiveStage is a paid one-off purchase or a running subscription.
type ActiveStage struct {
	SubscriptionID string
	Expires        *time.Time
}

// ExpiredStage is a purchase whose validity window has passed.
type ExpiredStage struct {
	ExpiredAt time.Time
}

// ClosedStage is a failed or canceled record.
type ClosedStage struct {
	Status PaymentStatus
}

func (PendingStage) isPaymentStage() {}
func (ActiveStage) isPaymentStage()  {}
func (ExpiredStage) isPaymentStage() {}
func (ClosedStage) isPaymentStage()  {}

func (PendingStage) Name() string { return "pending" }
func (ActiveStage) Name() string  { return "active" }
func (ExpiredStage) Name() string { return "expired" }
func (ClosedStage) Name() string  { return "closed" }

// Stage classifies the payment at instant now. Unknown statuses are treated as
// pending unless their expiration date has passed.
func (p Payment) Stage(now time.Time) PaymentStage {
	switch p.Status {
	case StatusFailed, StatusCanceled:
		return ClosedStage{Status: p.Status}
	case StatusExpired:
		at := now
		if p.ExpirationDate != nil {
			at = *p.ExpirationDate
		} else if p.UpdatedAt != nil {
			at = *p.UpdatedAt
		}
		return ExpiredStage{ExpiredAt: at}
	}

	if p.ExpirationDate != nil && !now.Before(*p.ExpirationDate) {
		return ExpiredStage{ExpiredAt: *p.ExpirationDate}
	}

	switch p.Status {
	case StatusPaid, StatusActive, StatusPastDue:
		st := ActiveStage{Expires: p.ExpirationDate}
		if p.StripeSubscriptionID != nil {
			st.SubscriptionID = *p.StripeSubscriptionID
		}
		return st
	default:
		return PendingStage{SessionID: p.StripeSessionID}
	}
}
