// Package services defines the business logic for messaging sessions, user
// profiles, and the payment ledger. This file centralizes service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// Translation into HTTP status codes is performed in the handlers package.
package services

import "errors"

// Session-related errors.
var (
	// ErrInvalidSessionID is returned for an empty session identifier.
	ErrInvalidSessionID = errors.New("session id is empty")

	// ErrSessionNotFound indicates that the provider does not know the session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrProviderUnavailable wraps provider transport failures and 5xx answers.
	ErrProviderUnavailable = errors.New("messaging provider unavailable")

	// ErrProviderRejected means the provider refused the gateway's credentials
	// or returned an error the gateway cannot map more precisely.
	ErrProviderRejected = errors.New("messaging provider rejected the request")

	// ErrEmptyChatID is returned when a chat-scoped call has no chat id.
	ErrEmptyChatID = errors.New("chat id is empty")

	// ErrEmptyMessage is returned when outgoing content is blank.
	ErrEmptyMessage = errors.New("message content is empty")
)

// Profile-related errors.
var (
	// ErrInvalidProfile is returned for a profile without a token or id.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrProfileExpired is returned when the profile token's exp is in the past.
	ErrProfileExpired = errors.New("profile token expired")

	// ErrProfileInactive is returned when the profile is explicitly inactive.
	ErrProfileInactive = errors.New("profile is not active")

	// ErrProfileNotFound indicates no profile is held for the token.
	ErrProfileNotFound = errors.New("profile not found")
)

// Payment-related errors.
var (
	// ErrPaymentNotFound indicates that the requested payment does not exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrDuplicatePayment is returned when a checkout session was already recorded.
	ErrDuplicatePayment = errors.New("payment already recorded for this checkout session")

	// ErrInvalidTransition is returned when a status change breaks the lifecycle.
	ErrInvalidTransition = errors.New("invalid payment status transition")
)
