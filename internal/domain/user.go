// Package domain defines the payload shapes exchanged with the messaging-session
// provider, the authentication collaborator, and the billing provider. Only
// the payment ledger and idempotency records are mapped with GORM; the profile
// and chat shapes are never stored by this service.
package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UserProfile is the account holder returned by the authentication
// collaborator. Every field is plain text and none is validated here; ID is
// the only identity the rest of the system relies on.
//
// The profile is held in session state for as long as Token is valid and is
// discarded on logout.
type UserProfile struct {
	// Identity
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Mobile   string `json:"mobile"`
	Phone    string `json:"phone"`

	// Names
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	TradingName string `json:"tradingName"`

	// Address
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood"`
	Province     string `json:"province"`
	City         string `json:"city"`
	Zip          string `json:"zip"`

	// Document identification
	DocumentNumber string `json:"documentNumber"`
	DocumentType   string `json:"documentType"`

	AccountType string `json:"accountType"`
	Active      string `json:"active"`
	Token       string `json:"token"`
}

// IsActive interprets the textual active flag. Common truthy spellings
// ("1", "true", "yes", "y", "on", "active") count as active.
func (u UserProfile) IsActive() bool {
	switch strings.ToLower(strings.TrimSpace(u.Active)) {
	case "1", "true", "yes", "y", "on", "active":
		return true
	default:
		return false
	}
}

// FullName joins first and last names in title case, falling back to the
// trading name and then the username.
func (u UserProfile) FullName() string {
	name := strings.TrimSpace(strings.Join(strings.Fields(u.FirstName+" "+u.LastName), " "))
	if name == "" {
		name = strings.TrimSpace(u.TradingName)
	}
	if name == "" {
		return u.Username
	}
	return cases.Title(language.Und).String(name)
}

// Participant projects the profile onto a chat participant. socketID is the
// presence handle of the current realtime connection, if any.
func (u UserProfile) Participant(socketID string) ChatUser {
	return ChatUser{
		ID:       u.ID,
		SocketID: socketID,
		Username: u.Username,
		Email:    u.Email,
	}
}
