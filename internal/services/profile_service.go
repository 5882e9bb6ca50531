// Package services – ProfileService
//
// ProfileService holds the logged-in user's profile, keyed by the profile's
// access token. Entries live no longer than the token's own expiry (read from
// the JWT "exp" claim without verifying the signature) and never longer than
// MaxTTL. Logout discards the entry.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"

	"github.com/tbourn/go-session-gateway/internal/cache"
	"github.com/tbourn/go-session-gateway/internal/domain"
)

// ProfileService stores and retrieves user profiles.
type ProfileService struct {
	Cache  cache.Store
	MaxTTL time.Duration

	now func() time.Time
}

// NewProfileService wires a ProfileService; maxTTL bounds every entry.
func NewProfileService(c cache.Store, maxTTL time.Duration) *ProfileService {
	return &ProfileService{Cache: c, MaxTTL: maxTTL, now: time.Now}
}

// profileKey hashes the token so raw credentials never appear as cache keys.
func profileKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "profile:" + hex.EncodeToString(sum[:])
}

// Put stores p under p.Token and returns the TTL applied.
func (s *ProfileService) Put(ctx context.Context, p domain.UserProfile) (time.Duration, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Put")
	defer span.End()

	p.Token = strings.TrimSpace(p.Token)
	if p.Token == "" || strings.TrimSpace(p.ID) == "" {
		return 0, ErrInvalidProfile
	}
	if strings.TrimSpace(p.Active) != "" && !p.IsActive() {
		return 0, ErrProfileInactive
	}
	ttl, err := s.tokenTTL(p.Token)
	if err != nil {
		return 0, err
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("encode profile: %w", err)
	}
	if err := s.Cache.Set(ctx, profileKey(p.Token), raw, ttl); err != nil {
		return 0, fmt.Errorf("store profile: %w", err)
	}
	return ttl, nil
}

// Get returns the profile stored for token.
func (s *ProfileService) Get(ctx context.Context, token string) (*domain.UserProfile, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Get")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrProfileNotFound
	}
	raw, err := s.Cache.Get(ctx, profileKey(token))
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	var p domain.UserProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// Logout discards the profile held for token. Unknown tokens are not an error.
func (s *ProfileService) Logout(ctx context.Context, token string) error {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Logout")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return s.Cache.Delete(ctx, profileKey(token))
}

// tokenTTL derives the entry lifetime from the token's exp claim. Opaque
// (non-JWT) tokens and tokens without exp get MaxTTL.
func (s *ProfileService) tokenTTL(token string) (time.Duration, error) {
	limit := s.MaxTTL
	if limit <= 0 {
		limit = 12 * time.Hour
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return limit, nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return limit, nil
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	left := exp.Sub(now())
	if left <= 0 {
		return 0, ErrProfileExpired
	}
	if left > limit {
		return limit, nil
	}
	return left, nil
}
