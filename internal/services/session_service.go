// Package services – SessionService
//
// SessionService fronts the messaging-session provider. It rejects empty
// session ids, reuses recently fetched QR codes from a cache so that polling
// clients do not hammer the provider, assembles chat views from fetched
// messages, and maps provider failures onto service errors.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-session-gateway/internal/cache"
	"github.com/tbourn/go-session-gateway/internal/domain"
	"github.com/tbourn/go-session-gateway/internal/provider"
)

// SessionProvider is the subset of provider.Client used by SessionService.
type SessionProvider interface {
	StartSession(ctx context.Context, sessionID string) (*provider.SessionState, error)
	QRCode(ctx context.Context, sessionID string) ([]byte, string, error)
	Status(ctx context.Context, sessionID string) (*provider.SessionState, error)
	FetchMessages(ctx context.Context, sessionID, chatID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, sessionID string, req provider.SendMessageRequest) (*provider.SendMessageResult, error)
}

// QRImage is a pairing QR code as served by the provider.
type QRImage struct {
	Data        []byte `json:"data"`
	ContentType string `json:"content_type"`
}

// SessionService coordinates provider calls for messaging sessions.
type SessionService struct {
	Provider SessionProvider
	Cache    cache.Store
	// QRTTL is how long a fetched QR image is reused; 0 disables caching.
	QRTTL time.Duration
}

// NewSessionService wires a SessionService.
func NewSessionService(p SessionProvider, c cache.Store, qrTTL time.Duration) *SessionService {
	return &SessionService{Provider: p, Cache: c, QRTTL: qrTTL}
}

func qrKey(sessionID string) string { return "qr:" + sessionID }

// Start asks the provider to start sessionID. Any cached QR code for the
// session is dropped because a restart issues a fresh one.
func (s *SessionService) Start(ctx context.Context, sessionID string) (*provider.SessionState, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Start",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	st, err := s.Provider.StartSession(ctx, sessionID)
	if err != nil {
		return nil, mapProviderErr(err)
	}
	if s.Cache != nil {
		if derr := s.Cache.Delete(ctx, qrKey(sessionID)); derr != nil {
			log.Ctx(ctx).Warn().Err(derr).Str("session_id", sessionID).Msg("qr cache delete failed")
		}
	}
	return st, nil
}

// QRCode returns the pairing QR image for sessionID, from cache when fresh.
func (s *SessionService) QRCode(ctx context.Context, sessionID string) (*QRImage, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "QRCode",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	useCache := s.Cache != nil && s.QRTTL > 0
	if useCache {
		if raw, err := s.Cache.Get(ctx, qrKey(sessionID)); err == nil {
			var img QRImage
			if json.Unmarshal(raw, &img) == nil {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				return &img, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Ctx(ctx).Warn().Err(err).Msg("qr cache read failed")
		}
	}

	data, ct, err := s.Provider.QRCode(ctx, sessionID)
	if err != nil {
		return nil, mapProviderErr(err)
	}
	img := &QRImage{Data: data, ContentType: ct}

	if useCache {
		if raw, err := json.Marshal(img); err == nil {
			if err := s.Cache.Set(ctx, qrKey(sessionID), raw, s.QRTTL); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("qr cache write failed")
			}
		}
	}
	return img, nil
}

// Status returns the provider-side state of sessionID.
func (s *SessionService) Status(ctx context.Context, sessionID string) (*provider.SessionState, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Status",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	st, err := s.Provider.Status(ctx, sessionID)
	if err != nil {
		return nil, mapProviderErr(err)
	}
	return st, nil
}

// Conversation fetches the messages of chatID and returns them as a Chat.
// Participants are collected from senders and receivers in first-seen order;
// the last fetched message becomes the chat's lastMessage.
func (s *SessionService) Conversation(ctx context.Context, sessionID, chatID string) (*domain.Chat, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Conversation",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("chat.id", chatID),
		))
	defer span.End()

	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, ErrEmptyChatID
	}
	msgs, err := s.Provider.FetchMessages(ctx, sessionID, chatID)
	if err != nil {
		return nil, mapProviderErr(err)
	}
	span.SetAttributes(attribute.Int("messages.count", len(msgs)))
	return domain.NewChat(chatID, participantsOf(msgs), msgs...), nil
}

// Send delivers content to chatID through sessionID and returns the message
// as acknowledged by the provider. A single attempt is made.
func (s *SessionService) Send(ctx context.Context, sessionID, chatID, content string) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("chat.id", chatID),
		))
	defer span.End()

	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, ErrEmptyChatID
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	res, err := s.Provider.SendMessage(ctx, sessionID, provider.SendMessageRequest{
		ChatID:      chatID,
		ContentType: "string",
		Content:     content,
	})
	if err != nil {
		return nil, mapProviderErr(err)
	}
	m := res.Message
	if m.Content == "" {
		m.Content = content
	}
	return &m, nil
}

// participantsOf collects distinct senders and receivers by id.
func participantsOf(msgs []domain.Message) []domain.ChatUser {
	seen := make(map[string]bool)
	var users []domain.ChatUser
	add := func(u domain.ChatUser) {
		if u.ID == "" || seen[u.ID] {
			return
		}
		seen[u.ID] = true
		users = append(users, u)
	}
	for _, m := range msgs {
		add(m.Sender)
		add(m.Receiver)
	}
	return users
}

// mapProviderErr converts provider failures into service errors, keeping the
// original error in the chain. Context cancellation passes through untouched.
func mapProviderErr(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, provider.ErrSessionNotFound):
		return fmt.Errorf("%w: %w", ErrSessionNotFound, err)
	case errors.Is(err, provider.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrProviderRejected, err)
	}
}
