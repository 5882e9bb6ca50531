// Package provider is the HTTP transport to the remote messaging-session
// service. Request paths come exclusively from the endpoints registry; this
// package adds the base URL, the API key header, JSON encoding, and error
// mapping.
//
// Calls are not retried. Every call is traced with OpenTelemetry and counted
// in Prometheus (see metrics.go).
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-session-gateway/internal/domain"
	"github.com/tbourn/go-session-gateway/internal/endpoints"
)

// HeaderAPIKey carries the provider API key.
const HeaderAPIKey = "x-api-key"

// maxErrorBody caps how much of an error response body is kept.
const maxErrorBody = 4 << 10

// Client calls the messaging-session provider.
type Client struct {
	// BaseURL is the provider root, e.g. "http://wa-api:3000".
	BaseURL string
	// APIKey is sent as x-api-key when non-empty.
	APIKey string
	// HTTP is the underlying client; http.DefaultClient when nil.
	HTTP *http.Client
}

// New returns a Client with its own http.Client bounded by timeout.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// SessionState is the provider's answer to start and status calls.
type SessionState struct {
	Success bool   `json:"success"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
}

// Connected reports whether the session is authenticated and usable.
func (s SessionState) Connected() bool { return strings.EqualFold(s.State, "CONNECTED") }

// SendMessageRequest is the body of a send-message call.
type SendMessageRequest struct {
	ChatID      string `json:"chatId"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// SendMessageResult is the provider's answer to a send-message call.
type SendMessageResult struct {
	Success bool           `json:"success"`
	Message domain.Message `json:"message"`
}

// wireContact is the participant shape used by the provider.
type wireContact struct {
	ID       string `json:"id"`
	Name     string `json:"notifyName"`
	Email    string `json:"email,omitempty"`
	SocketID string `json:"socketId,omitempty"`
}

// wireMessage is the provider's message representation.
type wireMessage struct {
	ID struct {
		Serialized string `json:"_serialized"`
	} `json:"id"`
	Body      string      `json:"body"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Timestamp int64       `json:"timestamp"`
	Sender    wireContact `json:"sender"`
	Receiver  wireContact `json:"receiver"`
}

func (w wireMessage) toDomain() domain.Message {
	from := domain.ChatUser{ID: w.From, Username: w.Sender.Name, Email: w.Sender.Email, SocketID: w.Sender.SocketID}
	to := domain.ChatUser{ID: w.To, Username: w.Receiver.Name, Email: w.Receiver.Email, SocketID: w.Receiver.SocketID}
	return domain.Message{
		ID:        w.ID.Serialized,
		Content:   w.Body,
		Sender:    from,
		Receiver:  to,
		CreatedAt: time.Unix(w.Timestamp, 0).UTC(),
	}
}

// StartSession asks the provider to create (or resume) sessionID.
func (c *Client) StartSession(ctx context.Context, sessionID string) (*SessionState, error) {
	var out SessionState
	if _, _, err := c.do(ctx, endpoints.OpCreateSession, sessionID, http.MethodGet, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns the provider-side state of sessionID.
func (c *Client) Status(ctx context.Context, sessionID string) (*SessionState, error) {
	var out SessionState
	if _, _, err := c.do(ctx, endpoints.OpCheckStatus, sessionID, http.MethodGet, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QRCode returns the pairing QR image and its content type.
func (c *Client) QRCode(ctx context.Context, sessionID string) ([]byte, string, error) {
	body, hdr, err := c.do(ctx, endpoints.OpGetSessionQRCode, sessionID, http.MethodGet, nil, nil)
	if err != nil {
		return nil, "", err
	}
	ct := hdr.Get("Content-Type")
	if ct == "" {
		ct = "image/png"
	}
	return body, ct, nil
}

// FetchMessages lists the messages of chatID within sessionID.
func (c *Client) FetchMessages(ctx context.Context, sessionID, chatID string) ([]domain.Message, error) {
	var out struct {
		Success  bool          `json:"success"`
		Messages []wireMessage `json:"messages"`
	}
	in := map[string]string{"chatId": chatID}
	if _, _, err := c.do(ctx, endpoints.OpGetMessages, sessionID, http.MethodPost, in, &out); err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, m.toDomain())
	}
	return msgs, nil
}

// SendMessage delivers req through sessionID. A single attempt is made.
func (c *Client) SendMessage(ctx context.Context, sessionID string, req SendMessageRequest) (*SendMessageResult, error) {
	if req.ContentType == "" {
		req.ContentType = "string"
	}
	var out struct {
		Success bool        `json:"success"`
		Message wireMessage `json:"message"`
	}
	if _, _, err := c.do(ctx, endpoints.OpSendMessage, sessionID, http.MethodPost, req, &out); err != nil {
		return nil, err
	}
	return &SendMessageResult{Success: out.Success, Message: out.Message.toDomain()}, nil
}

// do performs one provider call. When out is non-nil the response body is
// decoded into it; the raw body is always returned.
func (c *Client) do(ctx context.Context, op endpoints.Op, sessionID, method string, in, out any) ([]byte, http.Header, error) {
	path, _ := endpoints.Resolve(op, sessionID)

	ctx, span := otel.Tracer("provider/Client").Start(ctx, op.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("provider.path", path),
		),
	)
	defer span.End()

	start := time.Now()
	status := "error"
	defer func() {
		providerReqs.WithLabelValues(op.String(), status).Inc()
		providerLat.WithLabelValues(op.String()).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, nil, &Error{Op: op, Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+"/"+path, body)
	if err != nil {
		span.RecordError(err)
		return nil, nil, &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set(HeaderAPIKey, c.APIKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		log.Warn().Err(err).Str("op", op.String()).Str("session_id", sessionID).Msg("provider call failed")
		return nil, nil, &Error{Op: op, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, nil, &Error{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &Error{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
		span.SetStatus(codes.Error, perr.Error())
		log.Debug().Str("op", op.String()).Int("status", resp.StatusCode).Str("session_id", sessionID).Msg("provider error response")
		return nil, nil, perr
	}

	// The provider answers some failures with 200 and {"success":false}.
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var env struct {
			Success *bool `json:"success"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Success != nil && !*env.Success {
			perr := &Error{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
			span.SetStatus(codes.Error, perr.Error())
			return nil, nil, perr
		}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			span.RecordError(err)
			return nil, nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
		}
	}
	return raw, resp.Header, nil
}

// errorMessage extracts a short message from an error body: the "error" or
// "message" JSON field when present, else the (truncated) raw text.
func errorMessage(raw []byte) string {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &env) == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	return strings.TrimSpace(string(raw))
}
