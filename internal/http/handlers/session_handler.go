// Session HTTP handlers.
//
// This file exposes REST endpoints that drive a messaging session on the
// provider:
//   - POST /sessions/{id}                          (start)
//   - GET  /sessions/{id}/qr                       (pairing QR image)
//   - GET  /sessions/{id}/status                   (connection status)
//   - GET  /sessions/{id}/chats/{chatId}/messages  (conversation)
//   - POST /sessions/{id}/messages                 (send)
//   - GET  /endpoints/{id}                         (resolved provider paths)
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-session-gateway/internal/endpoints"
	"github.com/tbourn/go-session-gateway/internal/services"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending a message.
type SendMessageRequest struct {
	ChatID  string `json:"chatId"  binding:"required" example:"5511999999999@c.us"`
	Content string `json:"content" binding:"required" example:"Olá!"`
}

// EndpointsResponse lists the provider paths resolved for one session.
type EndpointsResponse struct {
	SessionID string            `json:"session_id"`
	Paths     map[string]string `json:"paths"`
}

//
// Helpers
//

// sessionParam returns the :id path param exactly as routed; ids reach the
// provider as issued. Only an empty id fails the request.
func sessionParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id is required")
		return "", false
	}
	return id, true
}

// classifySessionErr maps session service errors onto a status, code, and
// client-safe message.
func classifySessionErr(err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrInvalidSessionID),
		errors.Is(err, services.ErrEmptyChatID),
		errors.Is(err, services.ErrEmptyMessage):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "session not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeGatewayTimeout, "provider timed out"
	case errors.Is(err, services.ErrProviderUnavailable):
		return http.StatusBadGateway, ErrCodeBadGateway, "provider unavailable"
	case errors.Is(err, services.ErrProviderRejected):
		return http.StatusBadGateway, ErrCodeBadGateway, "provider rejected the request"
	default:
		return http.StatusInternalServerError, ErrCodeInternal, "internal error"
	}
}

func failSession(c *gin.Context, err error) {
	status, code, msg := classifySessionErr(err)
	failCause(c, status, code, msg, err)
}

//
// Handlers
//

// StartSession godoc
// @ID          startSession
// @Summary     Start a messaging session
// @Description Asks the provider to create (or resume) the session and returns its state.
// @Tags        Sessions
// @Produce     json
// @Param       id   path  string  true  "Session ID"
// @Success     200  {object}  provider.SessionState
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider error"
// @Failure     504  {object}  handlers.ErrorResponse  "Provider timeout"
// @Router      /sessions/{id} [post]
func (h *Handlers) StartSession(c *gin.Context) {
	id, okID := sessionParam(c)
	if !okID {
		return
	}
	st, err := h.sessions.Start(c.Request.Context(), id)
	if err != nil {
		failSession(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// SessionQR godoc
// @ID          sessionQR
// @Summary     Pairing QR code
// @Description Returns the QR image the device must scan to pair the session. Short-lived cache applies.
// @Tags        Sessions
// @Produce     png
// @Param       id   path  string  true  "Session ID"
// @Success     200  {file}    binary
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider error"
// @Router      /sessions/{id}/qr [get]
func (h *Handlers) SessionQR(c *gin.Context) {
	id, okID := sessionParam(c)
	if !okID {
		return
	}
	img, err := h.sessions.QRCode(c.Request.Context(), id)
	if err != nil {
		failSession(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, img.ContentType, img.Data)
}

// SessionStatus godoc
// @ID          sessionStatus
// @Summary     Session status
// @Tags        Sessions
// @Produce     json
// @Param       id   path  string  true  "Session ID"
// @Success     200  {object}  provider.SessionState
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider error"
// @Router      /sessions/{id}/status [get]
func (h *Handlers) SessionStatus(c *gin.Context) {
	id, okID := sessionParam(c)
	if !okID {
		return
	}
	st, err := h.sessions.Status(c.Request.Context(), id)
	if err != nil {
		failSession(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// ChatMessages godoc
// @ID          chatMessages
// @Summary     Conversation with one contact
// @Description Fetches the messages exchanged with chatId and returns them as a chat.
// @Tags        Sessions
// @Produce     json
// @Param       id      path  string  true  "Session ID"
// @Param       chatId  path  string  true  "Chat ID"
// @Success     200  {object}  domain.Chat
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider error"
// @Router      /sessions/{id}/chats/{chatId}/messages [get]
func (h *Handlers) ChatMessages(c *gin.Context) {
	id, okID := sessionParam(c)
	if !okID {
		return
	}
	chat, err := h.sessions.Conversation(c.Request.Context(), id, c.Param("chatId"))
	if err != nil {
		failSession(c, err)
		return
	}
	ok(c, http.StatusOK, chat)
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a text message
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       id    path  string                        true  "Session ID"
// @Param       body  body  handlers.SendMessageRequest   true  "Message payload"
// @Success     201  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider error"
// @Router      /sessions/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	id, okID := sessionParam(c)
	if !okID {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	m, err := h.sessions.Send(c.Request.Context(), id, req.ChatID, req.Content)
	if err != nil {
		failSession(c, err)
		return
	}
	ok(c, http.StatusCreated, m)
}

// Endpoints godoc
// @ID          resolveEndpoints
// @Summary     Resolved provider paths
// @Description Debug view of the endpoint registry for one session id.
// @Tags        Sessions
// @Produce     json
// @Param       id   path  string  true  "Session ID"
// @Success     200  {object}  handlers.EndpointsResponse
// @Router      /endpoints/{id} [get]
func (h *Handlers) Endpoints(c *gin.Context) {
	id, okID := sessionParam(c)
	if !okID {
		return
	}
	ok(c, http.StatusOK, EndpointsResponse{SessionID: id, Paths: endpoints.All(id)})
}
