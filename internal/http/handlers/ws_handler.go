// Realtime relay.
//
//   - GET /ws/sessions/{id}?user=<id>&peer=<id>
//
// The connection is upgraded to a websocket. The first frame announces the
// conversation (FirstAccess); afterwards every inbound {"chatId","content"}
// frame is sent through the session and answered with the sent message or an
// error frame. One reader and one writer per connection; nothing is fanned
// out to other connections.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-session-gateway/internal/domain"
	"github.com/tbourn/go-session-gateway/internal/http/middleware"
	"github.com/tbourn/go-session-gateway/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 16
)

// Frame types written to the client.
const (
	FrameFirstAccess = "first_access"
	FrameMessage     = "message"
	FrameError       = "error"
)

// RelayFrame is the envelope of every frame written by the relay.
type RelayFrame struct {
	Type  string         `json:"type"`
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// RelayRequest is one inbound frame.
type RelayRequest struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

func (h *Handlers) upgrader() *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(h.AllowedOrigins))
	for _, o := range h.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			_, found := allowed[r.Header.Get("Origin")]
			return found
		},
	}
}

// participant resolves one side of the conversation. The caller is taken
// from a stored profile when the request carries its token; otherwise both
// sides are built from the query.
func (h *Handlers) participant(c *gin.Context, idKey, nameKey, socketID string, useProfile bool) domain.ChatUser {
	if useProfile && h.profiles != nil {
		tok := bearerToken(c)
		if tok == "" {
			tok = strings.TrimSpace(c.Query("token"))
		}
		if tok != "" {
			if p, err := h.profiles.Get(c.Request.Context(), tok); err == nil {
				return p.Participant(socketID)
			}
		}
	}
	return domain.ChatUser{
		ID:       strings.TrimSpace(c.Query(idKey)),
		SocketID: socketID,
		Username: strings.TrimSpace(c.Query(nameKey)),
	}
}

// Relay godoc
// @ID          relay
// @Summary     Realtime message relay (websocket)
// @Description Upgrades to a websocket. First frame: first_access; then each {"chatId","content"} frame is sent and answered with a message or error frame.
// @Tags        Sessions
// @Param       id         path   string  true   "Session ID"
// @Param       user       query  string  false  "Caller participant id (ignored when a profile token is supplied)"
// @Param       user_name  query  string  false  "Caller display name"
// @Param       peer       query  string  true   "Peer participant id"
// @Param       peer_name  query  string  false  "Peer display name"
// @Param       token      query  string  false  "Profile token (browsers cannot set Authorization on upgrades)"
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /ws/sessions/{id} [get]
func (h *Handlers) Relay(c *gin.Context) {
	sessionID, okID := sessionParam(c)
	if !okID {
		return
	}
	connID := uuid.NewString()
	from := h.participant(c, "user", "user_name", connID, true)
	to := h.participant(c, "peer", "peer_name", "", false)
	if from.ID == "" || to.ID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user and peer are required")
		return
	}

	lg := middleware.LoggerFrom(c).With().
		Str("session_id", sessionID).
		Str("conn_id", connID).
		Str("trace_id", observability.TraceID(c.Request.Context())).
		Logger()

	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		lg.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	defer middleware.TrackRelay()()

	// The request context ends when the handler returns; the relay owns its
	// own lifetime from here on.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	r := &relay{
		conn:      conn,
		send:      make(chan RelayFrame, sendBuffer),
		sessions:  h.sessions,
		sessionID: sessionID,
		log:       lg,
	}
	r.send <- RelayFrame{Type: FrameFirstAccess, Data: domain.NewFirstAccess(from, to)}
	lg.Info().Str("from", from.ID).Str("to", to.ID).Msg("relay opened")

	go r.writePump()
	r.readPump(ctx)
	cancel()
	lg.Info().Msg("relay closed")
}

// relay serves one websocket connection.
type relay struct {
	conn      *websocket.Conn
	send      chan RelayFrame
	sessions  SessionService
	sessionID string
	log       zerolog.Logger
}

// readPump reads inbound frames until the peer goes away, relaying each one
// synchronously. It closes send on exit, which stops writePump.
func (r *relay) readPump(ctx context.Context) {
	defer close(r.send)

	r.conn.SetReadLimit(maxMessageSize)
	_ = r.conn.SetReadDeadline(time.Now().Add(pongWait))
	r.conn.SetPongHandler(func(string) error {
		return r.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.log.Warn().Err(err).Msg("relay read failed")
			}
			return
		}
		r.send <- r.handle(ctx, raw)
	}
}

func (r *relay) handle(ctx context.Context, raw []byte) RelayFrame {
	var req RelayRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorFrame(ErrCodeBadRequest, "frame must be {\"chatId\",\"content\"}")
	}
	m, err := r.sessions.Send(ctx, r.sessionID, req.ChatID, req.Content)
	if err != nil {
		status, code, msg := classifySessionErr(err)
		if status >= http.StatusInternalServerError {
			r.log.Error().Err(err).Str("code", code).Msg("relay send failed")
		}
		resp := newErrorResponse(status, code, msg, err)
		return RelayFrame{Type: FrameError, Error: &resp}
	}
	return RelayFrame{Type: FrameMessage, Data: m}
}

// writePump is the only writer on the connection: queued frames and pings.
func (r *relay) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = r.conn.Close()
	}()

	for {
		select {
		case f, open := <-r.send:
			_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				_ = r.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := r.conn.WriteJSON(f); err != nil {
				r.log.Warn().Err(err).Msg("relay write failed")
				r.abandon()
				return
			}
		case <-ticker.C:
			_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := r.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				r.abandon()
				return
			}
		}
	}
}

// abandon closes the connection, which unblocks readPump, and drains send
// until readPump closes it.
func (r *relay) abandon() {
	_ = r.conn.Close()
	for range r.send {
	}
}

func errorFrame(code, msg string) RelayFrame {
	return RelayFrame{Type: FrameError, Error: &ErrorResponse{Code: code, Message: msg}}
}
