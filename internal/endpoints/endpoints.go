// Package endpoints resolves the relative paths of the remote messaging-session
// service. Every operation is a pure function of a session identifier: the
// identifier is substituted literally into a fixed template, with no trimming,
// escaping, or validation. Callers that need stricter identifiers must check
// them before resolving a path.
//
// The registry is built once at package initialization and never mutated, so
// all functions here are safe for concurrent use.
package endpoints

import "strings"

// Op names one operation exposed by the messaging-session service.
type Op int

const (
	OpCreateSession Op = iota + 1
	OpGetSessionQRCode
	OpCheckStatus
	OpGetMessages
	OpSendMessage
)

// String returns the kebab-case operation name (e.g. "create-session").
func (o Op) String() string {
	if t, ok := templates[o]; ok {
		return t.name
	}
	return "unknown"
}

// template is a path split around the single session-id placeholder.
type template struct {
	name   string
	prefix string
	suffix string
}

func (t template) resolve(sessionID string) string {
	return t.prefix + sessionID + t.suffix
}

// templates is the fixed operation table. No two entries share a template.
var templates = map[Op]template{
	OpCreateSession:    {name: "create-session", prefix: "session/start/"},
	OpGetSessionQRCode: {name: "get-session-qr-code", prefix: "session/qr/", suffix: "/image"},
	OpCheckStatus:      {name: "check-status", prefix: "session/status/"},
	OpGetMessages:      {name: "get-messages", prefix: "chat/fetchMessages/"},
	OpSendMessage:      {name: "send-message", prefix: "client/sendMessage/"},
}

// ordered lists operations in declaration order for stable iteration.
var ordered = []Op{OpCreateSession, OpGetSessionQRCode, OpCheckStatus, OpGetMessages, OpSendMessage}

// CreateSession returns "session/start/{sessionID}".
func CreateSession(sessionID string) string { return templates[OpCreateSession].resolve(sessionID) }

// GetSessionQRCode returns "session/qr/{sessionID}/image".
func GetSessionQRCode(sessionID string) string {
	return templates[OpGetSessionQRCode].resolve(sessionID)
}

// CheckStatus returns "session/status/{sessionID}".
func CheckStatus(sessionID string) string { return templates[OpCheckStatus].resolve(sessionID) }

// GetMessages returns "chat/fetchMessages/{sessionID}".
func GetMessages(sessionID string) string { return templates[OpGetMessages].resolve(sessionID) }

// SendMessage returns "client/sendMessage/{sessionID}".
func SendMessage(sessionID string) string { return templates[OpSendMessage].resolve(sessionID) }

// Resolve returns the path for op and sessionID. The boolean is false only
// when op is not one of the five known operations.
func Resolve(op Op, sessionID string) (string, bool) {
	t, ok := templates[op]
	if !ok {
		return "", false
	}
	return t.resolve(sessionID), true
}

// Ops returns the known operations in a stable order. The returned slice is a
// copy; mutating it does not affect the registry.
func Ops() []Op {
	out := make([]Op, len(ordered))
	copy(out, ordered)
	return out
}

// ParseOp maps a kebab-case name back to its Op (case-insensitive).
func ParseOp(name string) (Op, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, op := range ordered {
		if templates[op].name == name {
			return op, true
		}
	}
	return 0, false
}

// All resolves every operation for sessionID, keyed by operation name.
func All(sessionID string) map[string]string {
	out := make(map[string]string, len(ordered))
	for _, op := range ordered {
		out[op.String()] = templates[op].resolve(sessionID)
	}
	return out
}
