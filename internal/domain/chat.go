package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrLastMessageNotInChat is returned when a last-message reference does not
// name a message contained in the chat.
var ErrLastMessageNotInChat = errors.New("last message is not part of the chat")

// ChatUser identifies one participant of a chat together with its presence
// handle on the realtime transport.
type ChatUser struct {
	ID       string  `json:"id"`
	SocketID string  `json:"socket_id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Avatar   *string `json:"avatar,omitempty"`
}

// DisplayName returns a title-cased username, or the email when no username
// is known.
func (u ChatUser) DisplayName() string {
	if n := strings.TrimSpace(u.Username); n != "" {
		return cases.Title(language.Und).String(n)
	}
	return u.Email
}

// Message is a single chat message. Sender and Receiver are always complete
// participant values, never bare identifiers.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    ChatUser  `json:"sender"`
	Receiver  ChatUser  `json:"receiver"`
	CreatedAt time.Time `json:"createdAt"`
}

// Chat groups participants and an append-only, chronological message list.
//
// The most recent message is tracked as a position into the message list
// rather than a copy, so it can never disagree with the list. The zero value
// is an empty chat with no last message.
type Chat struct {
	ID    string
	Users []ChatUser

	messages []Message
	// last is the index+1 of the last message; 0 means none.
	last int
}

// NewChat builds a chat from existing messages. When msgs is non-empty the
// final element becomes the last message.
func NewChat(id string, users []ChatUser, msgs ...Message) *Chat {
	c := &Chat{ID: id, Users: users}
	if len(msgs) > 0 {
		c.messages = append([]Message(nil), msgs...)
		c.last = len(c.messages)
	}
	return c
}

// Append adds m to the end of the chat and makes it the last message.
func (c *Chat) Append(m Message) {
	c.messages = append(c.messages, m)
	c.last = len(c.messages)
}

// Messages returns a copy of the chat's messages in order.
func (c *Chat) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

// Len reports the number of messages.
func (c *Chat) Len() int { return len(c.messages) }

// LastMessage returns the cached most recent message.
func (c *Chat) LastMessage() (Message, bool) {
	if c.last <= 0 || c.last > len(c.messages) {
		return Message{}, false
	}
	return c.messages[c.last-1], true
}

// SetLastMessage points the last-message cursor at the message with id.
func (c *Chat) SetLastMessage(id string) error {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			c.last = i + 1
			return nil
		}
	}
	return ErrLastMessageNotInChat
}

// ClearLastMessage removes the last-message reference.
func (c *Chat) ClearLastMessage() { c.last = 0 }

// Participant returns the chat user with the given id.
func (c *Chat) Participant(id string) (ChatUser, bool) {
	for _, u := range c.Users {
		if u.ID == id {
			return u, true
		}
	}
	return ChatUser{}, false
}

// chatJSON is the wire form: lastMessage is a full object.
type chatJSON struct {
	ID          string     `json:"id"`
	Users       []ChatUser `json:"users"`
	Messages    []Message  `json:"messages"`
	LastMessage *Message   `json:"lastMessage,omitempty"`
}

// MarshalJSON encodes the chat with lastMessage expanded.
func (c Chat) MarshalJSON() ([]byte, error) {
	out := chatJSON{ID: c.ID, Users: c.Users, Messages: c.messages}
	if out.Users == nil {
		out.Users = []ChatUser{}
	}
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	if m, ok := c.LastMessage(); ok {
		out.LastMessage = &m
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire form. A lastMessage whose id is not in
// messages is rejected with ErrLastMessageNotInChat.
func (c *Chat) UnmarshalJSON(b []byte) error {
	var in chatJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*c = Chat{ID: in.ID, Users: in.Users, messages: in.Messages}
	if in.LastMessage == nil {
		return nil
	}
	return c.SetLastMessage(in.LastMessage.ID)
}

// FirstAccess is the notification sent once when a connection between two
// participants is established. It is never stored.
type FirstAccess struct {
	Message string   `json:"message"`
	From    ChatUser `json:"from"`
	To      ChatUser `json:"to"`
}

// NewFirstAccess builds the notification with a default human-readable text.
func NewFirstAccess(from, to ChatUser) FirstAccess {
	return FirstAccess{
		Message: from.DisplayName() + " started a conversation with " + to.DisplayName(),
		From:    from,
		To:      to,
	}
}
