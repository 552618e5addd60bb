// Package event defines the wire frames pushed to live connections.
// Every frame carries a "type" discriminator so clients can switch on it.
package event

import (
	"time"

	"opschat/domain"
)

type Frame interface {
	EventType() string
}

// Presence signals a user going online or offline.
type Presence struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

func NewPresence(userID string, online bool) Presence {
	return Presence{Type: "presence", UserID: userID, Online: online}
}

func (p Presence) EventType() string { return p.Type }

// MessageReceived carries a freshly persisted message to a live recipient,
// and echoes it to the sender's other devices.
type MessageReceived struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

func NewMessageReceived(m domain.Message) MessageReceived {
	return MessageReceived{Type: "message", Message: m}
}

func (m MessageReceived) EventType() string { return m.Type }

// Delivered notifies a sender that one of their messages reached the
// recipient. Emitted once per message, either on the hot path or during
// reconnect reconciliation.
type Delivered struct {
	Type        string    `json:"type"`
	MessageID   string    `json:"messageId"`
	To          string    `json:"to"`
	From        string    `json:"from"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

func NewDelivered(m domain.Message) Delivered {
	var at time.Time
	if m.DeliveredAt != nil {
		at = *m.DeliveredAt
	}
	return Delivered{
		Type:        "delivered",
		MessageID:   m.ID.String(),
		To:          m.ToUserID,
		From:        m.FromUserID,
		DeliveredAt: at,
	}
}

func (d Delivered) EventType() string { return d.Type }

// ConversationRead notifies a sender that the counterpart read their
// messages. One aggregate frame per read signal, never one per message,
// so notification volume stays independent of backlog size.
type ConversationRead struct {
	Type          string    `json:"type"`
	From          string    `json:"from"`
	With          string    `json:"with"`
	ReadAt        time.Time `json:"readAt"`
	ModifiedCount int       `json:"modifiedCount"`
}

func NewConversationRead(readerID, counterpartID string, at time.Time, count int) ConversationRead {
	return ConversationRead{
		Type:          "read",
		From:          readerID,
		With:          counterpartID,
		ReadAt:        at,
		ModifiedCount: count,
	}
}

func (r ConversationRead) EventType() string { return r.Type }
