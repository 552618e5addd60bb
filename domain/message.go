// Package domain contains core concepts of the operator chat subsystem.
// This file defines messages and their delivery lifecycle.
// A message is immutable once persisted, except DeliveredAt and ReadAt,
// which are write-once.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxTextLength is the upper bound on message text, counted in runes.
const MaxTextLength = 2000

// Attachment describes a file already uploaded to the attachment store.
// It is informational only; this subsystem never touches the file bytes.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Message is one direct message between two users.
//
// DeliveredAt is set the first time the message reaches a live connection of
// the recipient, either on the hot path or during reconnect reconciliation.
// ReadAt is set when the recipient's client signals it has read the
// conversation. Both transitions happen at most once; a non-nil ReadAt
// implies a non-nil DeliveredAt.
type Message struct {
	ID          uuid.UUID    `json:"_id"`
	FromUserID  string       `json:"fromUserId"`
	ToUserID    string       `json:"toUserId"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	DeliveredAt *time.Time   `json:"deliveredAt"`
	ReadAt      *time.Time   `json:"readAt"`
}

// Delivered reports whether the message has reached the recipient.
func (m Message) Delivered() bool { return m.DeliveredAt != nil }

// Read reports whether the recipient's client has consumed the message.
func (m Message) Read() bool { return m.ReadAt != nil }
