package event

import "opschat/domain"

// Inbound is a client signal received over a live connection. Two kinds
// exist: "read" acknowledges a conversation, "message" submits a new
// message without a REST round-trip.
type Inbound struct {
	Type        string              `json:"type"`
	With        string              `json:"with,omitempty"`
	To          string              `json:"to,omitempty"`
	Text        string              `json:"text,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}
