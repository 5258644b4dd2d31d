// Package domain contains core concepts of the chat system.
// This file defines Message and the rules a persisted message obeys.
// Messages are immutable once the store assigned their ID and Sequence.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat message of a group.
type Message struct {
	ID         uuid.UUID   `json:"id"` // store-assigned, stable across history and live delivery
	GroupID    GroupID     `json:"group_id"`
	Sender     string      `json:"sender"`
	Body       string      `json:"body"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Sequence   uint64      `json:"sequence"` // store-assigned, starts at 1 in every group
	Lang       string      `json:"lang,omitempty"`
	Censored   []string    `json:"-"`
	CreatedAt  time.Time   `json:"created_at"`
}

// HasContent reports whether the message carries a body or an attachment.
func (m Message) HasContent() bool {
	return strings.TrimSpace(m.Body) != "" || m.Attachment != nil
}

// Valid checks the invariant every persisted message holds.
func (m Message) Valid() bool {
	return m.GroupID != "" && strings.TrimSpace(m.Sender) != "" && m.HasContent()
}

// Persisted reports whether the store already accepted the message.
func (m Message) Persisted() bool {
	return m.ID != uuid.Nil && m.Sequence > 0
}
