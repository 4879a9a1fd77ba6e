package domain

import "time"

// Message is a single entry in a session.
type Message struct {
	ID        string        `json:"id" validate:"required,max=64"`
	Role      MessageRole   `json:"role" validate:"required,oneof=user assistant"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
	Status    MessageStatus `json:"status" validate:"required,oneof=sent streaming error aborted"`
	Error     string        `json:"error"`
}

// MessagePatch carries optional message fields to update.
type MessagePatch struct {
	Content *string        `json:"content,omitempty"`
	Status  *MessageStatus `json:"status,omitempty" validate:"omitempty,oneof=sent streaming error aborted"`
	Error   *string        `json:"error,omitempty"`
}

// ContextMessage is a role/content pair as sent to a completion endpoint.
type ContextMessage struct {
	Role    MessageRole `json:"role" validate:"required,oneof=user assistant system"`
	Content string      `json:"content"`
}
