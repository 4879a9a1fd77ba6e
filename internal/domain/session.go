package domain

import "time"

// DefaultSessionTitle is the placeholder title of a session nobody has named yet.
const DefaultSessionTitle = "New Chat"

// ChatSession represents a titled conversation.
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionPatch carries optional session fields to update. A patch without
// UpdatedAt still refreshes the session's timestamp.
type SessionPatch struct {
	Title     *string    `json:"title,omitempty" validate:"omitempty,max=200"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
