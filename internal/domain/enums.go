// Package domain defines the core domain models for viper.
package domain

// MessageRole represents the author of a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	// RoleSystem is only used for synthetic context messages; it is never stored in a session.
	RoleSystem MessageRole = "system"
)

// MessageStatus represents the lifecycle state of a message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusStreaming MessageStatus = "streaming"
	MessageStatusError     MessageStatus = "error"
	MessageStatusAborted   MessageStatus = "aborted"
)

// Terminal reports whether no further deltas can be applied to a message in this status.
func (s MessageStatus) Terminal() bool {
	return s != MessageStatusStreaming
}

// CompletionMode selects how the orchestrator builds context and mutates the target message.
type CompletionMode int

const (
	// ModeNormal streams a fresh reply into a new assistant placeholder.
	ModeNormal CompletionMode = iota
	// ModeContinue appends to an existing assistant message.
	ModeContinue
	// ModeRetry clears an existing assistant message and streams into it again.
	ModeRetry
)

func (m CompletionMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeContinue:
		return "continue"
	case ModeRetry:
		return "retry"
	default:
		return "unknown"
	}
}
