// Package session keeps the in-memory projection of chat sessions and
// reconciles it with the persistence backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/viper/internal/adapter/persistence"
	"github.com/xiaot623/viper/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
)

// EventKind says what changed.
type EventKind int

const (
	// EventSessions: a session was created, renamed, deleted or reloaded.
	EventSessions EventKind = iota + 1
	// EventActive: the active session changed.
	EventActive
	// EventMessageAdded: a message was appended.
	EventMessageAdded
	// EventMessageUpdated: a message's content, status or error changed.
	EventMessageUpdated
)

// Event is delivered to subscribers after a mutation, outside the store lock.
type Event struct {
	Kind      EventKind
	SessionID string
	MessageID string
}

type sessionState struct {
	info     domain.ChatSession
	messages []domain.Message
	loaded   bool
}

// Store is the local write-ahead projection of sessions. Local state is
// mutated first; persistence calls follow and, except for session creation,
// never fail the operation.
type Store struct {
	persist persistence.Service
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*sessionState
	active   string

	subsMu sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// NewStore creates a store backed by persist.
func NewStore(persist persistence.Service, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		persist:  persist,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*sessionState),
		subs:     make(map[int]func(Event)),
	}
}

// Subscribe registers fn for change events and returns a function that removes it.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) emit(events ...Event) {
	s.subsMu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()

	for _, e := range events {
		for _, fn := range subs {
			fn(e)
		}
	}
}

// Load replaces local state with the backend's sessions. The backend is
// authoritative: local drift is discarded. The previously active session
// stays active when it still exists, otherwise the most recent one is used.
func (s *Store) Load(ctx context.Context) error {
	sessions, err := s.persist.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	s.mu.Lock()
	s.sessions = make(map[string]*sessionState, len(sessions))
	for _, info := range sessions {
		s.sessions[info.ID] = &sessionState{info: info}
	}
	if _, ok := s.sessions[s.active]; !ok {
		s.active = s.mostRecentLocked()
	}
	active := s.active
	s.mu.Unlock()

	if active != "" {
		if err := s.loadMessages(ctx, active); err != nil {
			return err
		}
	}
	s.emit(Event{Kind: EventSessions}, Event{Kind: EventActive, SessionID: active})
	return nil
}

func (s *Store) loadMessages(ctx context.Context, id string) error {
	msgs, err := s.persist.ListMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	st.messages = msgs
	st.loaded = true
	return nil
}

// Create creates a session, waits for its backend id and makes it active.
func (s *Store) Create(ctx context.Context, title string) (domain.ChatSession, error) {
	if title == "" {
		title = domain.DefaultSessionTitle
	}
	created, err := s.persist.CreateSession(ctx, title)
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("failed to create session: %w", err)
	}

	info := *created
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = s.now()
	}

	s.mu.Lock()
	s.sessions[info.ID] = &sessionState{info: info, loaded: true}
	s.active = info.ID
	s.mu.Unlock()

	s.emit(Event{Kind: EventSessions, SessionID: info.ID}, Event{Kind: EventActive, SessionID: info.ID})
	return info, nil
}

// EnsureActive returns the active session id, creating a session when there is none.
func (s *Store) EnsureActive(ctx context.Context) (string, error) {
	s.mu.RLock()
	active := s.active
	s.mu.RUnlock()
	if active != "" {
		return active, nil
	}
	info, err := s.Create(ctx, domain.DefaultSessionTitle)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Select makes id the active session, loading its messages on first use.
func (s *Store) Select(ctx context.Context, id string) error {
	s.mu.RLock()
	st, ok := s.sessions[id]
	loaded := ok && st.loaded
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	if !loaded {
		if err := s.loadMessages(ctx, id); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
	s.emit(Event{Kind: EventActive, SessionID: id})
	return nil
}

// NewMessage returns a message with a fresh local id.
func NewMessage(role domain.MessageRole, content string, status domain.MessageStatus) domain.Message {
	return domain.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Status:    status,
	}
}

// Append adds msg to a session. The first user message of a session that
// still has the default title names the session. Creation on the backend
// is awaited but a failure is only logged.
func (s *Store) Append(ctx context.Context, sessionID string, msg domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	var newTitle string
	if msg.Role == domain.RoleUser && st.info.Title == domain.DefaultSessionTitle && !hasUserMessage(st.messages) {
		if title := DeriveTitle(msg.Content); title != "" {
			st.info.Title = title
			newTitle = title
		}
	}
	st.messages = append(st.messages, msg)
	st.info.UpdatedAt = s.now()
	updatedAt := st.info.UpdatedAt
	s.mu.Unlock()

	events := []Event{{Kind: EventMessageAdded, SessionID: sessionID, MessageID: msg.ID}}
	if newTitle != "" {
		events = append(events, Event{Kind: EventSessions, SessionID: sessionID})
	}
	s.emit(events...)

	if err := s.persist.AppendMessage(ctx, sessionID, msg); err != nil {
		s.logger.Warn("failed to persist message", "session_id", sessionID, "message_id", msg.ID, "error", err)
	}
	if newTitle != "" {
		if err := s.persist.PatchSession(ctx, sessionID, domain.SessionPatch{Title: &newTitle, UpdatedAt: &updatedAt}); err != nil {
			s.logger.Warn("failed to persist session title", "session_id", sessionID, "error", err)
		}
	}
	return nil
}

func hasUserMessage(msgs []domain.Message) bool {
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			return true
		}
	}
	return false
}

// UpdateMessage applies fn to a message in place. It is local only; use
// SyncMessage to push the result.
func (s *Store) UpdateMessage(sessionID, messageID string, fn func(*domain.Message)) error {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	i := indexOf(st.messages, messageID)
	if i < 0 {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	fn(&st.messages[i])
	st.info.UpdatedAt = s.now()
	s.mu.Unlock()

	s.emit(Event{Kind: EventMessageUpdated, SessionID: sessionID, MessageID: messageID})
	return nil
}

// SyncMessage pushes patch for a message to the backend.
func (s *Store) SyncMessage(ctx context.Context, sessionID, messageID string, patch domain.MessagePatch) error {
	return s.persist.PatchMessage(ctx, sessionID, messageID, patch)
}

// PatchSession updates session fields locally and pushes them.
func (s *Store) PatchSession(ctx context.Context, id string, patch domain.SessionPatch) error {
	s.mu.Lock()
	st, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if patch.Title != nil {
		st.info.Title = *patch.Title
	}
	st.info.UpdatedAt = s.now()
	updatedAt := st.info.UpdatedAt
	s.mu.Unlock()

	s.emit(Event{Kind: EventSessions, SessionID: id})

	patch.UpdatedAt = &updatedAt
	if err := s.persist.PatchSession(ctx, id, patch); err != nil {
		s.logger.Warn("failed to persist session", "session_id", id, "error", err)
	}
	return nil
}

// Touch refreshes a session's timestamp locally and pushes it.
func (s *Store) Touch(ctx context.Context, id string) error {
	s.mu.Lock()
	st, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	st.info.UpdatedAt = s.now()
	updatedAt := st.info.UpdatedAt
	s.mu.Unlock()

	s.emit(Event{Kind: EventSessions, SessionID: id})
	return s.persist.PatchSession(ctx, id, domain.SessionPatch{UpdatedAt: &updatedAt})
}

// Delete removes a session. When it was active, the next most recent
// session becomes active, or none if the list is empty.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	activeChanged := s.active == id
	if activeChanged {
		s.active = s.mostRecentLocked()
	}
	active := s.active
	needsLoad := active != "" && !s.sessions[active].loaded
	s.mu.Unlock()

	if err := s.persist.DeleteSession(ctx, id); err != nil {
		s.logger.Warn("failed to delete session", "session_id", id, "error", err)
	}
	if activeChanged && needsLoad {
		if err := s.loadMessages(ctx, active); err != nil {
			s.logger.Warn("failed to load messages", "session_id", active, "error", err)
		}
	}

	events := []Event{{Kind: EventSessions, SessionID: id}}
	if activeChanged {
		events = append(events, Event{Kind: EventActive, SessionID: active})
	}
	s.emit(events...)
	return nil
}

// mostRecentLocked returns the id of the most recently updated session.
func (s *Store) mostRecentLocked() string {
	var (
		best   string
		bestAt time.Time
	)
	for id, st := range s.sessions {
		if best == "" || st.info.UpdatedAt.After(bestAt) || (st.info.UpdatedAt.Equal(bestAt) && id < best) {
			best, bestAt = id, st.info.UpdatedAt
		}
	}
	return best
}

// List returns sessions, most recently updated first.
func (s *Store) List() []domain.ChatSession {
	s.mu.RLock()
	out := make([]domain.ChatSession, 0, len(s.sessions))
	for _, st := range s.sessions {
		out = append(out, st.info)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Session returns one session.
func (s *Store) Session(id string) (domain.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return domain.ChatSession{}, false
	}
	return st.info, true
}

// Messages returns a copy of a session's messages in order.
func (s *Store) Messages(id string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return append([]domain.Message(nil), st.messages...)
}

// Message returns one message.
func (s *Store) Message(sessionID, messageID string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return domain.Message{}, false
	}
	i := indexOf(st.messages, messageID)
	if i < 0 {
		return domain.Message{}, false
	}
	return st.messages[i], true
}

// Active returns the active session id, or "" when there is none.
func (s *Store) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func indexOf(msgs []domain.Message, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}
