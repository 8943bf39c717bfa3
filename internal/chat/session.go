package chat

import (
	"sync"

	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/pkg/logger"
)

// Session owns the live resources of one authenticated user: their
// conversation registry and the message stream of the conversation they
// currently have open. Each resource is independently startable and is torn
// down when the session ends.
type Session struct {
	userID   string
	registry *Registry

	mu     sync.Mutex
	stream *MessageStream
	openID string
}

// Registry returns the session's conversation registry.
func (s *Session) Registry() *Registry {
	return s.registry
}

// OpenStream returns a running message stream for conversationID. At most
// one conversation is open per session; opening another stops the previous
// stream first.
func (s *Session) OpenStream(store docstore.Store, conversationID string, windowSize int, log *logger.Logger) (*MessageStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil && s.openID == conversationID {
		return s.stream, nil
	}
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
		s.openID = ""
	}

	stream := NewMessageStream(store, conversationID, windowSize, log)
	if err := stream.Start(); err != nil {
		return nil, err
	}
	s.stream = stream
	s.openID = conversationID
	return stream, nil
}

// Stream returns the open stream for conversationID, or nil.
func (s *Session) Stream(conversationID string) *MessageStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openID != conversationID {
		return nil
	}
	return s.stream
}

// CloseStream stops the open stream if it is for conversationID.
func (s *Session) CloseStream(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil || s.openID != conversationID {
		return
	}
	s.stream.Stop()
	s.stream = nil
	s.openID = ""
}

func (s *Session) end() {
	s.registry.Unsubscribe()
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.openID = ""
	s.mu.Unlock()
	if stream != nil {
		stream.Stop()
	}
}

// Sessions tracks one Session per authenticated user.
type Sessions struct {
	store      docstore.Store
	windowSize int
	log        *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates the session manager.
func NewSessions(store docstore.Store, windowSize int, log *logger.Logger) *Sessions {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Sessions{
		store:      store,
		windowSize: windowSize,
		log:        log,
		sessions:   make(map[string]*Session),
	}
}

// Get returns the user's session, creating it on first use.
func (m *Sessions) Get(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		s = &Session{
			userID:   userID,
			registry: NewRegistry(m.store, userID, m.log),
		}
		m.sessions[userID] = s
	}
	return s
}

// WindowSize is the configured live message window.
func (m *Sessions) WindowSize() int {
	return m.windowSize
}

// End tears down the user's session and every subscription it owns. Safe to
// call for users with no session.
func (m *Sessions) End(userID string) {
	m.mu.Lock()
	s := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if s != nil {
		s.end()
	}
}

// peek returns the session without creating one.
func (m *Sessions) peek(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}

func (m *Sessions) archiveLocally(userID, conversationID string) {
	if s := m.peek(userID); s != nil {
		s.registry.applyLocalArchive(conversationID, true)
	}
}

func (m *Sessions) unarchiveLocally(userID, conversationID string) {
	if s := m.peek(userID); s != nil {
		s.registry.applyLocalArchive(conversationID, false)
	}
}
