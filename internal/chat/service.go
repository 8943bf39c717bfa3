package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/flocknet/messaging-platform/internal/directory"
	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/internal/model"
	"github.com/flocknet/messaging-platform/pkg/logger"
)

const (
	conversationsCollection = "conversations"
	reportsCollection       = "reports"

	// DefaultWindowSize is the live message window when none is configured.
	DefaultWindowSize = 50

	// PinLimit caps pinned conversations per user.
	PinLimit = 3
)

func conversationPath(id string) string {
	return conversationsCollection + "/" + id
}

func messagesCollection(conversationID string) string {
	return conversationPath(conversationID) + "/messages"
}

func messagePath(conversationID, messageID string) string {
	return messagesCollection(conversationID) + "/" + messageID
}

// EventSink receives committed chat events. Delivery is best effort; the
// store write has already committed by the time an event is published.
type EventSink interface {
	PublishChatEvent(ctx context.Context, event model.ChatEvent)
}

// Service performs validated, atomic writes against the document store. All
// operations take the caller identity explicitly; there is no ambient user.
type Service struct {
	store    docstore.Store
	dir      directory.Directory
	events   EventSink
	sessions *Sessions
	log      *logger.Logger

	// pinMu serializes the pin cap check with its write; the store offers
	// no conditional update, so concurrent pins could otherwise both pass
	// the count and exceed PinLimit.
	pinMu sync.Mutex
}

// NewService creates the chat service. events may be nil when no event
// stream is configured.
func NewService(store docstore.Store, dir directory.Directory, events EventSink, sessions *Sessions, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		dir:      dir,
		events:   events,
		sessions: sessions,
		log:      log,
	}
}

func (s *Service) publish(ctx context.Context, event model.ChatEvent) {
	if s.events != nil {
		s.events.PublishChatEvent(ctx, event)
	}
}

// loadConversation fetches and decodes a conversation, hiding existence from
// non-participants.
func (s *Service) loadConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	doc, err := s.store.Get(ctx, conversationPath(conversationID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, E(CodeNotFound, "conversation not found")
	}
	if err != nil {
		return nil, Wrap(CodeNetworkError, "failed to load conversation", err)
	}

	conv, err := model.DecodeConversation(doc)
	if err != nil {
		return nil, fmt.Errorf("corrupt conversation %s: %w", conversationID, err)
	}

	if userID != "" && !conv.HasParticipant(userID) {
		return nil, E(CodeNotFound, "conversation not found")
	}
	return conv, nil
}

func requireIdentity(user model.Identity) error {
	if user.ID == "" {
		return E(CodeNotAuthenticated, "caller identity is required")
	}
	return nil
}
