package model

import (
	"time"
)

// EventType identifies a committed chat event published to the event stream.
type EventType string

const (
	EventMessageSent          EventType = "message.sent"
	EventConversationCreated  EventType = "conversation.created"
	EventConversationAccepted EventType = "conversation.accepted"
	EventConversationDeclined EventType = "conversation.declined"
	EventConversationReported EventType = "conversation.reported"
)

// ChatEvent is published after the corresponding store write commits.
// Consumers (push dispatch, analytics) read it from the event stream; the
// core never depends on delivery.
type ChatEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ActorID        string    `json:"actor_id"`
	Type           EventType `json:"type"`
	MessageID      string    `json:"message_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TypingEvent is an ephemeral typing indicator. It is fanned out over plain
// pub/sub and never persisted.
type TypingEvent struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	At             time.Time `json:"at"`
}
