package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/flocknet/messaging-platform/internal/model"
)

// TypingSubjectPrefix carries ephemeral typing indicators. These go over
// plain pub/sub, never JetStream: a missed indicator is worthless a second
// later.
const TypingSubjectPrefix = "typing"

func typingSubject(conversationID string) string {
	return fmt.Sprintf("%s.%s", TypingSubjectPrefix, conversationID)
}

// PublishTyping broadcasts that userID is typing in the conversation.
func (c *Client) PublishTyping(conversationID, userID string) error {
	data, err := json.Marshal(model.TypingEvent{
		ConversationID: conversationID,
		UserID:         userID,
		At:             time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal typing event: %w", err)
	}
	return c.conn.Publish(typingSubject(conversationID), data)
}

// SubscribeTyping delivers typing indicators for one conversation until the
// returned function is called.
func (c *Client) SubscribeTyping(conversationID string, fn func(model.TypingEvent)) (func(), error) {
	sub, err := c.conn.Subscribe(typingSubject(conversationID), func(msg *nats.Msg) {
		var event model.TypingEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			c.logger.Warn("dropping malformed typing event", zap.Error(err))
			return
		}
		fn(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to typing events: %w", err)
	}

	return func() {
		_ = sub.Unsubscribe()
	}, nil
}
