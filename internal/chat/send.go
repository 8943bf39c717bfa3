package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/internal/model"
	"github.com/flocknet/messaging-platform/pkg/metrics"
)

// Send validates the message against the request gate and commits it in one
// atomic batch with its bookkeeping: every other participant's unread
// counter goes up by one, the sender's request message counter goes up by
// one, and a recipient reply to a pending request flips it to accepted. No
// reader can observe the message without its counters or vice versa.
func (s *Service) Send(ctx context.Context, sender model.Identity, conversationID string, req model.SendMessageRequest) (*model.Message, error) {
	if err := requireIdentity(sender); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		return nil, E(CodeInvalidInput, "message text cannot be empty")
	}

	conv, err := s.loadConversation(ctx, sender.ID, conversationID)
	if err != nil {
		return nil, err
	}

	if err := gateCheck(conv, sender.ID); err != nil {
		metrics.SendsDenied.WithLabelValues(string(CodeOf(err))).Inc()
		return nil, err
	}

	messageID := req.ID
	if messageID == "" {
		messageID = uuid.Must(uuid.NewV7()).String()
	} else if _, err := uuid.Parse(messageID); err != nil {
		return nil, E(CodeInvalidInput, "message id must be a valid UUID")
	}

	messageData := map[string]any{
		model.FieldConversationID: conversationID,
		model.FieldSenderID:       sender.ID,
		model.FieldText:           req.Text,
		model.FieldSentAt:         docstore.ServerTimestamp(),
		model.FieldReadBy:         []any{sender.ID},
		model.FieldDelivery:       string(model.DeliverySent),
	}
	if len(req.Attachments) > 0 {
		attachments := make([]any, len(req.Attachments))
		for i, a := range req.Attachments {
			attachments[i] = map[string]any{"url": a.URL, "kind": a.Kind}
		}
		messageData[model.FieldAttachments] = attachments
	}
	if req.ReplyToID != "" {
		messageData[model.FieldReplyToID] = req.ReplyToID
	}

	preview := req.Text
	if preview == "" {
		preview = "[attachment]"
	}
	convUpdates := map[string]any{
		model.FieldLastMessageText: preview,
		model.FieldLastMessageAt:   docstore.ServerTimestamp(),
		model.FieldUpdatedAt:       docstore.ServerTimestamp(),
		model.FieldMessageCounts + "." + sender.ID: docstore.Increment(1),
		// Sending resurfaces a conversation the sender had deleted.
		model.FieldDeletedBy + "." + sender.ID: docstore.DeleteField(),
	}
	for _, other := range conv.OtherParticipants(sender.ID) {
		convUpdates[model.FieldUnreadCounts+"."+other] = docstore.Increment(1)
	}

	accepted := false
	if conv.Status == model.StatusPending && sender.ID != conv.RequesterID {
		convUpdates[model.FieldStatus] = string(model.StatusAccepted)
		accepted = true
	}

	err = s.store.Batch().
		Create(messagePath(conversationID, messageID), messageData).
		Update(conversationPath(conversationID), convUpdates).
		Commit(ctx)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		// Retry of an already-applied send: return the committed message
		// instead of double-writing counters.
		return s.getMessage(ctx, conversationID, messageID)
	}
	if err != nil {
		return nil, Wrap(CodeNetworkError, "failed to commit message", err)
	}

	metrics.MessagesTotal.WithLabelValues(messageKind(req)).Inc()
	s.log.Debug("message sent",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", messageID),
		zap.String("sender_id", sender.ID),
	)

	s.publish(ctx, model.ChatEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		ActorID:        sender.ID,
		Type:           model.EventMessageSent,
		MessageID:      messageID,
		CreatedAt:      time.Now(),
	})
	if accepted {
		s.publish(ctx, model.ChatEvent{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conversationID,
			ActorID:        sender.ID,
			Type:           model.EventConversationAccepted,
			CreatedAt:      time.Now(),
		})
	}

	return s.getMessage(ctx, conversationID, messageID)
}

// MarkRead records that user has observed the given messages and resets the
// user's unread counter to zero in the same atomic batch. Safe to repeat.
func (s *Service) MarkRead(ctx context.Context, user model.Identity, conversationID string, messageIDs []string) error {
	if err := requireIdentity(user); err != nil {
		return err
	}
	if _, err := s.loadConversation(ctx, user.ID, conversationID); err != nil {
		return err
	}

	batch := s.store.Batch()
	for _, id := range messageIDs {
		batch.Update(messagePath(conversationID, id), map[string]any{
			model.FieldReadBy: docstore.ArrayUnion(user.ID),
		})
	}
	// Reset, not decrement: the client has just observed everything visible.
	batch.Update(conversationPath(conversationID), map[string]any{
		model.FieldUnreadCounts + "." + user.ID: int64(0),
	})

	err := batch.Commit(ctx)
	if errors.Is(err, docstore.ErrNotFound) {
		return E(CodeNotFound, "message not found")
	}
	if err != nil {
		return Wrap(CodeNetworkError, "failed to mark messages read", err)
	}
	return nil
}

func (s *Service) getMessage(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	doc, err := s.store.Get(ctx, messagePath(conversationID, messageID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, E(CodeNotFound, "message not found")
	}
	if err != nil {
		return nil, Wrap(CodeNetworkError, "failed to load message", err)
	}
	return model.DecodeMessage(doc)
}

func messageKind(req model.SendMessageRequest) string {
	if len(req.Attachments) > 0 {
		return "attachment"
	}
	return "text"
}
