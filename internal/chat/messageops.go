package chat

import (
	"context"
	"strings"

	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/internal/model"
)

// Star adds the caller to a message's starred set.
func (s *Service) Star(ctx context.Context, user model.Identity, conversationID, messageID string) error {
	return s.mutateMessageSet(ctx, user, conversationID, messageID, model.FieldStarredBy, true)
}

// Unstar removes the caller from a message's starred set.
func (s *Service) Unstar(ctx context.Context, user model.Identity, conversationID, messageID string) error {
	return s.mutateMessageSet(ctx, user, conversationID, messageID, model.FieldStarredBy, false)
}

// React adds the caller to the per-emoji reaction set.
func (s *Service) React(ctx context.Context, user model.Identity, conversationID, messageID, emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return E(CodeInvalidInput, "reaction emoji cannot be empty")
	}
	return s.mutateMessageSet(ctx, user, conversationID, messageID, model.FieldReactions+"."+emoji, true)
}

// Unreact removes the caller from the per-emoji reaction set.
func (s *Service) Unreact(ctx context.Context, user model.Identity, conversationID, messageID, emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return E(CodeInvalidInput, "reaction emoji cannot be empty")
	}
	return s.mutateMessageSet(ctx, user, conversationID, messageID, model.FieldReactions+"."+emoji, false)
}

// EditMessage replaces a message's text. Only the sender may edit.
func (s *Service) EditMessage(ctx context.Context, user model.Identity, conversationID, messageID, text string) error {
	if strings.TrimSpace(text) == "" {
		return E(CodeInvalidInput, "message text cannot be empty")
	}
	if err := s.requireSender(ctx, user, conversationID, messageID); err != nil {
		return err
	}
	err := s.store.Update(ctx, messagePath(conversationID, messageID), map[string]any{
		model.FieldText:     text,
		model.FieldEditedAt: docstore.ServerTimestamp(),
	})
	if err != nil {
		return Wrap(CodeNetworkError, "failed to edit message", err)
	}
	return nil
}

// DeleteMessage soft-deletes a message. Only the sender may delete; the
// record stays in place with its text cleared.
func (s *Service) DeleteMessage(ctx context.Context, user model.Identity, conversationID, messageID string) error {
	if err := s.requireSender(ctx, user, conversationID, messageID); err != nil {
		return err
	}
	err := s.store.Update(ctx, messagePath(conversationID, messageID), map[string]any{
		model.FieldDeleted: true,
		model.FieldText:    "",
	})
	if err != nil {
		return Wrap(CodeNetworkError, "failed to delete message", err)
	}
	return nil
}

// PinMessage pins a message inside its conversation.
func (s *Service) PinMessage(ctx context.Context, user model.Identity, conversationID, messageID string) error {
	if err := requireIdentity(user); err != nil {
		return err
	}
	if _, err := s.loadConversation(ctx, user.ID, conversationID); err != nil {
		return err
	}
	err := s.store.Update(ctx, messagePath(conversationID, messageID), map[string]any{
		model.FieldPinned:       true,
		model.FieldMessagePinBy: user.ID,
		model.FieldMessagePinAt: docstore.ServerTimestamp(),
	})
	if err != nil {
		return Wrap(CodeNetworkError, "failed to pin message", err)
	}
	return nil
}

// UnpinMessage reverses PinMessage.
func (s *Service) UnpinMessage(ctx context.Context, user model.Identity, conversationID, messageID string) error {
	if err := requireIdentity(user); err != nil {
		return err
	}
	if _, err := s.loadConversation(ctx, user.ID, conversationID); err != nil {
		return err
	}
	err := s.store.Update(ctx, messagePath(conversationID, messageID), map[string]any{
		model.FieldPinned:       false,
		model.FieldMessagePinBy: docstore.DeleteField(),
		model.FieldMessagePinAt: docstore.DeleteField(),
	})
	if err != nil {
		return Wrap(CodeNetworkError, "failed to unpin message", err)
	}
	return nil
}

func (s *Service) requireSender(ctx context.Context, user model.Identity, conversationID, messageID string) error {
	if err := requireIdentity(user); err != nil {
		return err
	}
	if _, err := s.loadConversation(ctx, user.ID, conversationID); err != nil {
		return err
	}
	msg, err := s.getMessage(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != user.ID {
		return E(CodePermissionDenied, "only the sender can modify a message")
	}
	return nil
}

func (s *Service) mutateMessageSet(ctx context.Context, user model.Identity, conversationID, messageID, field string, add bool) error {
	if err := requireIdentity(user); err != nil {
		return err
	}
	if _, err := s.loadConversation(ctx, user.ID, conversationID); err != nil {
		return err
	}
	op := docstore.ArrayRemove(user.ID)
	if add {
		op = docstore.ArrayUnion(user.ID)
	}
	err := s.store.Update(ctx, messagePath(conversationID, messageID), map[string]any{field: op})
	if err != nil {
		return Wrap(CodeNetworkError, "failed to update message", err)
	}
	return nil
}
