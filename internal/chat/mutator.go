package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/internal/model"
)

// Pin adds the conversation to the caller's pinned set, capped at PinLimit.
// The cap is validated before any write, so a rejected pin creates no state.
func (s *Service) Pin(ctx context.Context, user model.Identity, conversationID string) error {
	if err := requireIdentity(user); err != nil {
		return err
	}
	conv, err := s.loadConversation(ctx, user.ID, conversationID)
	if err != nil {
		return err
	}
	if conv.PinnedByUser(user.ID) {
		return nil
	}

	s.pinMu.Lock()
	defer s.pinMu.Unlock()

	pinned, err := s.store.Query(ctx, docstore.Query{Collection: conversationsCollection}.
		Where(model.FieldPinnedBy, docstore.OpArrayContains, user.ID))
	if err != nil {
		return Wrap(CodeNetworkError, "failed to count pinned conversations", err)
	}
	if len(pinned) >= PinLimit {
		return Ef(CodeLimitExceeded, "at most %d conversations can be pinned", PinLimit)
	}

	return s.updateUserSet(ctx, conversationID, model.FieldPinnedBy, user.ID, true)
}

// Unpin removes the conversation from the caller's pinned set.
func (s *Service) Unpin(ctx context.Context, user model.Identity, conversationID string) error {
	return s.mutateSet(ctx, user, conversationID, model.FieldPinnedBy, false)
}

// Mute silences notifications for the caller.
func (s *Service) Mute(ctx context.Context, user model.Identity, conversationID string) error {
	return s.mutateSet(ctx, user, conversationID, model.FieldMutedBy, true)
}

// Unmute reverses Mute.
func (s *Service) Unmute(ctx context.Context, user model.Identity, conversationID string) error {
	return s.mutateSet(ctx, user, conversationID, model.FieldMutedBy, false)
}

// Archive moves the conversation to the caller's archived projection. The
// caller's registry reflects the move immediately, ahead of the next live
// snapshot.
func (s *Service) Archive(ctx context.Context, user model.Identity, conversationID string) error {
	if err := s.mutateSet(ctx, user, conversationID, model.FieldArchivedBy, true); err != nil {
		return err
	}
	if s.sessions != nil {
		s.sessions.archiveLocally(user.ID, conversationID)
	}
	return nil
}

// Unarchive reverses Archive, again with an optimistic registry update.
func (s *Service) Unarchive(ctx context.Context, user model.Identity, conversationID string) error {
	if err := s.mutateSet(ctx, user, conversationID, model.FieldArchivedBy, false); err != nil {
		return err
	}
	if s.sessions != nil {
		s.sessions.unarchiveLocally(user.ID, conversationID)
	}
	return nil
}

// Delete soft-deletes the conversation for the caller only. Other
// participants keep seeing it; nothing is ever purged here.
func (s *Service) Delete(ctx context.Context, user model.Identity, conversationID string) error {
	if err := requireIdentity(user); err != nil {
		return err
	}
	if _, err := s.loadConversation(ctx, user.ID, conversationID); err != nil {
		return err
	}
	err := s.store.Update(ctx, conversationPath(conversationID), map[string]any{
		model.FieldDeletedBy + "." + user.ID: true,
	})
	if err != nil {
		return Wrap(CodeNetworkError, "failed to delete conversation", err)
	}
	return nil
}

// ReportSpam records a report and archives the conversation for the
// reporter in the same atomic batch.
func (s *Service) ReportSpam(ctx context.Context, user model.Identity, conversationID, reason string) error {
	if err := requireIdentity(user); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return E(CodeInvalidInput, "report reason cannot be empty")
	}
	if _, err := s.loadConversation(ctx, user.ID, conversationID); err != nil {
		return err
	}

	archiveOp, err := s.userSetOp(ctx, conversationID, model.FieldArchivedBy, user.ID, true)
	if err != nil {
		return err
	}

	reportID := uuid.Must(uuid.NewV7()).String()
	err = s.store.Batch().
		Create(reportsCollection+"/"+reportID, map[string]any{
			model.FieldConversationID: conversationID,
			"reporterId":              user.ID,
			"reason":                  reason,
			model.FieldCreatedAt:      docstore.ServerTimestamp(),
		}).
		Update(conversationPath(conversationID), map[string]any{
			model.FieldArchivedBy: archiveOp,
		}).
		Commit(ctx)
	if err != nil {
		return Wrap(CodeNetworkError, "failed to record report", err)
	}

	if s.sessions != nil {
		s.sessions.archiveLocally(user.ID, conversationID)
	}
	s.log.Info("conversation reported",
		zap.String("conversation_id", conversationID),
		zap.String("reporter_id", user.ID),
	)
	s.publish(ctx, model.ChatEvent{
		ID:             reportID,
		ConversationID: conversationID,
		ActorID:        user.ID,
		Type:           model.EventConversationReported,
		Reason:         reason,
		CreatedAt:      time.Now(),
	})
	return nil
}

// mutateSet is the shared idempotent set add/remove on a per-user
// conversation attribute.
func (s *Service) mutateSet(ctx context.Context, user model.Identity, conversationID, field string, add bool) error {
	if err := requireIdentity(user); err != nil {
		return err
	}
	if _, err := s.loadConversation(ctx, user.ID, conversationID); err != nil {
		return err
	}
	return s.updateUserSet(ctx, conversationID, field, user.ID, add)
}

func (s *Service) updateUserSet(ctx context.Context, conversationID, field, userID string, add bool) error {
	op, err := s.userSetOp(ctx, conversationID, field, userID, add)
	if err != nil {
		return err
	}
	if err := s.store.Update(ctx, conversationPath(conversationID), map[string]any{field: op}); err != nil {
		return Wrap(CodeNetworkError, "failed to update conversation", err)
	}
	return nil
}

// userSetOp builds the write for adding or removing userID from a per-user
// set field. Documents written before these sets were arrays encode them as
// userID->bool maps; an ArrayUnion against a map replaces it and drops every
// other user's flag, so the legacy form is rewritten as the full normalized
// array instead.
func (s *Service) userSetOp(ctx context.Context, conversationID, field, userID string, add bool) (any, error) {
	doc, err := s.store.Get(ctx, conversationPath(conversationID))
	if err != nil {
		return nil, Wrap(CodeNetworkError, "failed to load conversation", err)
	}

	if _, legacy := doc.Data[field].(map[string]any); legacy {
		set := model.NormalizeUserSet(doc.Data[field])
		out := make([]any, 0, len(set)+1)
		for _, id := range set {
			if id != userID {
				out = append(out, id)
			}
		}
		if add {
			out = append(out, userID)
		}
		return out, nil
	}

	if add {
		return docstore.ArrayUnion(userID), nil
	}
	return docstore.ArrayRemove(userID), nil
}
