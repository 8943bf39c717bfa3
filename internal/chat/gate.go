package chat

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/internal/model"
	"github.com/flocknet/messaging-platform/pkg/metrics"
)

// ReasonAwaitingAcceptance is the denial reason while a requester waits for
// the recipient to accept or reply.
const ReasonAwaitingAcceptance = "waiting for acceptance"

// ReasonDeclined is the denial reason once a request has been declined.
const ReasonDeclined = "conversation request was declined"

// requestMessageLimit is how many messages the requester may send while the
// conversation is pending.
const requestMessageLimit = 1

// CreateConversation starts a conversation. Direct conversations between two
// users are deduplicated; strangers land in pending unless the recipient's
// policy forbids requests outright.
func (s *Service) CreateConversation(ctx context.Context, creator model.Identity, req model.CreateConversationRequest) (*model.Conversation, error) {
	if err := requireIdentity(creator); err != nil {
		return nil, err
	}

	participants := normalizeParticipants(creator.ID, req.ParticipantIDs)
	if len(participants) < 2 {
		return nil, E(CodeSelfConversation, "a conversation needs someone besides yourself")
	}

	if req.IsGroup {
		if strings.TrimSpace(req.GroupName) == "" {
			return nil, E(CodeInvalidInput, "group name cannot be empty")
		}
		return s.createConversation(ctx, creator, participants, req, model.StatusAccepted, "")
	}

	if len(participants) != 2 {
		return nil, E(CodeInvalidInput, "a direct conversation has exactly two participants")
	}

	if existing, err := s.findDirect(ctx, creator.ID, participants); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	recipient := otherOf(participants, creator.ID)
	status, requesterID, err := s.initialStatus(ctx, creator.ID, recipient)
	if err != nil {
		return nil, err
	}

	return s.createConversation(ctx, creator, participants, req, status, requesterID)
}

// initialStatus applies the recipient's policy: mutual follows start
// accepted, a one-way follow from the creator starts accepted unless the
// recipient requires a mutual follow, strangers start pending, and a
// recipient who disallows requests blocks creation entirely.
func (s *Service) initialStatus(ctx context.Context, creatorID, recipientID string) (model.ConversationStatus, string, error) {
	policy, err := s.dir.Policy(ctx, recipientID)
	if err != nil {
		return "", "", Wrap(CodeNetworkError, "failed to load recipient policy", err)
	}

	creatorFollows, err := s.dir.Follows(ctx, creatorID, recipientID)
	if err != nil {
		return "", "", Wrap(CodeNetworkError, "failed to check relationship", err)
	}
	recipientFollows, err := s.dir.Follows(ctx, recipientID, creatorID)
	if err != nil {
		return "", "", Wrap(CodeNetworkError, "failed to check relationship", err)
	}

	if creatorFollows && recipientFollows {
		return model.StatusAccepted, "", nil
	}
	if !policy.AllowsRequests {
		return "", "", E(CodeMessagesNotAllowed, "recipient does not accept message requests")
	}
	if creatorFollows && !policy.RequiresFollow {
		return model.StatusAccepted, "", nil
	}
	return model.StatusPending, creatorID, nil
}

func (s *Service) createConversation(ctx context.Context, creator model.Identity, participants []string, req model.CreateConversationRequest, status model.ConversationStatus, requesterID string) (*model.Conversation, error) {
	names := make(map[string]any, len(participants))
	names[creator.ID] = creator.DisplayName
	for _, id := range participants {
		if id == creator.ID {
			continue
		}
		// Display names are denormalized onto the document; a lookup miss
		// leaves the name blank rather than failing creation.
		if name, err := s.dir.DisplayName(ctx, id); err == nil {
			names[id] = name
		}
	}

	id := uuid.Must(uuid.NewV7()).String()
	data := map[string]any{
		model.FieldParticipants:     toAnySlice(participants),
		model.FieldParticipantNames: names,
		model.FieldIsGroup:          req.IsGroup,
		model.FieldStatus:           string(status),
		model.FieldMessageCounts:    map[string]any{},
		model.FieldUnreadCounts:     map[string]any{},
		model.FieldCreatedAt:        docstore.ServerTimestamp(),
		model.FieldUpdatedAt:        docstore.ServerTimestamp(),
	}
	if req.IsGroup {
		data[model.FieldGroupName] = strings.TrimSpace(req.GroupName)
	}
	if requesterID != "" {
		data[model.FieldRequesterID] = requesterID
	}

	if err := s.store.Create(ctx, conversationPath(id), data); err != nil {
		return nil, Wrap(CodeNetworkError, "failed to create conversation", err)
	}

	metrics.ConversationsTotal.WithLabelValues(string(status)).Inc()
	s.log.Info("conversation created",
		zap.String("conversation_id", id),
		zap.String("creator_id", creator.ID),
		zap.String("status", string(status)),
	)
	s.publish(ctx, model.ChatEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: id,
		ActorID:        creator.ID,
		Type:           model.EventConversationCreated,
		CreatedAt:      time.Now(),
	})

	return s.loadConversation(ctx, creator.ID, id)
}

// findDirect returns an existing non-group conversation with the same pair.
func (s *Service) findDirect(ctx context.Context, creatorID string, participants []string) (*model.Conversation, error) {
	docs, err := s.store.Query(ctx, docstore.Query{Collection: conversationsCollection}.
		Where(model.FieldParticipants, docstore.OpArrayContains, creatorID))
	if err != nil {
		return nil, Wrap(CodeNetworkError, "failed to look up conversations", err)
	}

	want := append([]string(nil), participants...)
	sort.Strings(want)

	for _, doc := range docs {
		conv, err := model.DecodeConversation(doc)
		if err != nil {
			continue
		}
		if conv.IsGroup || len(conv.ParticipantIDs) != len(want) {
			continue
		}
		have := append([]string(nil), conv.ParticipantIDs...)
		sort.Strings(have)
		match := true
		for i := range want {
			if have[i] != want[i] {
				match = false
				break
			}
		}
		if match {
			return conv, nil
		}
	}
	return nil, nil
}

// gateCheck decides whether senderID may send into conv right now.
func gateCheck(conv *model.Conversation, senderID string) error {
	switch conv.Status {
	case model.StatusAccepted:
		return nil
	case model.StatusDeclined:
		return E(CodePermissionDenied, ReasonDeclined)
	case model.StatusPending:
		if senderID != conv.RequesterID {
			// The recipient replying is consent; the send path flips the
			// conversation to accepted in the same write.
			return nil
		}
		if conv.MessageCountFor(senderID) >= requestMessageLimit {
			return E(CodePermissionDenied, ReasonAwaitingAcceptance)
		}
		return nil
	default:
		return Ef(CodePermissionDenied, "unknown conversation status %q", conv.Status)
	}
}

// CanSend reports whether user may send into the conversation, with a
// human-readable reason when denied.
func (s *Service) CanSend(ctx context.Context, user model.Identity, conversationID string) (bool, string, error) {
	if err := requireIdentity(user); err != nil {
		return false, "", err
	}
	conv, err := s.loadConversation(ctx, user.ID, conversationID)
	if err != nil {
		return false, "", err
	}
	if err := gateCheck(conv, user.ID); err != nil {
		var reason string
		if typed, ok := err.(*Error); ok {
			reason = typed.Message
		} else {
			reason = err.Error()
		}
		return false, reason, nil
	}
	return true, "", nil
}

// Accept marks a pending request accepted. Only the non-requester may accept.
func (s *Service) Accept(ctx context.Context, user model.Identity, conversationID string) error {
	return s.resolveRequest(ctx, user, conversationID, model.StatusAccepted)
}

// Decline marks a pending request declined. Terminal: the conversation stays
// around but the gate blocks all further sends.
func (s *Service) Decline(ctx context.Context, user model.Identity, conversationID string) error {
	return s.resolveRequest(ctx, user, conversationID, model.StatusDeclined)
}

func (s *Service) resolveRequest(ctx context.Context, user model.Identity, conversationID string, to model.ConversationStatus) error {
	if err := requireIdentity(user); err != nil {
		return err
	}
	conv, err := s.loadConversation(ctx, user.ID, conversationID)
	if err != nil {
		return err
	}

	if conv.Status == to {
		return nil
	}
	if conv.Status != model.StatusPending {
		return Ef(CodePermissionDenied, "conversation is %s, not pending", conv.Status)
	}
	if user.ID == conv.RequesterID {
		return E(CodePermissionDenied, "only the recipient can resolve a request")
	}

	updates := map[string]any{
		model.FieldStatus:        string(to),
		model.FieldRequestReadBy: docstore.ArrayUnion(user.ID),
		model.FieldUpdatedAt:     docstore.ServerTimestamp(),
	}
	if err := s.store.Update(ctx, conversationPath(conversationID), updates); err != nil {
		return Wrap(CodeNetworkError, "failed to update request", err)
	}

	eventType := model.EventConversationAccepted
	if to == model.StatusDeclined {
		eventType = model.EventConversationDeclined
	}
	s.publish(ctx, model.ChatEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		ActorID:        user.ID,
		Type:           eventType,
		CreatedAt:      time.Now(),
	})
	return nil
}

// PendingRequests lists incoming message requests: pending conversations
// where someone else is the requester.
func (s *Service) PendingRequests(ctx context.Context, user model.Identity) ([]model.Conversation, error) {
	if err := requireIdentity(user); err != nil {
		return nil, err
	}

	docs, err := s.store.Query(ctx, docstore.Query{Collection: conversationsCollection}.
		Where(model.FieldParticipants, docstore.OpArrayContains, user.ID).
		Where(model.FieldStatus, docstore.OpEqual, string(model.StatusPending)).
		OrderBy(model.FieldUpdatedAt, true))
	if err != nil {
		return nil, Wrap(CodeNetworkError, "failed to list requests", err)
	}

	var out []model.Conversation
	for _, doc := range docs {
		conv, err := model.DecodeConversation(doc)
		if err != nil {
			s.log.Warn("skipping malformed conversation", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		if conv.RequesterID == user.ID || conv.DeletedByUser(user.ID) {
			continue
		}
		out = append(out, *conv)
	}
	return out, nil
}

// MarkRequestRead records that user has seen an incoming request.
func (s *Service) MarkRequestRead(ctx context.Context, user model.Identity, conversationID string) error {
	if err := requireIdentity(user); err != nil {
		return err
	}
	if _, err := s.loadConversation(ctx, user.ID, conversationID); err != nil {
		return err
	}
	err := s.store.Update(ctx, conversationPath(conversationID), map[string]any{
		model.FieldRequestReadBy: docstore.ArrayUnion(user.ID),
	})
	if err != nil {
		return Wrap(CodeNetworkError, "failed to mark request read", err)
	}
	return nil
}

func normalizeParticipants(creatorID string, ids []string) []string {
	seen := map[string]bool{creatorID: true}
	out := []string{creatorID}
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func otherOf(pair []string, userID string) string {
	for _, id := range pair {
		if id != userID {
			return id
		}
	}
	return ""
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
