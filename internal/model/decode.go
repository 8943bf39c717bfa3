package model

import (
	"fmt"
	"time"

	"github.com/flocknet/messaging-platform/internal/docstore"
)

// Store document field names. These are the only strings shared with the
// document store; everything past this boundary is typed.
const (
	FieldParticipants     = "participants"
	FieldParticipantNames = "participantNames"
	FieldIsGroup          = "isGroup"
	FieldGroupName        = "groupName"
	FieldStatus           = "status"
	FieldRequesterID      = "requesterId"
	FieldRequestReadBy    = "requestReadBy"
	FieldMessageCounts    = "messageCounts"
	FieldUnreadCounts     = "unreadCounts"
	FieldArchivedBy       = "archivedBy"
	FieldDeletedBy        = "deletedBy"
	FieldPinnedBy         = "pinnedBy"
	FieldMutedBy          = "mutedBy"
	FieldLastMessageText  = "lastMessageText"
	FieldLastMessageAt    = "lastMessageAt"
	FieldCreatedAt        = "createdAt"
	FieldUpdatedAt        = "updatedAt"

	FieldConversationID = "conversationId"
	FieldSenderID       = "senderId"
	FieldText           = "text"
	FieldAttachments    = "attachments"
	FieldReactions      = "reactions"
	FieldReplyToID      = "replyToId"
	FieldSentAt         = "sentAt"
	FieldReadBy         = "readBy"
	FieldDelivery       = "delivery"
	FieldPinned         = "pinned"
	FieldMessagePinBy   = "pinnedByUser"
	FieldMessagePinAt   = "pinnedAt"
	FieldStarredBy      = "starredBy"
	FieldDeleted        = "deleted"
	FieldEditedAt       = "editedAt"
	FieldDisappearAt    = "disappearAt"
)

// DecodeConversation converts a raw store document into a typed
// Conversation. Malformed documents return an error so a snapshot handler
// can skip the record without failing the subscription.
func DecodeConversation(doc docstore.Document) (*Conversation, error) {
	data := doc.Data

	participants := asStringSlice(data[FieldParticipants])
	if len(participants) == 0 {
		return nil, fmt.Errorf("conversation %s: missing participants", doc.ID)
	}

	// Documents written before the request gate existed carry no status.
	status := StatusAccepted
	if raw, ok := data[FieldStatus]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("conversation %s: status is %T, want string", doc.ID, raw)
		}
		status = ConversationStatus(s)
		if !status.Valid() {
			return nil, fmt.Errorf("conversation %s: unknown status %q", doc.ID, s)
		}
	}

	return &Conversation{
		ID:               doc.ID,
		ParticipantIDs:   participants,
		ParticipantNames: asStringMap(data[FieldParticipantNames]),
		IsGroup:          asBool(data[FieldIsGroup]),
		GroupName:        asString(data[FieldGroupName]),
		Status:           status,
		RequesterID:      asString(data[FieldRequesterID]),
		RequestReadBy:    asStringSlice(data[FieldRequestReadBy]),
		MessageCounts:    asCountMap(data[FieldMessageCounts]),
		UnreadCounts:     asCountMap(data[FieldUnreadCounts]),
		ArchivedBy:       NormalizeUserSet(data[FieldArchivedBy]),
		DeletedBy:        asBoolMap(data[FieldDeletedBy]),
		PinnedBy:         asStringSlice(data[FieldPinnedBy]),
		MutedBy:          asStringSlice(data[FieldMutedBy]),
		LastMessageText:  asString(data[FieldLastMessageText]),
		LastMessageAt:    asTime(data[FieldLastMessageAt]),
		CreatedAt:        asTime(data[FieldCreatedAt]),
		UpdatedAt:        asTime(data[FieldUpdatedAt]),
	}, nil
}

// DecodeMessage converts a raw store document into a typed Message.
func DecodeMessage(doc docstore.Document) (*Message, error) {
	data := doc.Data

	sender := asString(data[FieldSenderID])
	if sender == "" {
		return nil, fmt.Errorf("message %s: missing sender", doc.ID)
	}

	sentAt := asTime(data[FieldSentAt])
	if sentAt.IsZero() {
		return nil, fmt.Errorf("message %s: missing timestamp", doc.ID)
	}

	delivery := DeliverySent
	if s := asString(data[FieldDelivery]); s != "" {
		delivery = DeliveryState(s)
	}

	m := &Message{
		ID:             doc.ID,
		ConversationID: asString(data[FieldConversationID]),
		SenderID:       sender,
		Text:           asString(data[FieldText]),
		Attachments:    decodeAttachments(data[FieldAttachments]),
		Reactions:      decodeReactions(data[FieldReactions]),
		ReplyToID:      asString(data[FieldReplyToID]),
		SentAt:         sentAt,
		ReadBy:         asStringSlice(data[FieldReadBy]),
		Delivery:       delivery,
		Pinned:         asBool(data[FieldPinned]),
		PinnedBy:       asString(data[FieldMessagePinBy]),
		PinnedAt:       asTime(data[FieldMessagePinAt]),
		StarredBy:      asStringSlice(data[FieldStarredBy]),
		Deleted:        asBool(data[FieldDeleted]),
	}
	if t := asTime(data[FieldEditedAt]); !t.IsZero() {
		m.EditedAt = &t
	}
	if t := asTime(data[FieldDisappearAt]); !t.IsZero() {
		m.DisappearAt = &t
	}
	return m, nil
}

// NormalizeUserSet reconciles the two legacy encodings of per-user flags:
// an id array and a userID->bool map. Downstream code only ever sees the
// array form. Writers use it to rewrite a map-encoded field as an array
// without losing the other users' flags.
func NormalizeUserSet(v any) []string {
	switch t := v.(type) {
	case map[string]any:
		var ids []string
		for id, flag := range t {
			if asBool(flag) {
				ids = append(ids, id)
			}
		}
		return ids
	default:
		return asStringSlice(v)
	}
}

func decodeAttachments(v any) []Attachment {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []Attachment
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		url := asString(m["url"])
		if url == "" {
			continue
		}
		out = append(out, Attachment{URL: url, Kind: asString(m["kind"])})
	}
	return out
}

func decodeReactions(v any) map[string][]string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string][]string, len(m))
	for emoji, users := range m {
		if ids := asStringSlice(users); len(ids) > 0 {
			out[emoji] = ids
		}
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asTime(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}

func asStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func asStringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, item := range m {
		if s, ok := item.(string); ok {
			out[k] = s
		}
	}
	return out
}

func asBoolMap(v any) map[string]bool {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, item := range m {
		if asBool(item) {
			out[k] = true
		}
	}
	return out
}

func asCountMap(v any) map[string]int64 {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, item := range m {
		switch n := item.(type) {
		case int64:
			out[k] = n
		case int:
			out[k] = int64(n)
		case float64:
			out[k] = int64(n)
		}
	}
	return out
}
