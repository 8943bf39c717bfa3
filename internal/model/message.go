package model

import (
	"time"
)

// DeliveryState tracks how far a message has progressed toward the store.
type DeliveryState string

const (
	DeliverySending DeliveryState = "sending"
	DeliverySent    DeliveryState = "sent"
	DeliveryFailed  DeliveryState = "failed"
)

// Attachment references an uploaded binary object by URL. Uploading is out
// of scope here; the reference arrives fully formed.
type Attachment struct {
	URL  string `json:"url"`
	Kind string `json:"kind,omitempty"`
}

// Message is a single entry in a conversation.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Text           string `json:"text"`

	Attachments []Attachment        `json:"attachments,omitempty"`
	Reactions   map[string][]string `json:"reactions,omitempty"`
	ReplyToID   string              `json:"reply_to_id,omitempty"`

	SentAt   time.Time     `json:"sent_at"`
	ReadBy   []string      `json:"read_by,omitempty"`
	Delivery DeliveryState `json:"delivery"`

	Pinned   bool      `json:"pinned,omitempty"`
	PinnedBy string    `json:"pinned_by,omitempty"`
	PinnedAt time.Time `json:"pinned_at,omitempty"`

	StarredBy []string `json:"starred_by,omitempty"`

	Deleted     bool       `json:"deleted,omitempty"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
	DisappearAt *time.Time `json:"disappear_at,omitempty"`
}

// ReadByUser reports whether userID has read the message.
func (m *Message) ReadByUser(userID string) bool {
	return contains(m.ReadBy, userID)
}

// StarredByUser reports whether userID starred the message.
func (m *Message) StarredByUser(userID string) bool {
	return contains(m.StarredBy, userID)
}

// SendMessageRequest is the request to send a message. ID is the
// client-generated idempotency id; the server assigns one when empty.
type SendMessageRequest struct {
	ID          string       `json:"id,omitempty"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyToID   string       `json:"reply_to_id,omitempty"`
}

// MessageWindowResponse is a chronological page of messages.
type MessageWindowResponse struct {
	Messages   []Message `json:"messages"`
	MoreLikely bool      `json:"more_likely"`
}

// MarkReadRequest identifies the messages a client just observed.
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

// ReactionRequest adds or removes a reaction on a message.
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// EditMessageRequest replaces a message's text.
type EditMessageRequest struct {
	Text string `json:"text"`
}

// ReportRequest records a spam report for a conversation.
type ReportRequest struct {
	Reason string `json:"reason"`
}
