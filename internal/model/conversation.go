// Package model defines data structures for the messaging platform.
package model

import (
	"time"
)

// ConversationStatus is the request-gate state of a conversation.
type ConversationStatus string

const (
	// StatusPending means the conversation awaits the recipient's consent.
	StatusPending ConversationStatus = "pending"
	// StatusAccepted means both sides may send freely.
	StatusAccepted ConversationStatus = "accepted"
	// StatusDeclined means the recipient rejected the request. Terminal.
	StatusDeclined ConversationStatus = "declined"
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined:
		return true
	}
	return false
}

// Conversation is a thread of messages among a fixed participant set.
type Conversation struct {
	ID               string             `json:"id"`
	ParticipantIDs   []string           `json:"participant_ids"`
	ParticipantNames map[string]string  `json:"participant_names,omitempty"`
	IsGroup          bool               `json:"is_group"`
	GroupName        string             `json:"group_name,omitempty"`
	Status           ConversationStatus `json:"status"`
	RequesterID      string             `json:"requester_id,omitempty"`
	RequestReadBy    []string           `json:"request_read_by,omitempty"`
	MessageCounts    map[string]int64   `json:"message_counts,omitempty"`
	UnreadCounts     map[string]int64   `json:"unread_counts,omitempty"`
	ArchivedBy       []string           `json:"archived_by,omitempty"`
	DeletedBy        map[string]bool    `json:"deleted_by,omitempty"`
	PinnedBy         []string           `json:"pinned_by,omitempty"`
	MutedBy          []string           `json:"muted_by,omitempty"`
	LastMessageText  string             `json:"last_message_text,omitempty"`
	LastMessageAt    time.Time          `json:"last_message_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ArchivedByUser reports whether userID archived the conversation.
func (c *Conversation) ArchivedByUser(userID string) bool {
	return contains(c.ArchivedBy, userID)
}

// DeletedByUser reports whether userID soft-deleted the conversation.
func (c *Conversation) DeletedByUser(userID string) bool {
	return c.DeletedBy[userID]
}

// PinnedByUser reports whether userID pinned the conversation.
func (c *Conversation) PinnedByUser(userID string) bool {
	return contains(c.PinnedBy, userID)
}

// MutedByUser reports whether userID muted the conversation.
func (c *Conversation) MutedByUser(userID string) bool {
	return contains(c.MutedBy, userID)
}

// UnreadFor returns userID's unread counter.
func (c *Conversation) UnreadFor(userID string) int64 {
	return c.UnreadCounts[userID]
}

// MessageCountFor returns how many messages userID has sent, tracked only
// while the request gate limits the requester.
func (c *Conversation) MessageCountFor(userID string) int64 {
	return c.MessageCounts[userID]
}

// OtherParticipants returns every participant id except userID.
func (c *Conversation) OtherParticipants(userID string) []string {
	others := make([]string, 0, len(c.ParticipantIDs))
	for _, id := range c.ParticipantIDs {
		if id != userID {
			others = append(others, id)
		}
	}
	return others
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Identity is the authenticated caller, supplied by the identity provider
// and passed explicitly into every operation.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// CreateConversationRequest is the request to start a conversation.
type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
	IsGroup        bool     `json:"is_group"`
	GroupName      string   `json:"group_name,omitempty"`
}

// ConversationListResponse is a projection of the caller's conversations.
type ConversationListResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
