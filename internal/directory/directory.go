// Package directory exposes the identity-provider data the request gate
// needs: per-user messaging policy and follow relationships.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/flocknet/messaging-platform/internal/docstore"
)

// ErrUnknownUser is returned for user ids with no profile document.
var ErrUnknownUser = errors.New("unknown user")

// MessagePolicy is a recipient's stance on unsolicited conversations.
type MessagePolicy struct {
	// AllowsRequests permits conversations from strangers to arrive as
	// pending requests. When false, only mutual follows may start one.
	AllowsRequests bool
	// RequiresFollow downgrades stranger-initiated conversations to pending
	// even when the creator follows the recipient one-way.
	RequiresFollow bool
}

// Directory answers policy and relationship questions about users.
type Directory interface {
	Policy(ctx context.Context, userID string) (MessagePolicy, error)
	Follows(ctx context.Context, followerID, followeeID string) (bool, error)
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Profile document field names in the users collection.
const (
	usersCollection     = "users"
	fieldDisplayName    = "displayName"
	fieldAllowsRequests = "allowsMessageRequests"
	fieldRequiresFollow = "requiresFollow"
	fieldFollowing      = "following"
)

// StoreDirectory reads profiles from the document store.
type StoreDirectory struct {
	store docstore.Store
}

// NewStoreDirectory creates a directory backed by the users collection.
func NewStoreDirectory(store docstore.Store) *StoreDirectory {
	return &StoreDirectory{store: store}
}

func (d *StoreDirectory) profile(ctx context.Context, userID string) (docstore.Document, error) {
	doc, err := d.store.Get(ctx, usersCollection+"/"+userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return docstore.Document{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("failed to load profile %s: %w", userID, err)
	}
	return doc, nil
}

// Policy returns userID's messaging policy. Requests are allowed unless the
// profile opts out.
func (d *StoreDirectory) Policy(ctx context.Context, userID string) (MessagePolicy, error) {
	doc, err := d.profile(ctx, userID)
	if err != nil {
		return MessagePolicy{}, err
	}

	policy := MessagePolicy{AllowsRequests: true}
	if v, ok := doc.Data[fieldAllowsRequests].(bool); ok {
		policy.AllowsRequests = v
	}
	if v, ok := doc.Data[fieldRequiresFollow].(bool); ok {
		policy.RequiresFollow = v
	}
	return policy, nil
}

// Follows reports whether followerID follows followeeID.
func (d *StoreDirectory) Follows(ctx context.Context, followerID, followeeID string) (bool, error) {
	doc, err := d.profile(ctx, followerID)
	if err != nil {
		return false, err
	}

	switch following := doc.Data[fieldFollowing].(type) {
	case []string:
		for _, id := range following {
			if id == followeeID {
				return true, nil
			}
		}
	case []any:
		for _, id := range following {
			if id == followeeID {
				return true, nil
			}
		}
	}
	return false, nil
}

// DisplayName returns userID's display name.
func (d *StoreDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	doc, err := d.profile(ctx, userID)
	if err != nil {
		return "", err
	}
	name, _ := doc.Data[fieldDisplayName].(string)
	return name, nil
}
