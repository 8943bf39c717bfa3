package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flocknet/messaging-platform/internal/directory"
	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/internal/model"
	"github.com/flocknet/messaging-platform/pkg/logger"
)

var (
	alice = model.Identity{ID: "alice", DisplayName: "Alice"}
	bob   = model.Identity{ID: "bob", DisplayName: "Bob"}
	carol = model.Identity{ID: "carol", DisplayName: "Carol"}
)

func newTestService(t *testing.T) (*Service, *docstore.Memory) {
	t.Helper()
	store := docstore.NewMemory()
	sessions := NewSessions(store, 10, logger.NewNop())
	svc := NewService(store, directory.NewStoreDirectory(store), nil, sessions, logger.NewNop())
	return svc, store
}

func seedUser(t *testing.T, store *docstore.Memory, id, name string, allowsRequests bool, following ...string) {
	t.Helper()
	data := map[string]any{
		"displayName":           name,
		"allowsMessageRequests": allowsRequests,
	}
	if len(following) > 0 {
		data["following"] = following
	}
	require.NoError(t, store.Create(context.Background(), "users/"+id, data))
}

// seedPair registers alice and bob as strangers who both accept requests.
func seedPair(t *testing.T, store *docstore.Memory) {
	t.Helper()
	seedUser(t, store, "alice", "Alice", true)
	seedUser(t, store, "bob", "Bob", true)
}

// seedMutuals registers alice and bob as mutual follows.
func seedMutuals(t *testing.T, store *docstore.Memory) {
	t.Helper()
	seedUser(t, store, "alice", "Alice", true, "bob")
	seedUser(t, store, "bob", "Bob", true, "alice")
}

func createDirect(t *testing.T, svc *Service, creator model.Identity, other string) *model.Conversation {
	t.Helper()
	conv, err := svc.CreateConversation(context.Background(), creator, model.CreateConversationRequest{
		ParticipantIDs: []string{other},
	})
	require.NoError(t, err)
	return conv
}

func createGroup(t *testing.T, svc *Service, creator model.Identity, name string, others ...string) *model.Conversation {
	t.Helper()
	conv, err := svc.CreateConversation(context.Background(), creator, model.CreateConversationRequest{
		ParticipantIDs: others,
		IsGroup:        true,
		GroupName:      name,
	})
	require.NoError(t, err)
	return conv
}

func reload(t *testing.T, svc *Service, userID, conversationID string) *model.Conversation {
	t.Helper()
	conv, err := svc.loadConversation(context.Background(), userID, conversationID)
	require.NoError(t, err)
	return conv
}
