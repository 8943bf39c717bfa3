package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/internal/model"
	"github.com/flocknet/messaging-platform/pkg/logger"
)

var registryBase = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// putConversation writes a conversation document directly.
func putConversation(t *testing.T, store *docstore.Memory, id string, minute int, extra map[string]any) {
	t.Helper()
	data := map[string]any{
		model.FieldParticipants: []any{"alice", "bob"},
		model.FieldStatus:       string(model.StatusAccepted),
		model.FieldUpdatedAt:    registryBase.Add(time.Duration(minute) * time.Minute),
	}
	for k, v := range extra {
		data[k] = v
	}
	require.NoError(t, store.Create(context.Background(), conversationPath(id), data))
}

func ids(convs []model.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func TestRegistryProjections(t *testing.T) {
	store := docstore.NewMemory()
	putConversation(t, store, "active", 1, nil)
	putConversation(t, store, "mine-pending", 2, map[string]any{
		model.FieldStatus:      string(model.StatusPending),
		model.FieldRequesterID: "alice",
	})
	putConversation(t, store, "incoming", 3, map[string]any{
		model.FieldStatus:      string(model.StatusPending),
		model.FieldRequesterID: "bob",
	})
	putConversation(t, store, "archived", 4, map[string]any{
		model.FieldArchivedBy: []any{"alice"},
	})
	putConversation(t, store, "deleted", 5, map[string]any{
		model.FieldDeletedBy: map[string]any{"alice": true},
	})

	r := NewRegistry(store, "alice", logger.NewNop())
	snap, err := r.SnapshotNow(context.Background())
	require.NoError(t, err)

	// A pending request the user sent stays in the active list; only
	// incoming requests go to the requests projection. Deleted is invisible
	// everywhere.
	assert.Equal(t, []string{"mine-pending", "active"}, ids(snap.Active))
	assert.Equal(t, []string{"archived"}, ids(snap.Archived))
	assert.Equal(t, []string{"incoming"}, ids(snap.Requests))
}

func TestRegistrySortsByLastActivity(t *testing.T) {
	store := docstore.NewMemory()
	// Updated recently but last message long ago.
	putConversation(t, store, "quiet", 10, map[string]any{
		model.FieldLastMessageAt: registryBase.Add(1 * time.Minute),
	})
	putConversation(t, store, "busy", 2, map[string]any{
		model.FieldLastMessageAt: registryBase.Add(9 * time.Minute),
	})
	// No last message at all falls back to updatedAt.
	putConversation(t, store, "new", 5, nil)

	r := NewRegistry(store, "alice", logger.NewNop())
	snap, err := r.SnapshotNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"busy", "new", "quiet"}, ids(snap.Active))
}

func TestRegistrySkipsMalformedDocuments(t *testing.T) {
	store := docstore.NewMemory()
	putConversation(t, store, "good", 1, nil)
	require.NoError(t, store.Create(context.Background(), conversationPath("bad"), map[string]any{
		model.FieldParticipants: []any{"alice"},
		model.FieldStatus:       "garbage",
		model.FieldUpdatedAt:    registryBase,
	}))

	r := NewRegistry(store, "alice", logger.NewNop())
	snap, err := r.SnapshotNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, ids(snap.Active))
}

func TestRegistryLiveUpdates(t *testing.T) {
	store := docstore.NewMemory()
	putConversation(t, store, "c1", 1, nil)

	r := NewRegistry(store, "alice", logger.NewNop())
	require.NoError(t, r.Subscribe())
	defer r.Unsubscribe()

	require.Eventually(t, func() bool {
		return len(r.Snapshot().Active) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Archiving on another device moves the conversation between lists.
	require.NoError(t, store.Update(context.Background(), conversationPath("c1"), map[string]any{
		model.FieldArchivedBy: docstore.ArrayUnion("alice"),
	}))

	require.Eventually(t, func() bool {
		snap := r.Snapshot()
		return len(snap.Active) == 0 && len(snap.Archived) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegistrySubscribeIsIdempotent(t *testing.T) {
	store := docstore.NewMemory()
	putConversation(t, store, "c1", 1, nil)

	r := NewRegistry(store, "alice", logger.NewNop())
	require.NoError(t, r.Subscribe())
	require.NoError(t, r.Subscribe())
	defer r.Unsubscribe()

	require.Eventually(t, func() bool {
		return len(r.Snapshot().Active) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Unsubscribing twice is safe too.
	r.Unsubscribe()
	r.Unsubscribe()
}

func TestRegistryOptimisticArchive(t *testing.T) {
	store := docstore.NewMemory()
	putConversation(t, store, "c1", 1, nil)
	putConversation(t, store, "c2", 2, nil)

	r := NewRegistry(store, "alice", logger.NewNop())
	require.NoError(t, r.Subscribe())
	defer r.Unsubscribe()

	require.Eventually(t, func() bool {
		return len(r.Snapshot().Active) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// The local move happens ahead of any store confirmation.
	r.applyLocalArchive("c1", true)
	snap := r.Snapshot()
	assert.Equal(t, []string{"c2"}, ids(snap.Active))
	assert.Equal(t, []string{"c1"}, ids(snap.Archived))

	r.applyLocalArchive("c1", false)
	snap = r.Snapshot()
	assert.Len(t, snap.Active, 2)
	assert.Empty(t, snap.Archived)

	// Unknown ids are ignored.
	r.applyLocalArchive("nope", true)
	assert.Len(t, r.Snapshot().Active, 2)
}

func TestRegistryDeduplicatesDocuments(t *testing.T) {
	r := NewRegistry(docstore.NewMemory(), "alice", logger.NewNop())

	doc := docstore.Document{ID: "c1", Data: map[string]any{
		model.FieldParticipants: []any{"alice", "bob"},
		model.FieldStatus:       string(model.StatusAccepted),
	}}
	snap := r.project([]docstore.Document{doc, doc})
	assert.Len(t, snap.Active, 1)
}
