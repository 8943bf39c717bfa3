package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flocknet/messaging-platform/internal/docstore"
	"github.com/flocknet/messaging-platform/pkg/logger"
)

func TestSessionsGetCreatesOnDemand(t *testing.T) {
	store := docstore.NewMemory()
	sessions := NewSessions(store, 0, logger.NewNop())

	assert.Equal(t, DefaultWindowSize, sessions.WindowSize())
	assert.Nil(t, sessions.peek("alice"))

	s1 := sessions.Get("alice")
	s2 := sessions.Get("alice")
	assert.Same(t, s1, s2)
	assert.NotSame(t, s1, sessions.Get("bob"))
	assert.Same(t, s1, sessions.peek("alice"))
}

func TestSessionOpensOneStreamAtATime(t *testing.T) {
	store := docstore.NewMemory()
	sessions := NewSessions(store, 5, logger.NewNop())
	log := logger.NewNop()

	s := sessions.Get("alice")

	first, err := s.OpenStream(store, "c1", 5, log)
	require.NoError(t, err)
	assert.Same(t, first, s.Stream("c1"))
	assert.Nil(t, s.Stream("c2"))

	// Reopening the same conversation reuses the stream.
	again, err := s.OpenStream(store, "c1", 5, log)
	require.NoError(t, err)
	assert.Same(t, first, again)

	// Opening another conversation closes the first.
	second, err := s.OpenStream(store, "c2", 5, log)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Nil(t, s.Stream("c1"))
	assert.Same(t, second, s.Stream("c2"))

	s.CloseStream("c1") // wrong id, no-op
	assert.Same(t, second, s.Stream("c2"))
	s.CloseStream("c2")
	assert.Nil(t, s.Stream("c2"))
}

func TestSessionsEnd(t *testing.T) {
	store := docstore.NewMemory()
	sessions := NewSessions(store, 5, logger.NewNop())

	s := sessions.Get("alice")
	_, err := s.OpenStream(store, "c1", 5, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Registry().Subscribe())

	sessions.End("alice")
	assert.Nil(t, sessions.peek("alice"))

	// Ending an unknown user is safe.
	sessions.End("nobody")
}

func TestArchiveUpdatesSessionRegistryOptimistically(t *testing.T) {
	svc, store := newTestService(t)
	seedMutuals(t, store)
	ctx := context.Background()
	conv := createDirect(t, svc, alice, "bob")

	reg := svc.sessions.Get("alice").Registry()
	require.NoError(t, reg.Subscribe())
	defer reg.Unsubscribe()

	require.Eventually(t, func() bool {
		return len(reg.Snapshot().Active) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Archive(ctx, alice, conv.ID))
	require.Eventually(t, func() bool {
		snap := reg.Snapshot()
		return len(snap.Active) == 0 && len(snap.Archived) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Unarchive(ctx, alice, conv.ID))
	require.Eventually(t, func() bool {
		return len(reg.Snapshot().Active) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
