package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flocknet/messaging-platform/internal/model"
)

func TestSendRejectsEmptyMessage(t *testing.T) {
	svc, store := newTestService(t)
	seedMutuals(t, store)
	conv := createDirect(t, svc, alice, "bob")

	_, err := svc.Send(context.Background(), alice, conv.ID, model.SendMessageRequest{Text: "   "})
	assert.True(t, IsCode(err, CodeInvalidInput), "got %v", err)

	// Attachment-only messages are fine.
	msg, err := svc.Send(context.Background(), alice, conv.ID, model.SendMessageRequest{
		Attachments: []model.Attachment{{URL: "https://cdn/x.png", Kind: "image"}},
	})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "[attachment]", reload(t, svc, "alice", conv.ID).LastMessageText)
}

func TestSendUpdatesUnreadCounters(t *testing.T) {
	svc, store := newTestService(t)
	seedMutuals(t, store)
	ctx := context.Background()
	conv := createDirect(t, svc, alice, "bob")

	_, err := svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{Text: "one"})
	require.NoError(t, err)
	_, err = svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{Text: "two"})
	require.NoError(t, err)

	got := reload(t, svc, "bob", conv.ID)
	assert.Equal(t, int64(2), got.UnreadFor("bob"))
	assert.Equal(t, int64(0), got.UnreadFor("alice"))
	assert.Equal(t, "two", got.LastMessageText)
	assert.False(t, got.LastMessageAt.IsZero())
}

func TestSendToGroupIncrementsEveryOtherParticipant(t *testing.T) {
	svc, store := newTestService(t)
	seedPair(t, store)
	seedUser(t, store, "carol", "Carol", true)
	ctx := context.Background()

	conv := createGroup(t, svc, alice, "trip", "bob", "carol")
	_, err := svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{Text: "who's in?"})
	require.NoError(t, err)

	got := reload(t, svc, "alice", conv.ID)
	assert.Equal(t, int64(1), got.UnreadFor("bob"))
	assert.Equal(t, int64(1), got.UnreadFor("carol"))
	assert.Equal(t, int64(0), got.UnreadFor("alice"))
}

func TestSendMarksMessageReadBySender(t *testing.T) {
	svc, store := newTestService(t)
	seedMutuals(t, store)
	conv := createDirect(t, svc, alice, "bob")

	msg, err := svc.Send(context.Background(), alice, conv.ID, model.SendMessageRequest{Text: "hi"})
	require.NoError(t, err)
	assert.True(t, msg.ReadByUser("alice"))
	assert.False(t, msg.ReadByUser("bob"))
	assert.Equal(t, model.DeliverySent, msg.Delivery)
	assert.False(t, msg.SentAt.IsZero())
}

func TestSendIsIdempotentPerMessageID(t *testing.T) {
	svc, store := newTestService(t)
	seedMutuals(t, store)
	ctx := context.Background()
	conv := createDirect(t, svc, alice, "bob")

	id := uuid.NewString()
	first, err := svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{ID: id, Text: "hi"})
	require.NoError(t, err)

	// A retry of the same send returns the committed message and leaves the
	// counters alone.
	second, err := svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{ID: id, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got := reload(t, svc, "bob", conv.ID)
	assert.Equal(t, int64(1), got.UnreadFor("bob"))

	_, err = svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{ID: "not-a-uuid", Text: "hi"})
	assert.True(t, IsCode(err, CodeInvalidInput), "got %v", err)
}

func TestMarkReadResetsUnreadCounter(t *testing.T) {
	svc, store := newTestService(t)
	seedMutuals(t, store)
	ctx := context.Background()
	conv := createDirect(t, svc, alice, "bob")

	m1, err := svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{Text: "one"})
	require.NoError(t, err)
	m2, err := svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{Text: "two"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, bob, conv.ID, []string{m1.ID, m2.ID}))

	got := reload(t, svc, "bob", conv.ID)
	assert.Equal(t, int64(0), got.UnreadFor("bob"))

	msg, err := svc.getMessage(ctx, conv.ID, m1.ID)
	require.NoError(t, err)
	assert.True(t, msg.ReadByUser("bob"))
	assert.True(t, msg.ReadByUser("alice"))

	// Marking read twice stays at zero.
	require.NoError(t, svc.MarkRead(ctx, bob, conv.ID, []string{m1.ID}))
	assert.Equal(t, int64(0), reload(t, svc, "bob", conv.ID).UnreadFor("bob"))
}

func TestMarkReadUnknownMessageLeavesCounterIntact(t *testing.T) {
	svc, store := newTestService(t)
	seedMutuals(t, store)
	ctx := context.Background()
	conv := createDirect(t, svc, alice, "bob")

	_, err := svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{Text: "one"})
	require.NoError(t, err)

	// The batch is atomic: a bad message id fails the whole mark-read, so
	// the unread counter must not reset.
	err = svc.MarkRead(ctx, bob, conv.ID, []string{uuid.NewString()})
	assert.True(t, IsCode(err, CodeNotFound), "got %v", err)
	assert.Equal(t, int64(1), reload(t, svc, "bob", conv.ID).UnreadFor("bob"))
}

func TestSendResurfacesDeletedConversation(t *testing.T) {
	svc, store := newTestService(t)
	seedMutuals(t, store)
	ctx := context.Background()
	conv := createDirect(t, svc, alice, "bob")

	require.NoError(t, svc.Delete(ctx, alice, conv.ID))
	assert.True(t, reload(t, svc, "alice", conv.ID).DeletedByUser("alice"))

	_, err := svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{Text: "back"})
	require.NoError(t, err)
	assert.False(t, reload(t, svc, "alice", conv.ID).DeletedByUser("alice"))
}
