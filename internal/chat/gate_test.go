package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flocknet/messaging-platform/internal/model"
)

func TestCreateConversationBetweenStrangersIsPending(t *testing.T) {
	svc, store := newTestService(t)
	seedPair(t, store)

	conv := createDirect(t, svc, alice, "bob")
	assert.Equal(t, model.StatusPending, conv.Status)
	assert.Equal(t, "alice", conv.RequesterID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, conv.ParticipantIDs)
	assert.Equal(t, "Bob", conv.ParticipantNames["bob"])
}

func TestCreateConversationBetweenMutualsIsAccepted(t *testing.T) {
	svc, store := newTestService(t)
	seedMutuals(t, store)

	conv := createDirect(t, svc, alice, "bob")
	assert.Equal(t, model.StatusAccepted, conv.Status)
	assert.Empty(t, conv.RequesterID)
}

func TestCreateConversationOneWayFollowIsAccepted(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "alice", "Alice", true, "bob")
	seedUser(t, store, "bob", "Bob", true)

	// Alice follows Bob; without a mutual-follow requirement that is enough
	// to skip the request gate.
	conv := createDirect(t, svc, alice, "bob")
	assert.Equal(t, model.StatusAccepted, conv.Status)
	assert.Empty(t, conv.RequesterID)
}

func TestCreateConversationRequiresFollowDowngradesToPending(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "alice", "Alice", true, "bob")
	require.NoError(t, store.Create(context.Background(), "users/bob", map[string]any{
		"displayName":           "Bob",
		"allowsMessageRequests": true,
		"requiresFollow":        true,
	}))

	// Bob insists on a mutual follow, so Alice's one-way follow lands as a
	// pending request rather than failing.
	conv := createDirect(t, svc, alice, "bob")
	assert.Equal(t, model.StatusPending, conv.Status)
	assert.Equal(t, "alice", conv.RequesterID)
}

func TestCreateConversationRecipientDisallowsRequests(t *testing.T) {
	svc, store := newTestService(t)
	seedUser(t, store, "alice", "Alice", true)
	seedUser(t, store, "bob", "Bob", false)

	_, err := svc.CreateConversation(context.Background(), alice, model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	assert.True(t, IsCode(err, CodeMessagesNotAllowed), "got %v", err)
}

func TestCreateConversationWithSelfRejected(t *testing.T) {
	svc, store := newTestService(t)
	seedPair(t, store)

	_, err := svc.CreateConversation(context.Background(), alice, model.CreateConversationRequest{
		ParticipantIDs: []string{"alice"},
	})
	assert.True(t, IsCode(err, CodeSelfConversation), "got %v", err)

	_, err = svc.CreateConversation(context.Background(), alice, model.CreateConversationRequest{})
	assert.True(t, IsCode(err, CodeSelfConversation), "got %v", err)
}

func TestCreateDirectConversationIsDeduplicated(t *testing.T) {
	svc, store := newTestService(t)
	seedMutuals(t, store)

	first := createDirect(t, svc, alice, "bob")
	second := createDirect(t, svc, alice, "bob")
	assert.Equal(t, first.ID, second.ID)

	// Same pair from the other side resolves to the same conversation.
	third := createDirect(t, svc, bob, "alice")
	assert.Equal(t, first.ID, third.ID)
}

func TestCreateGroupConversation(t *testing.T) {
	svc, store := newTestService(t)
	seedPair(t, store)
	seedUser(t, store, "carol", "Carol", true)

	conv := createGroup(t, svc, alice, "weekend plans", "bob", "carol")
	assert.True(t, conv.IsGroup)
	assert.Equal(t, "weekend plans", conv.GroupName)
	assert.Equal(t, model.StatusAccepted, conv.Status)
	assert.Len(t, conv.ParticipantIDs, 3)

	_, err := svc.CreateConversation(context.Background(), alice, model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
		IsGroup:        true,
		GroupName:      "   ",
	})
	assert.True(t, IsCode(err, CodeInvalidInput), "got %v", err)
}

func TestRequesterLimitedToOneMessageWhilePending(t *testing.T) {
	svc, store := newTestService(t)
	seedPair(t, store)
	ctx := context.Background()

	conv := createDirect(t, svc, alice, "bob")

	_, err := svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{Text: "hey"})
	require.NoError(t, err)

	ok, reason, err := svc.CanSend(ctx, alice, conv.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ReasonAwaitingAcceptance, reason)

	_, err = svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{Text: "hello??"})
	assert.True(t, IsCode(err, CodePermissionDenied), "got %v", err)
}

func TestRecipientReplyAutoAccepts(t *testing.T) {
	svc, store := newTestService(t)
	seedPair(t, store)
	ctx := context.Background()

	conv := createDirect(t, svc, alice, "bob")
	_, err := svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{Text: "hey"})
	require.NoError(t, err)

	// Replying is consent.
	_, err = svc.Send(ctx, bob, conv.ID, model.SendMessageRequest{Text: "hi!"})
	require.NoError(t, err)

	assert.Equal(t, model.StatusAccepted, reload(t, svc, "alice", conv.ID).Status)

	// The former requester can now send freely.
	_, err = svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{Text: "great"})
	require.NoError(t, err)
}

func TestAcceptRequest(t *testing.T) {
	svc, store := newTestService(t)
	seedPair(t, store)
	ctx := context.Background()

	conv := createDirect(t, svc, alice, "bob")

	// The requester cannot resolve their own request.
	err := svc.Accept(ctx, alice, conv.ID)
	assert.True(t, IsCode(err, CodePermissionDenied), "got %v", err)

	require.NoError(t, svc.Accept(ctx, bob, conv.ID))
	got := reload(t, svc, "bob", conv.ID)
	assert.Equal(t, model.StatusAccepted, got.Status)
	assert.Contains(t, got.RequestReadBy, "bob")

	// Accepting again is a no-op.
	require.NoError(t, svc.Accept(ctx, bob, conv.ID))

	ok, _, err := svc.CanSend(ctx, alice, conv.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeclineIsTerminal(t *testing.T) {
	svc, store := newTestService(t)
	seedPair(t, store)
	ctx := context.Background()

	conv := createDirect(t, svc, alice, "bob")
	require.NoError(t, svc.Decline(ctx, bob, conv.ID))

	assert.Equal(t, model.StatusDeclined, reload(t, svc, "bob", conv.ID).Status)

	// Neither side can send anymore, including the recipient.
	_, err := svc.Send(ctx, alice, conv.ID, model.SendMessageRequest{Text: "hello?"})
	assert.True(t, IsCode(err, CodePermissionDenied), "got %v", err)
	_, err = svc.Send(ctx, bob, conv.ID, model.SendMessageRequest{Text: "actually"})
	assert.True(t, IsCode(err, CodePermissionDenied), "got %v", err)

	// Declined never flips back to accepted.
	err = svc.Accept(ctx, bob, conv.ID)
	assert.True(t, IsCode(err, CodePermissionDenied), "got %v", err)

	ok, reason, err := svc.CanSend(ctx, alice, conv.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ReasonDeclined, reason)
}

func TestPendingRequestsListsIncomingOnly(t *testing.T) {
	svc, store := newTestService(t)
	seedPair(t, store)
	seedUser(t, store, "carol", "Carol", true)
	ctx := context.Background()

	outgoing := createDirect(t, svc, bob, "carol")
	incoming := createDirect(t, svc, alice, "bob")

	reqs, err := svc.PendingRequests(ctx, bob)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, incoming.ID, reqs[0].ID)
	assert.NotEqual(t, outgoing.ID, reqs[0].ID)

	// Accepted conversations drop out of the listing.
	require.NoError(t, svc.Accept(ctx, bob, incoming.ID))
	reqs, err = svc.PendingRequests(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestMarkRequestRead(t *testing.T) {
	svc, store := newTestService(t)
	seedPair(t, store)
	ctx := context.Background()

	conv := createDirect(t, svc, alice, "bob")
	require.NoError(t, svc.MarkRequestRead(ctx, bob, conv.ID))

	got := reload(t, svc, "bob", conv.ID)
	assert.Contains(t, got.RequestReadBy, "bob")
	// Reading a request does not resolve it.
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestConversationHiddenFromNonParticipants(t *testing.T) {
	svc, store := newTestService(t)
	seedMutuals(t, store)
	seedUser(t, store, "carol", "Carol", true)
	ctx := context.Background()

	conv := createDirect(t, svc, alice, "bob")

	_, err := svc.Send(ctx, carol, conv.ID, model.SendMessageRequest{Text: "hi"})
	assert.True(t, IsCode(err, CodeNotFound), "got %v", err)

	_, _, err = svc.CanSend(ctx, carol, conv.ID)
	assert.True(t, IsCode(err, CodeNotFound), "got %v", err)
}

func TestOperationsRequireIdentity(t *testing.T) {
	svc, store := newTestService(t)
	seedPair(t, store)
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, model.Identity{}, model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	assert.True(t, IsCode(err, CodeNotAuthenticated), "got %v", err)

	_, err = svc.Send(ctx, model.Identity{}, "c1", model.SendMessageRequest{Text: "x"})
	assert.True(t, IsCode(err, CodeNotAuthenticated), "got %v", err)

	err = svc.Archive(ctx, model.Identity{}, "c1")
	assert.True(t, IsCode(err, CodeNotAuthenticated), "got %v", err)
}
