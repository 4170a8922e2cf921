package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusmarket/internal/domain/entity"
	"campusmarket/pkg/errors"
)

func startTracker(t *testing.T, f *fixture, userID string) *UnreadTracker {
	t.Helper()
	tracker := NewUnreadTracker(userID, f.bus, testBackoff)
	require.NoError(t, tracker.Start(context.Background()))
	t.Cleanup(tracker.Close)
	return tracker
}

func TestUnreadTracker_Lifecycle(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	ctx := context.Background()
	conversationID := f.conversation(t)
	tracker := startTracker(t, f, "s1")

	_, err := f.messageUC.Send(ctx, conversationID, "b1", "hello?")
	require.NoError(t, err)
	eventually(t, func() bool { return tracker.IsUnread(conversationID) }, "incoming message not marked unread")

	tracker.SetOpen(conversationID)
	assert.False(t, tracker.IsUnread(conversationID))
	tracker.SetClosed(conversationID)

	_, err = f.messageUC.Send(ctx, conversationID, "s1", "yes, still available")
	require.NoError(t, err)

	// a later message from the counterparty proves the own message was processed
	other, err := f.resolver.Resolve(ctx, "b2", "s1", "listing-2")
	require.NoError(t, err)
	_, err = f.messageUC.Send(ctx, other, "b2", "ping")
	require.NoError(t, err)
	eventually(t, func() bool { return tracker.IsUnread(other) }, "second conversation not marked")

	assert.False(t, tracker.IsUnread(conversationID))
}

func TestUnreadTracker_OpenConversationStaysRead(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	conv := &entity.Conversation{ID: "c1", BuyerID: "b1", SellerID: "s1"}
	tracker := NewUnreadTracker("s1", f.bus, testBackoff)

	tracker.SetOpen("c1")
	tracker.Observe(entity.NewMessageInserted(conv, &entity.Message{ID: "m1", ConversationID: "c1", SenderID: "b1"}))
	assert.False(t, tracker.IsUnread("c1"))

	tracker.SetClosed("c1")
	tracker.Observe(entity.NewMessageInserted(conv, &entity.Message{ID: "m2", ConversationID: "c1", SenderID: "b1"}))
	assert.True(t, tracker.IsUnread("c1"))
}

func TestUnreadTracker_CountsEachMessageOnce(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	c1 := &entity.Conversation{ID: "c1", BuyerID: "b1", SellerID: "s1"}
	c2 := &entity.Conversation{ID: "c2", BuyerID: "b2", SellerID: "s1"}
	tracker := NewUnreadTracker("s1", f.bus, testBackoff)

	m1 := entity.NewMessageInserted(c1, &entity.Message{ID: "m1", ConversationID: "c1", SenderID: "b1"})
	tracker.Observe(m1)
	tracker.Observe(m1)
	tracker.Observe(entity.NewMessageInserted(c1, &entity.Message{ID: "m2", ConversationID: "c1", SenderID: "b1"}))
	tracker.Observe(entity.NewMessageInserted(c2, &entity.Message{ID: "m3", ConversationID: "c2", SenderID: "b2"}))

	assert.Equal(t, 2, tracker.Count("c1"))
	assert.Equal(t, 1, tracker.Count("c2"))
	assert.Equal(t, 3, tracker.Badge())
	assert.Equal(t, map[string]int{"c1": 2, "c2": 1}, tracker.Snapshot())

	tracker.Clear("c1")
	assert.False(t, tracker.IsUnread("c1"))
	assert.True(t, tracker.IsUnread("c2"))
	assert.Equal(t, 1, tracker.Badge())

	select {
	case <-tracker.Changes():
	default:
		t.Fatal("expected a change signal")
	}
}

func TestUnreadTracker_IgnoresForeignConversations(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	tracker := NewUnreadTracker("s1", f.bus, testBackoff)

	foreign := &entity.Conversation{ID: "c9", BuyerID: "x", SellerID: "y"}
	tracker.Observe(entity.NewMessageInserted(foreign, &entity.Message{ID: "m1", ConversationID: "c9", SenderID: "x"}))

	assert.Equal(t, 0, tracker.Badge())
}

func TestUnreadTracker_ResubscribesAfterDrop(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	ctx := context.Background()
	conversationID := f.conversation(t)
	tracker := startTracker(t, f, "s1")

	f.bus.DropAll()
	eventually(t, func() bool { return f.bus.SubscriberCount() == 1 }, "tracker did not resubscribe")

	_, err := f.messageUC.Send(ctx, conversationID, "b1", "are you there?")
	require.NoError(t, err)
	eventually(t, func() bool { return tracker.IsUnread(conversationID) }, "message after reconnect not counted")
}

func TestUnreadTracker_CloseReleasesSubscription(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	tracker := NewUnreadTracker("s1", f.bus, testBackoff)
	require.NoError(t, tracker.Start(context.Background()))
	assert.Equal(t, 1, f.bus.SubscriberCount())

	tracker.Close()
	tracker.Close()
	assert.Equal(t, 0, f.bus.SubscriberCount())

	err := tracker.Start(context.Background())
	assert.True(t, errors.Is(err, errors.CodeBadRequest), "got %v", err)
}
