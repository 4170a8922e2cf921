package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/infrastructure/realtime"
	"campusmarket/pkg/errors"
)

func TestSend_ThenHistory(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	ctx := context.Background()
	conversationID := f.conversation(t)

	sent, err := f.messageUC.Send(ctx, conversationID, "b1", "Is this still available?")
	require.NoError(t, err)
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, int64(1), sent.Seq)

	history, err := f.messageUC.History(ctx, conversationID, "s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Is this still available?", history[0].Text)
	assert.Equal(t, "b1", history[0].SenderID)
	assert.Equal(t, sent.ID, history[0].ID)
}

func TestSend_TrimsText(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	conversationID := f.conversation(t)

	sent, err := f.messageUC.Send(context.Background(), conversationID, "b1", "  hello there \n")
	require.NoError(t, err)
	assert.Equal(t, "hello there", sent.Text)
}

func TestSend_RejectsBlankText(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	ctx := context.Background()
	conversationID := f.conversation(t)

	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := f.messageUC.Send(ctx, conversationID, "b1", text)
		assert.True(t, errors.Is(err, errors.CodeEmptyMessage), "text %q: got %v", text, err)
	}

	history, err := f.messageUC.History(ctx, conversationID, "b1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSend_RejectsOutsider(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	conversationID := f.conversation(t)

	_, err := f.messageUC.Send(context.Background(), conversationID, "mallory", "hi")
	assert.True(t, errors.Is(err, errors.CodeForbidden), "got %v", err)

	_, err = f.messageUC.History(context.Background(), conversationID, "mallory")
	assert.True(t, errors.Is(err, errors.CodeForbidden), "got %v", err)
}

func TestSend_UnknownConversation(t *testing.T) {
	f := newFixture(t, ScopePerListing)

	_, err := f.messageUC.Send(context.Background(), "missing", "b1", "hi")
	assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
}

func TestSend_FailureKeepsText(t *testing.T) {
	conv := &entity.Conversation{ID: "c1", BuyerID: "b1", SellerID: "s1"}
	bus := realtime.NewMemoryBus(8)

	t.Run("store rejects the write", func(t *testing.T) {
		uc := NewMessageUseCase(
			&stubConversationRepo{getConv: conv},
			&stubMessageRepo{createErr: errors.Internal("Failed to create message", nil)},
			bus, time.Second, nil,
		)

		_, err := uc.Send(context.Background(), "c1", "b1", " still there? ")
		assert.True(t, errors.Is(err, errors.CodeSendFailed), "got %v", err)

		text, ok := errors.UnsentText(err)
		assert.True(t, ok)
		assert.Equal(t, " still there? ", text)
	})

	t.Run("store unavailable", func(t *testing.T) {
		uc := NewMessageUseCase(
			&stubConversationRepo{getConv: conv},
			&stubMessageRepo{createErr: errors.StoreUnavailable("Failed to begin transaction", nil)},
			bus, time.Second, nil,
		)

		_, err := uc.Send(context.Background(), "c1", "b1", "still there?")
		assert.True(t, errors.Is(err, errors.CodeStoreUnavailable), "got %v", err)

		text, ok := errors.UnsentText(err)
		assert.True(t, ok)
		assert.Equal(t, "still there?", text)
	})

	t.Run("store hangs past the timeout", func(t *testing.T) {
		uc := NewMessageUseCase(
			&stubConversationRepo{getConv: conv},
			&stubMessageRepo{block: true},
			bus, 50*time.Millisecond, nil,
		)

		start := time.Now()
		_, err := uc.Send(context.Background(), "c1", "b1", "hello")
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.True(t, errors.Is(err, errors.CodeStoreUnavailable), "got %v", err)

		text, ok := errors.UnsentText(err)
		assert.True(t, ok)
		assert.Equal(t, "hello", text)
	})
}

func TestSend_PublishesInsertedEvent(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	ctx := context.Background()
	conversationID := f.conversation(t)

	sub, err := f.bus.Subscribe(ctx, entity.GlobalScope("s1"))
	require.NoError(t, err)
	defer sub.Close()

	sent, err := f.messageUC.Send(ctx, conversationID, "b1", "hello")
	require.NoError(t, err)

	select {
	case event := <-sub.Events():
		assert.Equal(t, entity.EventMessageInserted, event.Type)
		assert.Equal(t, sent.ID, event.Message.ID)
		assert.Equal(t, [2]string{"b1", "s1"}, event.Participants)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestSend_PublishFailureStillSucceeds(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	conversationID := f.conversation(t)

	bus := &failingBus{MemoryBus: f.bus, err: errors.StoreUnavailable("Realtime bus is closed", nil)}
	uc := NewMessageUseCase(f.conversations, f.messages, bus, time.Second, nil)

	sent, err := uc.Send(context.Background(), conversationID, "b1", "durable anyway")
	require.NoError(t, err)

	history, err := uc.History(context.Background(), conversationID, "b1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, sent.ID, history[0].ID)
}

func TestListConversations_ShowsOtherParticipant(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	ctx := context.Background()

	first, err := f.resolver.Resolve(ctx, "b1", "s1", "listing-1")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := f.resolver.Resolve(ctx, "s2", "b1", "listing-2")
	require.NoError(t, err)

	summaries, err := f.messageUC.ListConversations(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, second, summaries[0].ID)
	assert.Equal(t, "s2", summaries[0].OtherUserID)
	assert.Equal(t, first, summaries[1].ID)
	assert.Equal(t, "s1", summaries[1].OtherUserID)
}
