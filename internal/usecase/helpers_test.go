package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campusmarket/internal/adapter/repository"
	"campusmarket/internal/domain/entity"
	domainrepo "campusmarket/internal/domain/repository"
	"campusmarket/internal/infrastructure/realtime"
)

var testBackoff = Backoff{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond}

type fixture struct {
	conversations domainrepo.ConversationRepository
	messages      domainrepo.MessageRepository
	bus           *realtime.MemoryBus
	resolver      *ConversationResolver
	messageUC     *MessageUseCase
}

func newFixture(t *testing.T, scope ScopePolicy) *fixture {
	t.Helper()

	db, err := repository.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := realtime.NewMemoryBus(64)
	t.Cleanup(func() { bus.Close() })

	conversations := repository.NewSQLiteConversationRepository(db)
	messages := repository.NewSQLiteMessageRepository(db)

	return &fixture{
		conversations: conversations,
		messages:      messages,
		bus:           bus,
		resolver:      NewConversationResolver(conversations, scope, 5*time.Second, nil),
		messageUC:     NewMessageUseCase(conversations, messages, bus, 5*time.Second, nil),
	}
}

// conversation resolves a b1/s1 conversation about listing-1.
func (f *fixture) conversation(t *testing.T) string {
	t.Helper()
	id, err := f.resolver.Resolve(context.Background(), "b1", "s1", "listing-1")
	require.NoError(t, err)
	return id
}

func (f *fixture) openSession(t *testing.T, conversationID, userID string) *StreamSession {
	t.Helper()
	session, err := OpenStreamSession(context.Background(), f.messageUC, f.bus, conversationID, userID, testBackoff)
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return session
}

func texts(messages []*entity.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Text)
	}
	return out
}

func eventually(t *testing.T, condition func() bool, msg string) {
	t.Helper()
	require.Eventually(t, condition, 2*time.Second, 5*time.Millisecond, msg)
}

// stubConversationRepo scripts store behaviour the SQLite store cannot
// produce on demand.
type stubConversationRepo struct {
	mu          sync.Mutex
	findResults [][]*entity.Conversation
	findErr     error
	findCalls   int
	createErr   error
	getConv     *entity.Conversation
	getErr      error
	block       bool
}

func (r *stubConversationRepo) Create(ctx context.Context, conversation *entity.Conversation) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if r.createErr != nil {
		return r.createErr
	}
	conversation.ID = "created"
	return nil
}

func (r *stubConversationRepo) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.getConv, nil
}

func (r *stubConversationRepo) FindByParticipant(ctx context.Context, participantID string) ([]*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.findErr != nil {
		return nil, r.findErr
	}
	call := r.findCalls
	r.findCalls++
	if call < len(r.findResults) {
		return r.findResults[call], nil
	}
	if len(r.findResults) > 0 {
		return r.findResults[len(r.findResults)-1], nil
	}
	return nil, nil
}

// stubMessageRepo fails writes with createErr; with block set every call
// waits for the caller's deadline.
type stubMessageRepo struct {
	createErr error
	block     bool
}

func (r *stubMessageRepo) Create(ctx context.Context, message *entity.Message) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.createErr
}

func (r *stubMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, nil
}

// failingBus accepts subscriptions from a MemoryBus but fails every publish.
type failingBus struct {
	*realtime.MemoryBus
	err error
}

func (b *failingBus) Publish(ctx context.Context, event entity.MessageEvent) error {
	return b.err
}
