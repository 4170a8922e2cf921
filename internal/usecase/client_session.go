package usecase

import (
	"context"
	"sync"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/infrastructure/realtime"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
)

// ClientSession is everything one connected client of a signed-in user
// needs: conversation lookup, the open conversations and the unread
// markers. Each connection owns its own ClientSession.
type ClientSession struct {
	userID   string
	resolver *ConversationResolver
	messages *MessageUseCase
	bus      realtime.Bus
	backoff  Backoff
	unread   *UnreadTracker

	mu       sync.Mutex
	sessions map[string]*StreamSession
	closed   bool
}

func NewClientSession(
	userID string,
	resolver *ConversationResolver,
	messages *MessageUseCase,
	bus realtime.Bus,
	backoff Backoff,
) *ClientSession {
	return &ClientSession{
		userID:   userID,
		resolver: resolver,
		messages: messages,
		bus:      bus,
		backoff:  backoff,
		unread:   NewUnreadTracker(userID, bus, backoff),
		sessions: make(map[string]*StreamSession),
	}
}

func (c *ClientSession) UserID() string {
	return c.userID
}

// Start begins unread tracking for the user.
func (c *ClientSession) Start(ctx context.Context) error {
	return c.unread.Start(ctx)
}

func (c *ClientSession) Unread() *UnreadTracker {
	return c.unread
}

func (c *ClientSession) ResolveConversation(ctx context.Context, counterpartyID, listingID string) (string, error) {
	return c.resolver.Resolve(ctx, c.userID, counterpartyID, listingID)
}

// OpenSession returns the live session of a conversation, opening it if it
// is not open yet. At most one session per conversation exists. The lock is
// not held while the session hydrates; when two opens race the first one
// stored wins and the other is closed.
func (c *ClientSession) OpenSession(ctx context.Context, conversationID string) (*StreamSession, error) {
	if session, ok, err := c.openSession(conversationID); ok || err != nil {
		return session, err
	}

	session, err := OpenStreamSession(ctx, c.messages, c.bus, conversationID, c.userID, c.backoff)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		session.Close()
		return nil, errClientClosed()
	}
	if existing, ok := c.sessions[conversationID]; ok {
		c.mu.Unlock()
		session.Close()
		return existing, nil
	}
	c.sessions[conversationID] = session
	c.unread.SetOpen(conversationID)
	c.mu.Unlock()

	logger.Debug("User %s opened conversation %s", c.userID, conversationID)
	return session, nil
}

func (c *ClientSession) openSession(conversationID string) (*StreamSession, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false, errClientClosed()
	}
	session, ok := c.sessions[conversationID]
	return session, ok, nil
}

func (c *ClientSession) Session(conversationID string) (*StreamSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.sessions[conversationID]
	return session, ok
}

// Send goes through the open session when there is one, so the sender sees
// its own message immediately.
func (c *ClientSession) Send(ctx context.Context, conversationID, text string) (*entity.Message, error) {
	if session, ok := c.Session(conversationID); ok {
		return session.Send(ctx, text)
	}
	return c.messages.Send(ctx, conversationID, c.userID, text)
}

func (c *ClientSession) GetUnreadBadge(conversationID string) bool {
	return c.unread.IsUnread(conversationID)
}

func (c *ClientSession) ClearUnread(conversationID string) {
	c.unread.Clear(conversationID)
}

// CloseSession closes one conversation; its subscription is released when
// this returns.
func (c *ClientSession) CloseSession(conversationID string) {
	c.mu.Lock()
	session, ok := c.sessions[conversationID]
	delete(c.sessions, conversationID)
	c.mu.Unlock()

	if !ok {
		return
	}
	session.Close()
	c.unread.SetClosed(conversationID)
	logger.Debug("User %s closed conversation %s", c.userID, conversationID)
}

// Close tears down every open session and the unread tracker.
func (c *ClientSession) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sessions := c.sessions
	c.sessions = make(map[string]*StreamSession)
	c.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	c.unread.Close()
}

func errClientClosed() error {
	return errors.BadRequest("Client session is closed", nil)
}
