package usecase

import (
	"context"
	"sort"
	"sync"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/infrastructure/realtime"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
)

type SessionState int

const (
	SessionHydrating SessionState = iota
	SessionLive
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionHydrating:
		return "hydrating"
	case SessionLive:
		return "live"
	case SessionClosed:
		return "closed"
	}
	return "unknown"
}

// StreamSession is the live, ordered message list of one open conversation.
//
// Opening subscribes before loading history, so nothing inserted during the
// load is missed; the overlap is removed by message id. The list is kept in
// store order (Seq), never in arrival order.
type StreamSession struct {
	conversationID string
	userID         string
	messages       *MessageUseCase
	bus            realtime.Bus
	backoff        Backoff

	mu    sync.RWMutex
	state SessionState
	list  []*entity.Message
	seen  map[string]struct{}

	updates   chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// OpenStreamSession hydrates the conversation for userID and starts
// following it. It returns once the history is loaded.
func OpenStreamSession(
	ctx context.Context,
	messages *MessageUseCase,
	bus realtime.Bus,
	conversationID, userID string,
	backoff Backoff,
) (*StreamSession, error) {
	s := &StreamSession{
		conversationID: conversationID,
		userID:         userID,
		messages:       messages,
		bus:            bus,
		backoff:        backoff,
		state:          SessionHydrating,
		seen:           make(map[string]struct{}),
		updates:        make(chan struct{}, 1),
		done:           make(chan struct{}),
	}

	sub, err := bus.Subscribe(ctx, entity.ConversationScope(conversationID))
	if err != nil {
		logger.Error("OpenSession Error: Failed to subscribe to %s: %v", conversationID, err)
		return nil, err
	}

	if err := s.hydrate(ctx); err != nil {
		sub.Close()
		logger.Error("OpenSession Error: Failed to load history of %s: %v", conversationID, err)
		return nil, err
	}
	s.drain(sub)

	s.mu.Lock()
	s.state = SessionLive
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(runCtx, sub)

	return s, nil
}

func (s *StreamSession) ConversationID() string {
	return s.conversationID
}

func (s *StreamSession) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Messages returns a snapshot of the ordered list.
func (s *StreamSession) Messages() []*entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.Message, len(s.list))
	copy(out, s.list)
	return out
}

// Updates signals that the list changed. Signals coalesce; read Messages
// after each one.
func (s *StreamSession) Updates() <-chan struct{} {
	return s.updates
}

// Done is closed once the session stopped following the conversation.
func (s *StreamSession) Done() <-chan struct{} {
	return s.done
}

// Send stores text as the session user's message and shows it right away,
// without waiting for the bus echo.
func (s *StreamSession) Send(ctx context.Context, text string) (*entity.Message, error) {
	if s.State() == SessionClosed {
		return nil, errors.BadRequest("Conversation is not open", nil).WithDetail("text", text)
	}

	message, err := s.messages.Send(ctx, s.conversationID, s.userID, text)
	if err != nil {
		return nil, err
	}
	if s.apply(message) {
		s.notify()
	}
	return message, nil
}

// Close stops the session and releases its subscription before returning.
func (s *StreamSession) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = SessionClosed
		s.mu.Unlock()

		s.cancel()
		<-s.done
	})
}

func (s *StreamSession) run(ctx context.Context, sub *realtime.Subscription) {
	defer close(s.done)

	scope := entity.ConversationScope(s.conversationID)
	for {
		select {
		case <-ctx.Done():
			sub.Close()
			return

		case event := <-sub.Events():
			if s.apply(event.Message) {
				s.notify()
			}

		case <-sub.Done():
			s.drain(sub)
			logger.Warn("Session for %s lost its subscription: %v", s.conversationID, sub.Err())

			next, ok := resubscribe(ctx, s.bus, scope, s.backoff, s.hydrate)
			if !ok {
				return
			}
			sub = next
		}
	}
}

// hydrate merges the stored history into the list.
func (s *StreamSession) hydrate(ctx context.Context) error {
	history, err := s.messages.History(ctx, s.conversationID, s.userID)
	if err != nil {
		return err
	}

	changed := false
	for _, message := range history {
		if s.apply(message) {
			changed = true
		}
	}
	if changed {
		s.notify()
	}
	return nil
}

// drain applies whatever is already buffered on sub without waiting.
func (s *StreamSession) drain(sub *realtime.Subscription) {
	changed := false
	for {
		select {
		case event := <-sub.Events():
			if s.apply(event.Message) {
				changed = true
			}
		default:
			if changed {
				s.notify()
			}
			return
		}
	}
}

// apply inserts message at its store position unless it is already known.
func (s *StreamSession) apply(message *entity.Message) bool {
	if message == nil || message.ConversationID != s.conversationID {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionClosed {
		return false
	}
	if _, ok := s.seen[message.ID]; ok {
		return false
	}
	s.seen[message.ID] = struct{}{}

	i := sort.Search(len(s.list), func(i int) bool {
		return message.Before(s.list[i])
	})
	s.list = append(s.list, nil)
	copy(s.list[i+1:], s.list[i:])
	s.list[i] = message
	return true
}

func (s *StreamSession) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
