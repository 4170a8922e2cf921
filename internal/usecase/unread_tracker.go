package usecase

import (
	"context"
	"sync"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/infrastructure/realtime"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
)

// recentMessageIDs is how many delivered message ids the tracker remembers
// for duplicate suppression.
const recentMessageIDs = 1024

// UnreadTracker counts incoming messages per conversation for one signed-in
// user. It lives as long as that user's session and only sees messages
// delivered while it runs; nothing is reconstructed from history.
type UnreadTracker struct {
	userID  string
	bus     realtime.Bus
	backoff Backoff

	mu     sync.RWMutex
	counts map[string]int
	open   map[string]bool
	seen   map[string]struct{}
	recent []string
	next   int

	changes chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func NewUnreadTracker(userID string, bus realtime.Bus, backoff Backoff) *UnreadTracker {
	return &UnreadTracker{
		userID:  userID,
		bus:     bus,
		backoff: backoff,
		counts:  make(map[string]int),
		open:    make(map[string]bool),
		seen:    make(map[string]struct{}),
		recent:  make([]string, recentMessageIDs),
		changes: make(chan struct{}, 1),
	}
}

// Start subscribes to every conversation of the user.
func (t *UnreadTracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.done != nil {
		t.mu.Unlock()
		return errors.BadRequest("Unread tracker already started", nil)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	t.mu.Unlock()

	sub, err := t.bus.Subscribe(ctx, entity.GlobalScope(t.userID))
	if err != nil {
		cancel()
		close(t.done)
		logger.Error("UnreadTracker Error: Failed to subscribe for %s: %v", t.userID, err)
		return err
	}

	go t.run(runCtx, sub)
	return nil
}

func (t *UnreadTracker) run(ctx context.Context, sub *realtime.Subscription) {
	defer close(t.done)

	scope := entity.GlobalScope(t.userID)
	for {
		select {
		case <-ctx.Done():
			sub.Close()
			return

		case event := <-sub.Events():
			t.Observe(event)

		case <-sub.Done():
			logger.Warn("UnreadTracker for %s lost its subscription: %v", t.userID, sub.Err())
			next, ok := resubscribe(ctx, t.bus, scope, t.backoff, nil)
			if !ok {
				return
			}
			sub = next
		}
	}
}

// Observe applies one message event. Own messages, messages into an open
// conversation and repeated deliveries do not count.
func (t *UnreadTracker) Observe(event entity.MessageEvent) {
	message := event.Message
	if message == nil || message.SenderID == t.userID || !event.Involves(t.userID) {
		return
	}

	t.mu.Lock()
	if _, ok := t.seen[message.ID]; ok {
		t.mu.Unlock()
		return
	}
	t.remember(message.ID)

	if t.open[message.ConversationID] {
		t.mu.Unlock()
		return
	}
	t.counts[message.ConversationID]++
	t.mu.Unlock()

	t.notify()
}

// remember records id, evicting the oldest remembered id. Caller holds mu.
func (t *UnreadTracker) remember(id string) {
	if old := t.recent[t.next]; old != "" {
		delete(t.seen, old)
	}
	t.recent[t.next] = id
	t.seen[id] = struct{}{}
	t.next = (t.next + 1) % len(t.recent)
}

// SetOpen marks the conversation as on screen and clears its marker.
func (t *UnreadTracker) SetOpen(conversationID string) {
	t.mu.Lock()
	t.open[conversationID] = true
	_, hadUnread := t.counts[conversationID]
	delete(t.counts, conversationID)
	t.mu.Unlock()

	if hadUnread {
		t.notify()
	}
}

func (t *UnreadTracker) SetClosed(conversationID string) {
	t.mu.Lock()
	delete(t.open, conversationID)
	t.mu.Unlock()
}

func (t *UnreadTracker) IsUnread(conversationID string) bool {
	return t.Count(conversationID) > 0
}

func (t *UnreadTracker) Count(conversationID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[conversationID]
}

// Badge is the total number of unread messages across conversations.
func (t *UnreadTracker) Badge() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := 0
	for _, n := range t.counts {
		total += n
	}
	return total
}

func (t *UnreadTracker) Snapshot() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]int, len(t.counts))
	for id, n := range t.counts {
		out[id] = n
	}
	return out
}

// Clear resets one conversation's marker. Other markers are left alone.
func (t *UnreadTracker) Clear(conversationID string) {
	t.mu.Lock()
	_, hadUnread := t.counts[conversationID]
	delete(t.counts, conversationID)
	t.mu.Unlock()

	if hadUnread {
		t.notify()
	}
}

// Changes signals that some count changed. Signals coalesce.
func (t *UnreadTracker) Changes() <-chan struct{} {
	return t.changes
}

// Close stops the tracker and releases its subscription.
func (t *UnreadTracker) Close() {
	t.once.Do(func() {
		t.mu.Lock()
		if t.done == nil {
			// never started; make a later Start fail
			t.done = make(chan struct{})
			close(t.done)
		}
		cancel, done := t.cancel, t.done
		t.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if done != nil {
			<-done
		}
	})
}

func (t *UnreadTracker) notify() {
	select {
	case t.changes <- struct{}{}:
	default:
	}
}
