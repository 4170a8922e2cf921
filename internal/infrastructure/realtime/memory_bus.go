package realtime

import (
	"context"
	"sync"

	"campusmarket/internal/domain/entity"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
)

// MemoryBus is an in-process bus for a single server node and for tests.
type MemoryBus struct {
	subscribers map[string]*Subscription
	buffer      int
	closed      bool
	mutex       sync.RWMutex
	publishMu   sync.Mutex
}

func NewMemoryBus(buffer int) *MemoryBus {
	return &MemoryBus{
		subscribers: make(map[string]*Subscription),
		buffer:      buffer,
	}
}

// Publish fans the event out to every matching subscriber. Publishes are
// serialized so all subscribers observe the same order.
func (b *MemoryBus) Publish(ctx context.Context, event entity.MessageEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mutex.RLock()
	if b.closed {
		b.mutex.RUnlock()
		return errors.StoreUnavailable("Realtime bus is closed", nil)
	}
	subs := make([]*Subscription, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mutex.RUnlock()

	for _, sub := range subs {
		sub.deliver(event)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, scope entity.Scope) (*Subscription, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return nil, errors.StoreUnavailable("Realtime bus is closed", nil)
	}

	sub := newSubscription(scope, b.buffer)
	b.subscribers[sub.id] = sub
	sub.release = func() {
		b.mutex.Lock()
		delete(b.subscribers, sub.id)
		b.mutex.Unlock()
	}

	logger.Debug("Subscription %s registered for %s", sub.id, scope)
	return sub, nil
}

// Close drops every live subscription.
func (b *MemoryBus) Close() error {
	b.mutex.Lock()
	b.closed = true
	subs := b.subscribers
	b.subscribers = make(map[string]*Subscription)
	b.mutex.Unlock()

	for _, sub := range subs {
		sub.drop(nil)
	}
	return nil
}

// SubscriberCount reports live subscriptions, for leak checks.
func (b *MemoryBus) SubscriberCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.subscribers)
}

// DropAll simulates a lost connection for every subscriber.
func (b *MemoryBus) DropAll() {
	b.mutex.RLock()
	subs := make([]*Subscription, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mutex.RUnlock()

	for _, sub := range subs {
		sub.drop(nil)
	}
}
