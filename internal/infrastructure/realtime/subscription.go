package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"campusmarket/internal/domain/entity"
	"campusmarket/pkg/errors"
)

// releaseTimeout bounds how long Close waits for a backend consumer to stop.
const releaseTimeout = 2 * time.Second

// Subscription is a live, scoped stream of message events.
//
// Events is never closed; consumers select on Done as well. After Done is
// closed, Err reports why: nil when the owner called Close, a
// SUBSCRIPTION_DROPPED AppError when the bus gave up on the subscriber. An
// event already in flight may still land in the buffer after Close and must
// be ignored by the consumer.
type Subscription struct {
	id     string
	scope  entity.Scope
	events chan entity.MessageEvent
	done   chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error

	release func()
	stopped <-chan struct{}
}

func newSubscription(scope entity.Scope, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}
	return &Subscription{
		id:     uuid.New().String(),
		scope:  scope,
		events: make(chan entity.MessageEvent, buffer),
		done:   make(chan struct{}),
	}
}

func (s *Subscription) ID() string { return s.id }
func (s *Subscription) Scope() entity.Scope { return s.scope }
func (s *Subscription) Events() <-chan entity.MessageEvent { return s.events }
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the backend resources and returns once they are released
// (or releaseTimeout passed). Safe to call more than once.
func (s *Subscription) Close() {
	s.finish(nil)

	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	if stopped != nil {
		select {
		case <-stopped:
		case <-time.After(releaseTimeout):
		}
	}
}

// bind attaches the backend's release hook. A subscription dropped before
// the hook was attached is released immediately.
func (s *Subscription) bind(release func(), stopped <-chan struct{}) {
	s.mu.Lock()
	s.release = release
	s.stopped = stopped
	s.mu.Unlock()

	select {
	case <-s.done:
		release()
	default:
	}
}

func (s *Subscription) drop(cause error) {
	s.finish(errors.SubscriptionDropped("Realtime subscription dropped", cause))
}

func (s *Subscription) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		release := s.release
		s.mu.Unlock()

		close(s.done)
		if release != nil {
			release()
		}
	})
}

// deliver hands an event to the consumer without ever blocking the
// publisher. A full buffer means the consumer fell behind: it is dropped
// and expected to resubscribe and re-hydrate.
func (s *Subscription) deliver(event entity.MessageEvent) {
	select {
	case <-s.done:
		return
	default:
	}

	if !s.scope.Matches(event) {
		return
	}

	select {
	case s.events <- event:
	default:
		s.drop(errors.New(errors.CodeSubscriptionDropped, "subscriber buffer full", 0, nil))
	}
}
