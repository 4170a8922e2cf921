package usecase

import (
	"context"
	"time"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/infrastructure/realtime"
	"campusmarket/pkg/logger"
)

// Backoff bounds the delay between resubscribe attempts after the bus
// dropped a subscription.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

var DefaultBackoff = Backoff{Initial: 200 * time.Millisecond, Max: 5 * time.Second}

func (b Backoff) next(current time.Duration) time.Duration {
	if current <= 0 {
		if b.Initial <= 0 {
			return time.Millisecond
		}
		return b.Initial
	}
	current *= 2
	if b.Max > 0 && current > b.Max {
		current = b.Max
	}
	return current
}

// resubscribe keeps trying to subscribe to scope until it succeeds or ctx is
// done. rehydrate runs after every successful subscribe; if it fails the new
// subscription is released and the loop continues.
func resubscribe(
	ctx context.Context,
	bus realtime.Bus,
	scope entity.Scope,
	backoff Backoff,
	rehydrate func(ctx context.Context) error,
) (*realtime.Subscription, bool) {
	var delay time.Duration
	for {
		delay = backoff.next(delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		sub, err := bus.Subscribe(ctx, scope)
		if err != nil {
			logger.Warn("Resubscribe to %s failed, retrying in %v: %v", scope, backoff.next(delay), err)
			continue
		}
		if rehydrate != nil {
			if err := rehydrate(ctx); err != nil {
				sub.Close()
				logger.Warn("Re-hydration for %s failed, retrying: %v", scope, err)
				continue
			}
		}
		logger.Info("Resubscribed to %s", scope)
		return sub, true
	}
}
