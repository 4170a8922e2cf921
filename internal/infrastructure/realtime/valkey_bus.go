package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/valkey-io/valkey-go"

	"campusmarket/internal/domain/entity"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
)

// ValkeyBus carries events over valkey pub/sub. Pub/sub itself is
// fire-and-forget; a lost connection drops the subscription so the
// consumer re-hydrates from the store.
type ValkeyBus struct {
	client valkey.Client
	prefix string
	buffer int
	log    zerolog.Logger
}

func NewValkeyBus(addr, prefix string, buffer int) (*ValkeyBus, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}
	return &ValkeyBus{
		client: client,
		prefix: prefix,
		buffer: buffer,
		log:    logger.With("valkey_bus"),
	}, nil
}

func (b *ValkeyBus) channel(conversationID string) string {
	return fmt.Sprintf("%s:%s", b.prefix, conversationID)
}

func (b *ValkeyBus) Publish(ctx context.Context, event entity.MessageEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	data, err := encodeEvent(event)
	if err != nil {
		return errors.Internal("Failed to encode event", err)
	}

	channel := b.channel(event.ConversationID())
	cmd := b.client.B().Publish().Channel(channel).Message(string(data)).Build()
	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		return errors.StoreUnavailable(fmt.Sprintf("Failed to publish to %s", channel), err)
	}
	return nil
}

// Subscribe returns once valkey has confirmed the (P)SUBSCRIBE, so anything
// published after it returns reaches the subscription.
func (b *ValkeyBus) Subscribe(ctx context.Context, scope entity.Scope) (*Subscription, error) {
	var cmd valkey.Completed
	if scope.IsGlobal() {
		cmd = b.client.B().Psubscribe().Pattern(b.prefix + ":*").Build()
	} else {
		cmd = b.client.B().Subscribe().Channel(b.channel(scope.ConversationID)).Build()
	}

	sub := newSubscription(scope, b.buffer)
	recvCtx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	sub.bind(cancel, stopped)

	confirmed := make(chan struct{})
	var confirmOnce sync.Once
	hookCtx := valkey.WithOnSubscriptionHook(recvCtx, func(s valkey.PubSubSubscription) {
		if s.Kind == "subscribe" || s.Kind == "psubscribe" {
			confirmOnce.Do(func() { close(confirmed) })
		}
	})

	failed := make(chan error, 1)
	go func() {
		defer close(stopped)
		err := b.client.Receive(hookCtx, cmd, func(msg valkey.PubSubMessage) {
			event, err := decodeEvent([]byte(msg.Message))
			if err != nil {
				b.log.Warn().Str("channel", msg.Channel).Err(err).Msg("Dropping malformed event")
				return
			}
			sub.deliver(event)
		})
		failed <- err
		if recvCtx.Err() == nil {
			sub.drop(err)
		}
	}()

	if err := awaitSubscribed(ctx, confirmed, failed); err != nil {
		sub.Close()
		b.log.Warn().Str("scope", scope.String()).Err(err).Msg("Subscribe failed")
		return nil, err
	}

	b.log.Debug().Str("scope", scope.String()).Msg("Subscribed")
	return sub, nil
}

// awaitSubscribed blocks until the server confirmed the subscription, the
// receive loop ended, or ctx is done.
func awaitSubscribed(ctx context.Context, confirmed <-chan struct{}, failed <-chan error) error {
	select {
	case <-confirmed:
		return nil
	case err := <-failed:
		return errors.StoreUnavailable("Realtime subscription ended before it was confirmed", err)
	case <-ctx.Done():
		return errors.StoreUnavailable("Realtime subscription timed out", ctx.Err())
	}
}

func (b *ValkeyBus) Close() error {
	b.client.Close()
	return nil
}
