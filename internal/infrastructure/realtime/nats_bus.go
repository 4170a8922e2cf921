package realtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"campusmarket/internal/domain/entity"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
)

// NatsBus carries events over JetStream. Each conversation has its own
// subject under the prefix; the global scope consumes the wildcard.
type NatsBus struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
	prefix string
	buffer int
}

// NewNatsBus connects to NATS and makes sure the message stream exists.
func NewNatsBus(ctx context.Context, url, stream, prefix string, buffer int) (*NatsBus, error) {
	nc, err := nats.Connect(url,
		nats.Name("campusmarket-chat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := js.Stream(ctx, stream); err != nil {
		logger.Info("Stream '%s' not found, attempting to create...", stream)
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        stream,
			Description: "Chat message inserted events",
			Subjects:    []string{prefix + ".*"},
			MaxAge:      24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Duplicates:  2 * time.Minute,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream '%s': %w", stream, err)
		}
		logger.Info("Stream '%s' created successfully", stream)
	}

	return &NatsBus{nc: nc, js: js, stream: stream, prefix: prefix, buffer: buffer}, nil
}

func (b *NatsBus) subject(conversationID string) string {
	return fmt.Sprintf("%s.%s", b.prefix, conversationID)
}

// Publish uses the message id as the JetStream dedupe id, so a retried
// publish of the same message is stored once.
func (b *NatsBus) Publish(ctx context.Context, event entity.MessageEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	data, err := encodeEvent(event)
	if err != nil {
		return errors.Internal("Failed to encode event", err)
	}

	subject := b.subject(event.ConversationID())
	if _, err := b.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.Message.ID)); err != nil {
		return errors.StoreUnavailable(fmt.Sprintf("Failed to publish to %s", subject), err)
	}
	logger.Debug("Published message %s to %s", event.Message.ID, subject)
	return nil
}

// Subscribe starts an ordered consumer that only sees events published from
// now on. History comes from the message store, not from the stream.
func (b *NatsBus) Subscribe(ctx context.Context, scope entity.Scope) (*Subscription, error) {
	filter := b.prefix + ".*"
	if !scope.IsGlobal() {
		filter = b.subject(scope.ConversationID)
	}

	cons, err := b.js.OrderedConsumer(ctx, b.stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{filter},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, errors.StoreUnavailable(fmt.Sprintf("Failed to create consumer for '%s'", filter), err)
	}

	sub := newSubscription(scope, b.buffer)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		event, err := decodeEvent(msg.Data())
		if err != nil {
			logger.Warn("Dropping malformed event on '%s': %v", msg.Subject(), err)
			return
		}
		sub.deliver(event)
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		if stderrors.Is(err, nats.ErrConnectionClosed) || stderrors.Is(err, jetstream.ErrConsumerDeleted) {
			sub.drop(err)
			return
		}
		logger.Warn("Consumer error on '%s': %v", filter, err)
	}))
	if err != nil {
		return nil, errors.StoreUnavailable(fmt.Sprintf("Failed to start consuming from '%s'", filter), err)
	}

	sub.bind(cc.Stop, cc.Closed())

	logger.Debug("Subscribing to %s", filter)
	return sub, nil
}

func (b *NatsBus) Close() error {
	if b.nc != nil {
		b.nc.Close()
	}
	return nil
}
