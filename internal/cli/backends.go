// Package cli implements the chatctl operator commands.
package cli

import (
	"context"

	"campusmarket/internal/app"
	"campusmarket/internal/infrastructure/realtime"
	"campusmarket/internal/usecase"
	"campusmarket/pkg/config"
)

type backends struct {
	bus      realtime.Bus
	resolver *usecase.ConversationResolver
	messages *usecase.MessageUseCase
	closers  []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// open is swapped in tests to share one in-memory store and bus between
// commands.
var open = openBackends

func openBackends(ctx context.Context) (*backends, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bus, err := app.OpenBus(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	scope, err := usecase.ParseScopePolicy(cfg.ConversationScope)
	if err != nil {
		bus.Close()
		store.Close()
		return nil, err
	}

	return &backends{
		bus:      bus,
		resolver: usecase.NewConversationResolver(store.Conversations, scope, cfg.StoreTimeout, nil),
		messages: usecase.NewMessageUseCase(store.Conversations, store.Messages, bus, cfg.StoreTimeout, nil),
		closers:  []func() error{store.Close, bus.Close},
	}, nil
}
