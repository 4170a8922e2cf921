// Package app opens the store and bus backends named by the configuration.
// The API server and chatctl share it.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"campusmarket/internal/adapter/repository"
	domainrepo "campusmarket/internal/domain/repository"
	"campusmarket/internal/infrastructure/realtime"
	"campusmarket/pkg/config"
	"campusmarket/pkg/logger"
)

// Store bundles the two repositories of one backend.
type Store struct {
	Backend       string
	Conversations domainrepo.ConversationRepository
	Messages      domainrepo.MessageRepository

	closer func() error
}

func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// FirebaseOption picks the service account credentials: inline JSON first,
// then a file path, then application default credentials.
func FirebaseOption(cfg *config.Config) option.ClientOption {
	if cfg.FirebaseServiceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		return option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON))
	}
	if cfg.FirebaseServiceAccountPath != "" {
		logger.Info("Using Firebase service account from file: %s", cfg.FirebaseServiceAccountPath)
		return option.WithCredentialsFile(cfg.FirebaseServiceAccountPath)
	}
	return nil
}

func clientOptions(cfg *config.Config) []option.ClientOption {
	if opt := FirebaseOption(cfg); opt != nil {
		return []option.ClientOption{opt}
	}
	return nil
}

// NewFirebaseApp initializes the Firebase app for the configured project.
func NewFirebaseApp(ctx context.Context, cfg *config.Config) (*fbapp.App, error) {
	app, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase: %w", err)
	}
	return app, nil
}

// OpenStore opens the configured durable store.
func OpenStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.StoreBackend {
	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirebaseProject, clientOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore client: %w", err)
		}
		return &Store{
			Backend:       config.StoreFirestore,
			Conversations: repository.NewFirestoreConversationRepository(client),
			Messages:      repository.NewFirestoreMessageRepository(client),
			closer:        client.Close,
		}, nil

	case config.StoreSQLite:
		db, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqliteStore(db), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func sqliteStore(db *sql.DB) *Store {
	return &Store{
		Backend:       config.StoreSQLite,
		Conversations: repository.NewSQLiteConversationRepository(db),
		Messages:      repository.NewSQLiteMessageRepository(db),
		closer:        db.Close,
	}
}

// OpenBus connects the configured realtime bus.
func OpenBus(ctx context.Context, cfg *config.Config) (realtime.Bus, error) {
	switch cfg.BusBackend {
	case config.BusMemory:
		return realtime.NewMemoryBus(cfg.SubscriptionBuffer), nil
	case config.BusNATS:
		return realtime.NewNatsBus(ctx, cfg.NatsURL, cfg.NatsStream, cfg.NatsSubjectPrefix, cfg.SubscriptionBuffer)
	case config.BusValkey:
		return realtime.NewValkeyBus(cfg.ValkeyAddr, cfg.ValkeyChannelPrefix, cfg.SubscriptionBuffer)
	}
	return nil, fmt.Errorf("unknown bus backend %q", cfg.BusBackend)
}
