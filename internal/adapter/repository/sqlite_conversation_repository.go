package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/domain/repository"
	"campusmarket/pkg/errors"
)

type sqliteConversationRepository struct {
	db *sql.DB
}

func NewSQLiteConversationRepository(db *sql.DB) repository.ConversationRepository {
	return &sqliteConversationRepository{db: db}
}

func (r *sqliteConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}
	if conversation.Key == "" {
		conversation.Key = entity.ConversationKey(conversation.ListingID, conversation.BuyerID, conversation.SellerID)
	}
	conversation.CreatedAt = time.Now().UTC()
	conversation.Participants = []string{conversation.BuyerID, conversation.SellerID}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO conversations (id, listing_id, buyer_id, seller_id, uniq_key, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		conversation.ID, conversation.ListingID, conversation.BuyerID, conversation.SellerID, conversation.Key, conversation.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("Conversation already exists", err)
		}
		return storeError("Failed to create conversation", err)
	}

	return nil
}

func (r *sqliteConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, listing_id, buyer_id, seller_id, uniq_key, message_count, created_at FROM conversations WHERE id = ?",
		id,
	)

	conversation, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Conversation", nil)
	}
	if err != nil {
		return nil, storeError("Failed to get conversation", err)
	}

	return conversation, nil
}

func (r *sqliteConversationRepository) FindByParticipant(ctx context.Context, participantID string) ([]*entity.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, listing_id, buyer_id, seller_id, uniq_key, message_count, created_at
		FROM conversations
		WHERE buyer_id = ? OR seller_id = ?
		ORDER BY created_at ASC, id ASC`,
		participantID, participantID,
	)
	if err != nil {
		return nil, storeError("Failed to list conversations", err)
	}
	defer rows.Close()

	var conversations []*entity.Conversation
	for rows.Next() {
		conversation, err := scanConversation(rows)
		if err != nil {
			return nil, storeError("Failed to scan conversation", err)
		}
		conversations = append(conversations, conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("Failed to iterate conversations", err)
	}

	return conversations, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*entity.Conversation, error) {
	conversation := &entity.Conversation{}
	err := row.Scan(
		&conversation.ID, &conversation.ListingID, &conversation.BuyerID, &conversation.SellerID,
		&conversation.Key, &conversation.MessageCount, &conversation.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	conversation.Participants = []string{conversation.BuyerID, conversation.SellerID}
	return conversation, nil
}
