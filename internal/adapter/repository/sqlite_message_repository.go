package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/domain/repository"
	"campusmarket/pkg/errors"
)

type sqliteMessageRepository struct {
	db *sql.DB
}

func NewSQLiteMessageRepository(db *sql.DB) repository.MessageRepository {
	return &sqliteMessageRepository{db: db}
}

// Create bumps the conversation's message_count and inserts the message with
// that value as its Seq, inside one transaction.
func (r *sqliteMessageRepository) Create(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("Failed to begin transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE conversations SET message_count = message_count + 1 WHERE id = ?",
		message.ConversationID,
	)
	if err != nil {
		return storeError("Failed to reserve message sequence", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NotFound("Conversation", fmt.Errorf("conversation %s not found", message.ConversationID))
	}

	if err := tx.QueryRowContext(ctx,
		"SELECT message_count FROM conversations WHERE id = ?",
		message.ConversationID,
	).Scan(&message.Seq); err != nil {
		return storeError("Failed to read message sequence", err)
	}

	message.CreatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, sender_id, text, seq, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		message.ID, message.ConversationID, message.SenderID, message.Text, message.Seq, message.CreatedAt,
	); err != nil {
		return storeError("Failed to create message", err)
	}

	if err := tx.Commit(); err != nil {
		return storeError("Failed to commit message", err)
	}

	return nil
}

func (r *sqliteMessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, text, seq, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, storeError("Failed to list messages", err)
	}
	defer rows.Close()

	var messages []*entity.Message
	for rows.Next() {
		message := &entity.Message{}
		if err := rows.Scan(
			&message.ID, &message.ConversationID, &message.SenderID, &message.Text, &message.Seq, &message.CreatedAt,
		); err != nil {
			return nil, storeError("Failed to scan message", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("Failed to iterate messages", err)
	}

	return messages, nil
}
