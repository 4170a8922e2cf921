package repository

import (
	"context"

	"campusmarket/internal/domain/entity"
)

type MessageRepository interface {
	// Create assigns ID, Seq and CreatedAt.
	Create(ctx context.Context, message *entity.Message) error
	// ListByConversation returns the full history in insertion order.
	ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error)
}
