package repository

import (
	"context"

	"campusmarket/internal/domain/entity"
)

type ConversationRepository interface {
	// Create assigns ID and CreatedAt. It fails with a CONFLICT AppError when
	// a conversation with the same Key already exists.
	Create(ctx context.Context, conversation *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	FindByParticipant(ctx context.Context, participantID string) ([]*entity.Conversation, error)
}
