package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/domain/repository"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
)

const (
	conversationsCollection    = "conversations"
	conversationKeysCollection = "conversation_keys"
	messagesCollection         = "messages"
)

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

// Create writes the conversation together with a key document in one
// transaction. The key document is the uniqueness constraint: tx.Create
// fails with AlreadyExists when another caller won the race.
func (r *firestoreConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}
	if conversation.Key == "" {
		conversation.Key = entity.ConversationKey(conversation.ListingID, conversation.BuyerID, conversation.SellerID)
	}
	conversation.CreatedAt = time.Now().UTC()
	conversation.Participants = []string{conversation.BuyerID, conversation.SellerID}

	convRef := r.client.Collection(conversationsCollection).Doc(conversation.ID)
	keyRef := r.client.Collection(conversationKeysCollection).Doc(keyDocID(conversation.Key))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(keyRef, map[string]interface{}{
			"conversationId": conversation.ID,
			"key":            conversation.Key,
			"createdAt":      conversation.CreatedAt,
		}); err != nil {
			return err
		}
		return tx.Create(convRef, conversation)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("Conversation already exists", err)
		}
		logger.Error("Firestore error while creating conversation %s: %v", conversation.Key, err)
		return storeError("Failed to create conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.client.Collection(conversationsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", nil)
		}
		return nil, storeError("Failed to get conversation", err)
	}

	var conversation entity.Conversation
	if err := doc.DataTo(&conversation); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	conversation.ID = doc.Ref.ID

	return &conversation, nil
}

func (r *firestoreConversationRepository) FindByParticipant(ctx context.Context, participantID string) ([]*entity.Conversation, error) {
	query := r.client.Collection(conversationsCollection).
		Where("participants", "array-contains", participantID).
		OrderBy("createdAt", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var conversations []*entity.Conversation
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("Firestore error while listing conversations for user %s: %v", participantID, err)
			return nil, storeError("Failed to list conversations", err)
		}

		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			logger.Error("Error parsing conversation %s: %v", doc.Ref.ID, err)
			continue // Skip bad data instead of failing
		}
		conversation.ID = doc.Ref.ID
		conversations = append(conversations, &conversation)
	}

	return conversations, nil
}

// keyDocID turns a conversation key into a valid document id.
func keyDocID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
