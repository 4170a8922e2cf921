package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/domain/repository"
	"campusmarket/internal/infrastructure/ratelimit"
	"campusmarket/internal/infrastructure/realtime"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
)

type MessageUseCase struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	bus              realtime.Bus
	timeout          time.Duration
	rateLimiter      *ratelimit.RateLimiter
}

func NewMessageUseCase(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	bus realtime.Bus,
	timeout time.Duration,
	rateLimiter *ratelimit.RateLimiter,
) *MessageUseCase {
	return &MessageUseCase{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		bus:              bus,
		timeout:          timeout,
		rateLimiter:      rateLimiter,
	}
}

// ConversationSummary is one inbox row, seen from the viewer's side.
type ConversationSummary struct {
	*entity.Conversation
	OtherUserID string `json:"other_user_id"`
}

func (uc *MessageUseCase) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, uc.timeout)
}

// Send stores a message and announces it on the bus. Failed sends carry the
// original text in the error details so the caller can restore the input.
func (uc *MessageUseCase) Send(ctx context.Context, conversationID, senderID, text string) (*entity.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.EmptyMessage()
	}

	if uc.rateLimiter != nil {
		allowed, waitTime := uc.rateLimiter.Allow(senderID, ratelimit.ActionSendMessage)
		if !allowed {
			logger.Warn("SendMessage Rate Limited: User %s must wait %v", senderID, waitTime)
			return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message", waitTime).
				WithDetail("text", text)
		}
	}

	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		logger.Error("SendMessage Error: Failed to load conversation %s: %v", conversationID, err)
		return nil, storeFailure(err, "Message send", sendFailed(text)).WithDetail("text", text)
	}
	if !conversation.HasParticipant(senderID) {
		logger.Warn("SendMessage Error: User %s is not a participant of %s", senderID, conversationID)
		return nil, errors.Forbidden("You are not a participant in this conversation", nil)
	}

	message := &entity.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           trimmed,
	}
	if err := uc.messageRepo.Create(ctx, message); err != nil {
		logger.Error("SendMessage Error: Failed to store message in %s: %v", conversationID, err)
		return nil, storeFailure(err, "Message send", sendFailed(text)).WithDetail("text", text)
	}

	// The message is durable from here on. A failed publish only delays
	// other participants until their next re-hydration.
	if err := uc.bus.Publish(ctx, entity.NewMessageInserted(conversation, message)); err != nil {
		logger.Error("SendMessage Error: Failed to publish message %s: %v", message.ID, err)
	}

	logger.Debug("Message %s (seq %d) sent to %s by %s", message.ID, message.Seq, conversationID, senderID)
	return message, nil
}

// History returns the ordered messages of a conversation the viewer takes
// part in.
func (uc *MessageUseCase) History(ctx context.Context, conversationID, viewerID string) ([]*entity.Message, error) {
	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	if _, err := uc.Conversation(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}

	messages, err := uc.messageRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		logger.Error("GetMessages Error: Failed to list messages of %s: %v", conversationID, err)
		return nil, storeFailure(err, "Message history", internalError("Failed to load messages"))
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Before(messages[j])
	})
	return messages, nil
}

// Conversation loads a conversation and checks the viewer takes part in it.
func (uc *MessageUseCase) Conversation(ctx context.Context, conversationID, viewerID string) (*entity.Conversation, error) {
	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, storeFailure(err, "Conversation lookup", internalError("Failed to load conversation"))
	}
	if !conversation.HasParticipant(viewerID) {
		return nil, errors.Forbidden("You are not a participant in this conversation", nil)
	}
	return conversation, nil
}

// ListConversations returns the user's conversations, most recent first.
func (uc *MessageUseCase) ListConversations(ctx context.Context, userID string) ([]*ConversationSummary, error) {
	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	conversations, err := uc.conversationRepo.FindByParticipant(ctx, userID)
	if err != nil {
		logger.Error("ListConversations Error: Failed to list conversations of %s: %v", userID, err)
		return nil, storeFailure(err, "Conversation list", internalError("Failed to list conversations"))
	}

	summaries := make([]*ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		summaries = append(summaries, &ConversationSummary{
			Conversation: conv,
			OtherUserID:  conv.OtherParticipant(userID),
		})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func sendFailed(text string) func(error) *errors.AppError {
	return func(err error) *errors.AppError {
		return errors.SendFailed(text, err)
	}
}

func internalError(message string) func(error) *errors.AppError {
	return func(err error) *errors.AppError {
		return errors.Internal(message, err)
	}
}
