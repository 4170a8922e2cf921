package usecase

import (
	"context"
	"fmt"
	"time"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/domain/repository"
	"campusmarket/internal/infrastructure/ratelimit"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
)

// ScopePolicy decides what identifies a conversation. It is applied to both
// the lookup and the store's uniqueness key, never to only one of them.
type ScopePolicy string

const (
	// ScopePerListing keeps one conversation per (buyer, seller, listing).
	ScopePerListing ScopePolicy = "listing"
	// ScopePerPair keeps one conversation per participant pair; the listing
	// of the first contact is recorded but not part of the identity.
	ScopePerPair ScopePolicy = "pair"
)

func ParseScopePolicy(value string) (ScopePolicy, error) {
	switch ScopePolicy(value) {
	case ScopePerListing, ScopePerPair:
		return ScopePolicy(value), nil
	}
	return "", fmt.Errorf("unknown conversation scope %q", value)
}

const (
	resolveReconcileAttempts = 3
	resolveReconcileBackoff  = 50 * time.Millisecond
)

// ConversationResolver finds or creates the single conversation for a
// contact attempt. It takes no locks: concurrent creators race on the
// store's uniqueness key and the losers re-read the winner's row.
type ConversationResolver struct {
	conversationRepo repository.ConversationRepository
	scope            ScopePolicy
	timeout          time.Duration
	rateLimiter      *ratelimit.RateLimiter
}

func NewConversationResolver(
	conversationRepo repository.ConversationRepository,
	scope ScopePolicy,
	timeout time.Duration,
	rateLimiter *ratelimit.RateLimiter,
) *ConversationResolver {
	return &ConversationResolver{
		conversationRepo: conversationRepo,
		scope:            scope,
		timeout:          timeout,
		rateLimiter:      rateLimiter,
	}
}

func (uc *ConversationResolver) Scope() ScopePolicy {
	return uc.scope
}

// Resolve returns the id of the conversation between actorID and
// counterpartyID (about listingID under ScopePerListing), creating it with
// the actor as buyer when none exists yet.
func (uc *ConversationResolver) Resolve(ctx context.Context, actorID, counterpartyID, listingID string) (string, error) {
	if actorID == "" || counterpartyID == "" {
		return "", errors.BadRequest("Both participants are required", nil)
	}
	if actorID == counterpartyID {
		logger.Warn("ResolveConversation Error: User %s attempted to contact themselves", actorID)
		return "", errors.BadRequest("You cannot start a conversation with yourself", nil)
	}
	if uc.scope == ScopePerListing && listingID == "" {
		return "", errors.BadRequest("Listing ID is required", nil)
	}

	if uc.rateLimiter != nil {
		allowed, waitTime := uc.rateLimiter.Allow(actorID, ratelimit.ActionResolveConversation)
		if !allowed {
			logger.Warn("ResolveConversation Rate Limited: User %s must wait %v", actorID, waitTime)
			return "", errors.TooManyRequests("Rate limit exceeded. Please wait before starting another conversation", waitTime)
		}
	}

	if uc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}

	existing, err := uc.find(ctx, actorID, counterpartyID, listingID)
	if err != nil {
		logger.Error("ResolveConversation Error: Failed to search conversations for %s: %v", actorID, err)
		return "", storeFailure(err, "Conversation lookup", resolutionFailed("Failed to search conversations"))
	}
	if existing != nil {
		return existing.ID, nil
	}

	conversation := &entity.Conversation{
		ListingID: listingID,
		BuyerID:   actorID,
		SellerID:  counterpartyID,
		Key:       uc.key(actorID, counterpartyID, listingID),
	}
	createErr := uc.conversationRepo.Create(ctx, conversation)
	if createErr == nil {
		logger.Info("Conversation %s created between %s and %s (listing %q)", conversation.ID, actorID, counterpartyID, listingID)
		return conversation.ID, nil
	}
	if !errors.Is(createErr, errors.CodeConflict) {
		logger.Error("ResolveConversation Error: Failed to create conversation: %v", createErr)
		return "", storeFailure(createErr, "Conversation create", resolutionFailed("Failed to create conversation"))
	}

	// Another caller created it first; its row is the canonical one.
	for attempt := 1; attempt <= resolveReconcileAttempts; attempt++ {
		existing, err = uc.find(ctx, actorID, counterpartyID, listingID)
		if err != nil {
			logger.Error("ResolveConversation Error: Failed to re-read after conflict: %v", err)
			return "", storeFailure(err, "Conversation lookup", resolutionFailed("Failed to search conversations"))
		}
		if existing != nil {
			logger.Debug("ResolveConversation: conflict for key %s reconciled to %s", conversation.Key, existing.ID)
			return existing.ID, nil
		}

		if attempt < resolveReconcileAttempts {
			select {
			case <-ctx.Done():
				return "", errors.StoreUnavailable("Conversation lookup timed out", ctx.Err())
			case <-time.After(time.Duration(attempt) * resolveReconcileBackoff):
			}
		}
	}

	logger.Error("ResolveConversation Error: Conflict on key %s but no conversation found", conversation.Key)
	return "", errors.ResolutionFailed("Conversation exists but could not be found", createErr)
}

// find returns the oldest matching conversation. Stores without a uniqueness
// constraint may hold duplicates; picking the oldest keeps every caller on
// the same row.
func (uc *ConversationResolver) find(ctx context.Context, actorID, counterpartyID, listingID string) (*entity.Conversation, error) {
	conversations, err := uc.conversationRepo.FindByParticipant(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var found *entity.Conversation
	for _, conv := range conversations {
		if !conv.Involves(actorID, counterpartyID) {
			continue
		}
		if uc.scope == ScopePerListing && conv.ListingID != listingID {
			continue
		}
		if found == nil || olderConversation(conv, found) {
			found = conv
		}
	}
	return found, nil
}

func (uc *ConversationResolver) key(actorID, counterpartyID, listingID string) string {
	if uc.scope == ScopePerPair {
		return entity.ConversationKey("", actorID, counterpartyID)
	}
	return entity.ConversationKey(listingID, actorID, counterpartyID)
}

func olderConversation(a, b *entity.Conversation) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func resolutionFailed(message string) func(error) *errors.AppError {
	return func(err error) *errors.AppError {
		return errors.ResolutionFailed(message, err)
	}
}
