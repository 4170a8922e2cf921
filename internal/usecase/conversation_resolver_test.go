package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/infrastructure/ratelimit"
	"campusmarket/pkg/errors"
)

func TestResolve_ConcurrentCallersShareOneConversation(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	ctx := context.Background()

	const clients = 16
	ids := make([]string, clients)
	errs := make([]error, clients)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if i%2 == 0 {
				ids[i], errs[i] = f.resolver.Resolve(ctx, "A", "B", "L")
			} else {
				ids[i], errs[i] = f.resolver.Resolve(ctx, "B", "A", "L")
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < clients; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	rows, err := f.conversations.FindByParticipant(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestResolve_BuyerAndSellerAtTheSameInstant(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	ctx := context.Background()

	var wg sync.WaitGroup
	var buyerID, sellerID string
	var buyerErr, sellerErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		buyerID, buyerErr = f.resolver.Resolve(ctx, "b1", "s1", "listingX")
	}()
	go func() {
		defer wg.Done()
		sellerID, sellerErr = f.resolver.Resolve(ctx, "b1", "s1", "listingX")
	}()
	wg.Wait()

	require.NoError(t, buyerErr)
	require.NoError(t, sellerErr)
	assert.Equal(t, buyerID, sellerID)

	rows, err := f.conversations.FindByParticipant(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, buyerID, rows[0].ID)
	assert.Equal(t, "listingX", rows[0].ListingID)
	assert.Equal(t, "b1", rows[0].BuyerID)
	assert.Equal(t, "s1", rows[0].SellerID)
}

func TestResolve_IsIdempotent(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	ctx := context.Background()

	first, err := f.resolver.Resolve(ctx, "b1", "s1", "listing-1")
	require.NoError(t, err)
	second, err := f.resolver.Resolve(ctx, "b1", "s1", "listing-1")
	require.NoError(t, err)
	reversed, err := f.resolver.Resolve(ctx, "s1", "b1", "listing-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, reversed)
}

func TestResolve_ScopePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("per listing keeps listings apart", func(t *testing.T) {
		f := newFixture(t, ScopePerListing)

		one, err := f.resolver.Resolve(ctx, "b1", "s1", "listing-1")
		require.NoError(t, err)
		two, err := f.resolver.Resolve(ctx, "b1", "s1", "listing-2")
		require.NoError(t, err)

		assert.NotEqual(t, one, two)
	})

	t.Run("per pair shares one conversation", func(t *testing.T) {
		f := newFixture(t, ScopePerPair)

		one, err := f.resolver.Resolve(ctx, "b1", "s1", "listing-1")
		require.NoError(t, err)
		two, err := f.resolver.Resolve(ctx, "s1", "b1", "listing-2")
		require.NoError(t, err)
		noListing, err := f.resolver.Resolve(ctx, "b1", "s1", "")
		require.NoError(t, err)

		assert.Equal(t, one, two)
		assert.Equal(t, one, noListing)

		conv, err := f.conversations.GetByID(ctx, one)
		require.NoError(t, err)
		assert.Equal(t, "listing-1", conv.ListingID)
		assert.Equal(t, entity.ConversationKey("", "b1", "s1"), conv.Key)
	})
}

func TestResolve_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	ctx := context.Background()

	tests := []struct {
		name, actor, counterparty, listing string
	}{
		{"self contact", "b1", "b1", "listing-1"},
		{"missing actor", "", "s1", "listing-1"},
		{"missing counterparty", "b1", "", "listing-1"},
		{"missing listing", "b1", "s1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.resolver.Resolve(ctx, tt.actor, tt.counterparty, tt.listing)
			assert.True(t, errors.Is(err, errors.CodeBadRequest), "got %v", err)
		})
	}
}

func TestResolve_ConflictIsAbsorbed(t *testing.T) {
	winner := &entity.Conversation{ID: "winner", ListingID: "L", BuyerID: "B", SellerID: "A"}
	repo := &stubConversationRepo{
		findResults: [][]*entity.Conversation{nil, {winner}},
		createErr:   errors.Conflict("Conversation already exists", nil),
	}
	resolver := NewConversationResolver(repo, ScopePerListing, time.Second, nil)

	id, err := resolver.Resolve(context.Background(), "A", "B", "L")
	require.NoError(t, err)
	assert.Equal(t, "winner", id)
}

func TestResolve_ConflictWithoutRowFails(t *testing.T) {
	repo := &stubConversationRepo{
		createErr: errors.Conflict("Conversation already exists", nil),
	}
	resolver := NewConversationResolver(repo, ScopePerListing, time.Second, nil)

	_, err := resolver.Resolve(context.Background(), "A", "B", "L")
	assert.True(t, errors.Is(err, errors.CodeResolutionFailed), "got %v", err)
	assert.Equal(t, 1+resolveReconcileAttempts, repo.findCalls)
}

func TestResolve_StoreFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("non-conflict insert error", func(t *testing.T) {
		repo := &stubConversationRepo{createErr: errors.Internal("Failed to create conversation", nil)}
		resolver := NewConversationResolver(repo, ScopePerListing, time.Second, nil)

		_, err := resolver.Resolve(ctx, "A", "B", "L")
		assert.True(t, errors.Is(err, errors.CodeResolutionFailed), "got %v", err)
	})

	t.Run("unavailable store", func(t *testing.T) {
		repo := &stubConversationRepo{findErr: errors.StoreUnavailable("Failed to list conversations", nil)}
		resolver := NewConversationResolver(repo, ScopePerListing, time.Second, nil)

		_, err := resolver.Resolve(ctx, "A", "B", "L")
		assert.True(t, errors.Is(err, errors.CodeStoreUnavailable), "got %v", err)
	})

	t.Run("store that never answers", func(t *testing.T) {
		repo := &stubConversationRepo{block: true}
		resolver := NewConversationResolver(repo, ScopePerListing, 20*time.Millisecond, nil)

		started := time.Now()
		_, err := resolver.Resolve(ctx, "A", "B", "L")
		assert.True(t, errors.Is(err, errors.CodeStoreUnavailable), "got %v", err)
		assert.Less(t, time.Since(started), time.Second)
	})
}

func TestResolve_PicksOldestDuplicate(t *testing.T) {
	now := time.Now()
	repo := &stubConversationRepo{
		findResults: [][]*entity.Conversation{{
			{ID: "newer", ListingID: "L", BuyerID: "A", SellerID: "B", CreatedAt: now},
			{ID: "other", ListingID: "L", BuyerID: "A", SellerID: "C", CreatedAt: now.Add(-2 * time.Hour)},
			{ID: "older", ListingID: "L", BuyerID: "B", SellerID: "A", CreatedAt: now.Add(-time.Hour)},
		}},
	}
	resolver := NewConversationResolver(repo, ScopePerListing, time.Second, nil)

	id, err := resolver.Resolve(context.Background(), "A", "B", "L")
	require.NoError(t, err)
	assert.Equal(t, "older", id)
}

func TestResolve_RateLimited(t *testing.T) {
	f := newFixture(t, ScopePerListing)
	limiter := ratelimit.NewRateLimiterWithLimits(map[string]ratelimit.Limit{
		ratelimit.ActionResolveConversation: {Burst: 1, Interval: time.Hour},
	})
	resolver := NewConversationResolver(f.conversations, ScopePerListing, time.Second, limiter)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "b1", "s1", "listing-1")
	require.NoError(t, err)

	_, err = resolver.Resolve(ctx, "b1", "s1", "listing-1")
	assert.True(t, errors.Is(err, errors.CodeTooManyRequests), "got %v", err)
}

func TestParseScopePolicy(t *testing.T) {
	scope, err := ParseScopePolicy("pair")
	require.NoError(t, err)
	assert.Equal(t, ScopePerPair, scope)

	_, err = ParseScopePolicy("global")
	assert.Error(t, err)
}
