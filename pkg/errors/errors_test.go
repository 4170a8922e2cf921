package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	wrapped := fmt.Errorf("resolve: %w", StoreUnavailable("Store timed out", context.DeadlineExceeded))

	assert.True(t, Is(wrapped, CodeStoreUnavailable))
	assert.False(t, Is(wrapped, CodeConflict))
	assert.Equal(t, CodeStoreUnavailable, Code(wrapped))
	assert.True(t, errors.Is(wrapped, context.DeadlineExceeded))

	assert.Equal(t, CodeInternal, Code(errors.New("boom")))
	assert.False(t, Is(nil, CodeNotFound))
}

func TestStatuses(t *testing.T) {
	assert.Equal(t, http.StatusConflict, Conflict("dup", nil).Status)
	assert.Equal(t, http.StatusBadGateway, ResolutionFailed("lost", nil).Status)
	assert.Equal(t, http.StatusBadRequest, EmptyMessage().Status)
	assert.Equal(t, http.StatusServiceUnavailable, SubscriptionDropped("gone", nil).Status)
	assert.Equal(t, http.StatusTooManyRequests, TooManyRequests("slow down", "2s").Status)
}

func TestUnsentText(t *testing.T) {
	text, ok := UnsentText(SendFailed("hello?", errors.New("write failed")))
	assert.True(t, ok)
	assert.Equal(t, "hello?", text)

	text, ok = UnsentText(StoreUnavailable("Store timed out", nil).WithDetail("text", "still here"))
	assert.True(t, ok)
	assert.Equal(t, "still here", text)

	_, ok = UnsentText(EmptyMessage())
	assert.False(t, ok)

	_, ok = UnsentText(errors.New("plain"))
	assert.False(t, ok)
}
