package ratelimit

import (
	"sync"
	"time"
)

const (
	ActionSendMessage         = "send_message"
	ActionResolveConversation = "resolve_conversation"
)

// Limit describes a token bucket: Burst tokens, refilled one at a time
// every Interval.
type Limit struct {
	Burst    int
	Interval time.Duration
}

// DefaultLimits are applied when the limiter is built with NewRateLimiter.
var DefaultLimits = map[string]Limit{
	// 30 messages per minute
	ActionSendMessage: {Burst: 30, Interval: 2 * time.Second},
	// 20 conversation lookups per minute
	ActionResolveConversation: {Burst: 20, Interval: 3 * time.Second},
}

var fallbackLimit = Limit{Burst: 20, Interval: 3 * time.Second}

type TokenBucket struct {
	tokens     int
	maxTokens  int
	refillTime time.Duration
	lastRefill time.Time
	lastUsed   time.Time
	mutex      sync.Mutex
}

func NewTokenBucket(limit Limit, now time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:     limit.Burst,
		maxTokens:  limit.Burst,
		refillTime: limit.Interval,
		lastRefill: now,
		lastUsed:   now,
	}
}

// take consumes a token if one is available, otherwise reports how long
// until the next refill.
func (tb *TokenBucket) take(now time.Time) (bool, time.Duration) {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.lastUsed = now
	if tb.refillTime > 0 {
		refills := int(now.Sub(tb.lastRefill) / tb.refillTime)
		if refills > 0 {
			tb.tokens += refills
			if tb.tokens > tb.maxTokens {
				tb.tokens = tb.maxTokens
			}
			tb.lastRefill = tb.lastRefill.Add(time.Duration(refills) * tb.refillTime)
		}
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true, 0
	}
	return false, tb.lastRefill.Add(tb.refillTime).Sub(now)
}

// RateLimiter keeps one bucket per (user, action).
type RateLimiter struct {
	buckets map[string]*TokenBucket
	limits  map[string]Limit
	now     func() time.Time
	mutex   sync.RWMutex
}

func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithLimits(DefaultLimits)
}

func NewRateLimiterWithLimits(limits map[string]Limit) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*TokenBucket),
		limits:  limits,
		now:     time.Now,
	}
}

// Allow consumes one token from the user's bucket for action.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	key := userID + ":" + action
	now := rl.now()

	rl.mutex.RLock()
	bucket, exists := rl.buckets[key]
	rl.mutex.RUnlock()

	if !exists {
		rl.mutex.Lock()
		// Double-check pattern
		if bucket, exists = rl.buckets[key]; !exists {
			limit, ok := rl.limits[action]
			if !ok {
				limit = fallbackLimit
			}
			bucket = NewTokenBucket(limit, now)
			rl.buckets[key] = bucket
		}
		rl.mutex.Unlock()
	}

	return bucket.take(now)
}

// Cleanup removes buckets idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, bucket := range rl.buckets {
		bucket.mutex.Lock()
		idle := now.Sub(bucket.lastUsed)
		bucket.mutex.Unlock()
		if idle > maxIdle {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupRoutine prunes idle buckets until stop is closed.
func (rl *RateLimiter) StartCleanupRoutine(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			case <-stop:
				return
			}
		}
	}()
}

func (rl *RateLimiter) size() int {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()
	return len(rl.buckets)
}
