package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ride-identity/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{ calls int }

func (s *failingStore) Hit(context.Context, string, Policy, time.Time) (Decision, error) {
	s.calls++
	return Decision{}, errors.New("dial tcp 10.0.0.5:6379: connection refused")
}

func newTestLimiter(store Store, now *time.Time) *Limiter {
	l := New(store, NewMemoryStore(), nil)
	l.now = func() time.Time { return *now }
	return l
}

func TestAllow_DeniesAfterMaxAndRollsOver(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := newTestLimiter(NewMemoryStore(), &now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow(ctx, "+15550001234", CategoryOTPRequest), "request %d", i+1)
		now = now.Add(time.Minute)
	}

	err := l.Allow(ctx, "+15550001234", CategoryOTPRequest)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	var rl *domain.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, "otp_request", rl.Category)
	assert.Equal(t, 55*time.Minute, rl.RetryAfter)

	now = now.Add(56 * time.Minute)
	assert.NoError(t, l.Allow(ctx, "+15550001234", CategoryOTPRequest))
}

func TestAllow_KeysAndCategoriesAreIndependent(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(NewMemoryStore(), &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "u1", CategoryOTPResend))
	}
	assert.Error(t, l.Allow(ctx, "u1", CategoryOTPResend))
	assert.NoError(t, l.Allow(ctx, "u2", CategoryOTPResend))
	assert.NoError(t, l.Allow(ctx, "u1", CategoryOTPVerify))
}

func TestCheck_FailsOpenToFallback(t *testing.T) {
	now := time.Now()
	store := &failingStore{}
	l := newTestLimiter(store, &now)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		assert.True(t, l.Check(ctx, "1.2.3.4", CategoryAuth).Allowed)
	}
	assert.False(t, l.Check(ctx, "1.2.3.4", CategoryAuth).Allowed, "fallback still enforces the limit")
	assert.Equal(t, 11, store.calls)
}

func TestCheck_NoFallbackAllows(t *testing.T) {
	l := New(&failingStore{}, nil, nil)
	for i := 0; i < 20; i++ {
		assert.True(t, l.Check(context.Background(), "k", CategoryAuth).Allowed)
	}
}

func TestCheck_UnknownCategoryAllows(t *testing.T) {
	l := New(NewMemoryStore(), nil, map[Category]Policy{})
	assert.True(t, l.Check(context.Background(), "k", CategoryGlobal).Allowed)
	_, err := l.Policy(CategoryGlobal)
	assert.Error(t, err)
}

func TestMemoryStore_RemainingAndSweep(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	p := Policy{Window: time.Minute, Max: 2}

	d, _ := s.Hit(context.Background(), "k", p, now)
	assert.Equal(t, 1, d.Remaining)
	d, _ = s.Hit(context.Background(), "k", p, now)
	assert.Equal(t, 0, d.Remaining)

	assert.Equal(t, 0, s.Sweep(now, time.Minute))
	assert.Equal(t, 1, s.Sweep(now.Add(2*time.Minute), time.Minute))
}
