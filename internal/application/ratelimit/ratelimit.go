// Package ratelimit gates requests per (caller key, route category).
// Checks never block and never fail the request path: a store error lets the
// request through after counting it on the process-local fallback.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ride-identity/internal/domain"
	"github.com/rs/zerolog/log"
)

// Category selects the window policy a request is counted against.
type Category string

const (
	CategoryGlobal     Category = "global"
	CategoryAuth       Category = "auth"
	CategoryOTPRequest Category = "otp_request"
	CategoryOTPVerify  Category = "otp_verify"
	CategoryOTPResend  Category = "otp_resend"
)

// Policy allows Max hits per sliding Window.
type Policy struct {
	Window time.Duration
	Max    int
}

// DefaultPolicies returns the built-in policy for every category.
func DefaultPolicies() map[Category]Policy {
	return map[Category]Policy{
		CategoryGlobal:     {Window: 15 * time.Minute, Max: 100},
		CategoryAuth:       {Window: 15 * time.Minute, Max: 10},
		CategoryOTPRequest: {Window: time.Hour, Max: 5},
		CategoryOTPVerify:  {Window: 10 * time.Minute, Max: 10},
		CategoryOTPResend:  {Window: time.Hour, Max: 3},
	}
}

// Decision is the outcome of one check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Store counts hits in a sliding window. Hit records the hit only when it is
// allowed.
type Store interface {
	Hit(ctx context.Context, key string, p Policy, now time.Time) (Decision, error)
}

type Limiter struct {
	policies map[Category]Policy
	store    Store
	fallback Store
	now      func() time.Time
}

// New returns a limiter over store. When store fails, hits are counted on
// fallback instead; fallback must not fail.
func New(store, fallback Store, policies map[Category]Policy) *Limiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Limiter{policies: policies, store: store, fallback: fallback, now: time.Now}
}

// Check counts a hit for key in category and reports whether it is allowed.
func (l *Limiter) Check(ctx context.Context, key string, c Category) Decision {
	p, ok := l.policies[c]
	if !ok {
		log.Warn().Str("category", string(c)).Msg("no rate limit policy, allowing")
		return Decision{Allowed: true}
	}
	k := string(c) + ":" + key
	now := l.now()

	d, err := l.store.Hit(ctx, k, p, now)
	if err == nil {
		return d
	}
	log.Warn().Err(err).Str("category", string(c)).Msg("rate limit store failed, counting locally")
	if l.fallback == nil {
		return Decision{Allowed: true, Remaining: p.Max}
	}
	d, err = l.fallback.Hit(ctx, k, p, now)
	if err != nil {
		return Decision{Allowed: true, Remaining: p.Max}
	}
	return d
}

// Allow is Check as an error: nil when allowed, *domain.RateLimitedError otherwise.
func (l *Limiter) Allow(ctx context.Context, key string, c Category) error {
	d := l.Check(ctx, key, c)
	if d.Allowed {
		return nil
	}
	return &domain.RateLimitedError{Category: string(c), RetryAfter: d.RetryAfter}
}

// Policy returns the policy of c.
func (l *Limiter) Policy(c Category) (Policy, error) {
	p, ok := l.policies[c]
	if !ok {
		return Policy{}, fmt.Errorf("unknown rate limit category %q", c)
	}
	return p, nil
}
