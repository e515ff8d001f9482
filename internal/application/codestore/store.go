// Package codestore owns the one-time code lifecycle: issue, lookup,
// invalidation and attempt counting. Every write for a (subject, purpose)
// pair runs under that pair's mutex, so two active codes can never coexist.
package codestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ride-identity/internal/config"
	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/infrastructure/tenant"
	"github.com/ride-identity/internal/pkg/id"
	"github.com/ride-identity/internal/pkg/token"
	"github.com/rs/zerolog/log"
)

// Policy is the code lifecycle configuration.
type Policy struct {
	Length       int
	TTL          time.Duration
	MaxAttempts  int
	GrantLength  int
	GrantTTL     time.Duration
	ReapInterval time.Duration
}

func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		Length:       cfg.OTP.Length,
		TTL:          cfg.OTP.TTL,
		MaxAttempts:  cfg.OTP.MaxAttempts,
		GrantLength:  cfg.OTP.ResetGrantLength,
		GrantTTL:     cfg.OTP.ResetGrantTTL,
		ReapInterval: cfg.OTP.ReapInterval,
	}
}

type Store struct {
	handles tenant.Getter
	policy  Policy
	locks   *keyLock
	now     func() time.Time
}

func New(handles tenant.Getter, policy Policy) *Store {
	return &Store{handles: handles, policy: policy, locks: newKeyLock(), now: time.Now}
}

// WithClock replaces the store's clock. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Policy() Policy { return s.policy }
func (s *Store) Now() time.Time { return s.now() }

// Lock serializes work on (subject, purpose). Issue and Invalidate take the
// lock themselves; callers holding it must use the Locked variants.
func (s *Store) Lock(subject domain.Subject, purpose domain.Purpose) func() {
	return s.locks.Lock(subject.String() + "|" + string(purpose))
}

func (s *Store) codes(ctx context.Context, t domain.Tenant) (domain.CodeRepository, error) {
	h, err := s.handles.Get(ctx, t)
	if err != nil {
		return nil, err
	}
	return h.Codes(), nil
}

// Issue generates a numeric code for (subject, purpose), replacing any prior
// code, and returns it with the plaintext in Code.
func (s *Store) Issue(ctx context.Context, subject domain.Subject, purpose domain.Purpose, channel domain.Channel, destination string) (*domain.OneTimeCode, error) {
	unlock := s.Lock(subject, purpose)
	defer unlock()
	return s.IssueLocked(ctx, subject, purpose, channel, destination)
}

func (s *Store) IssueLocked(ctx context.Context, subject domain.Subject, purpose domain.Purpose, channel domain.Channel, destination string) (*domain.OneTimeCode, error) {
	code, err := token.NewNumericCode(s.policy.Length)
	if err != nil {
		return nil, err
	}
	return s.put(ctx, subject, purpose, channel, destination, code, s.policy.TTL)
}

// IssueGrant stores a single-use alphanumeric password-reset grant.
func (s *Store) IssueGrant(ctx context.Context, subject domain.Subject) (*domain.OneTimeCode, error) {
	unlock := s.Lock(subject, domain.PurposePasswordResetGrant)
	defer unlock()
	grant, err := token.NewAlphanumeric(s.policy.GrantLength)
	if err != nil {
		return nil, err
	}
	return s.put(ctx, subject, domain.PurposePasswordResetGrant, "", "", grant, s.policy.GrantTTL)
}

func (s *Store) put(ctx context.Context, subject domain.Subject, purpose domain.Purpose, channel domain.Channel, destination, value string, ttl time.Duration) (*domain.OneTimeCode, error) {
	repo, err := s.codes(ctx, subject.Tenant)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	c := &domain.OneTimeCode{
		CodeID:         id.New(),
		SubjectID:      subject.ID,
		Purpose:        purpose,
		Channel:        channel,
		Destination:    destination,
		CodeHash:       token.Hash(value),
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		DeliveryStatus: domain.DeliveryPending,
	}
	if err := repo.Put(ctx, c); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}
	c.Code = value
	return c, nil
}

// Latest returns the current code for (subject, purpose). A missing or
// expired code is ErrNotFoundOrExpired; a used one is still returned.
func (s *Store) Latest(ctx context.Context, subject domain.Subject, purpose domain.Purpose) (*domain.OneTimeCode, error) {
	c, err := s.Peek(ctx, subject, purpose)
	if err != nil {
		return nil, err
	}
	if c.Expired(s.now()) {
		return nil, domain.ErrNotFoundOrExpired
	}
	return c, nil
}

// Peek is Latest without the expiry check.
func (s *Store) Peek(ctx context.Context, subject domain.Subject, purpose domain.Purpose) (*domain.OneTimeCode, error) {
	repo, err := s.codes(ctx, subject.Tenant)
	if err != nil {
		return nil, err
	}
	c, err := repo.Get(ctx, subject.ID, purpose)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFoundOrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("load code: %w", err)
	}
	return c, nil
}

// Invalidate marks the active code of (subject, purpose) used. Having no
// active code is not an error.
func (s *Store) Invalidate(ctx context.Context, subject domain.Subject, purpose domain.Purpose) error {
	unlock := s.Lock(subject, purpose)
	defer unlock()
	return s.InvalidateLocked(ctx, subject, purpose)
}

func (s *Store) InvalidateLocked(ctx context.Context, subject domain.Subject, purpose domain.Purpose) error {
	c, err := s.Latest(ctx, subject, purpose)
	if errors.Is(err, domain.ErrNotFoundOrExpired) {
		return nil
	}
	if err != nil {
		return err
	}
	if c.IsUsed {
		return nil
	}
	return s.MarkUsed(ctx, subject, c)
}

// RecordAttempt counts one verification attempt against c and returns the
// attempts so far. At the cap it fails with ErrAttemptsExhausted whether or
// not c is still time-valid.
func (s *Store) RecordAttempt(ctx context.Context, subject domain.Subject, c *domain.OneTimeCode) (int, error) {
	repo, err := s.codes(ctx, subject.Tenant)
	if err != nil {
		return 0, err
	}
	n, err := repo.RecordAttempt(ctx, subject.ID, c.Purpose, c.CodeID, s.policy.MaxAttempts)
	if errors.Is(err, domain.ErrAttemptsExhausted) {
		return n, domain.ErrAttemptsExhausted
	}
	if errors.Is(err, domain.ErrNotFound) {
		// Superseded between read and increment.
		return 0, domain.ErrNotFoundOrExpired
	}
	if err != nil {
		return 0, fmt.Errorf("record attempt: %w", err)
	}
	return n, nil
}

func (s *Store) MarkUsed(ctx context.Context, subject domain.Subject, c *domain.OneTimeCode) error {
	repo, err := s.codes(ctx, subject.Tenant)
	if err != nil {
		return err
	}
	if err := repo.MarkUsed(ctx, subject.ID, c.Purpose, c.CodeID); err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	c.IsUsed = true
	return nil
}

// SetDeliveryStatus records the delivery outcome. A failure here is logged
// only; the code itself is already stored.
func (s *Store) SetDeliveryStatus(ctx context.Context, subject domain.Subject, c *domain.OneTimeCode, status string) {
	repo, err := s.codes(ctx, subject.Tenant)
	if err == nil {
		err = repo.SetDeliveryStatus(ctx, subject.ID, c.Purpose, c.CodeID, status)
	}
	if err != nil {
		log.Warn().Err(err).Str("code_id", c.CodeID).Str("status", status).Msg("could not record delivery status")
		return
	}
	c.DeliveryStatus = status
}

// FindPlaceholder returns the placeholder subject id a pre-account flow
// already uses for destination, if any.
func (s *Store) FindPlaceholder(ctx context.Context, t domain.Tenant, destination string) (string, bool) {
	repo, err := s.codes(ctx, t)
	if err != nil {
		return "", false
	}
	codes, err := repo.FindByDestination(ctx, destination)
	if err != nil {
		log.Debug().Err(err).Msg("placeholder lookup failed")
		return "", false
	}
	var best *domain.OneTimeCode
	for i := range codes {
		c := &codes[i]
		if !id.IsPlaceholder(c.SubjectID) {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) {
			best = c
		}
	}
	if best == nil {
		return "", false
	}
	return best.SubjectID, true
}
