// Package otp is the entry point collaborators use: request, resend, verify
// and status of one-time codes, plus the password change a reset grant unlocks.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ride-identity/internal/application/account"
	"github.com/ride-identity/internal/application/codestore"
	"github.com/ride-identity/internal/application/delivery"
	"github.com/ride-identity/internal/application/ratelimit"
	"github.com/ride-identity/internal/application/verify"
	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/pkg/id"
	"github.com/ride-identity/internal/pkg/mask"
	"github.com/ride-identity/internal/pkg/token"
	"github.com/ride-identity/internal/pkg/validate"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

type RequestInput struct {
	Tenant      string         `json:"tenant"`
	SubjectID   string         `json:"subject_id"`
	Purpose     domain.Purpose `json:"purpose" validate:"required,purpose"`
	Channel     domain.Channel `json:"channel" validate:"required,channel"`
	Destination string         `json:"destination" validate:"required"`
	Locale      string         `json:"locale"`

	// Caller is the bearer's subject, nil for anonymous requests.
	Caller *domain.Subject `json:"-"`
}

type ResendInput struct {
	Tenant      string          `json:"tenant" validate:"required"`
	SubjectID   string          `json:"subject_id" validate:"required"`
	Purpose     domain.Purpose  `json:"purpose" validate:"required,purpose"`
	Destination string          `json:"destination"`
	Locale      string          `json:"locale"`
	Caller      *domain.Subject `json:"-"`
}

type VerifyInput struct {
	Tenant    string         `json:"tenant" validate:"required"`
	SubjectID string         `json:"subject_id" validate:"required"`
	Purpose   domain.Purpose `json:"purpose" validate:"required,purpose"`
	Code      string         `json:"code" validate:"required,max=64"`
}

type ResetPasswordInput struct {
	Tenant      string `json:"tenant" validate:"required"`
	SubjectID   string `json:"subject_id" validate:"required"`
	Grant       string `json:"reset_grant" validate:"required,max=128"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// Receipt is returned by RequestOTP and ResendOTP. The subject is echoed so
// pre-account callers learn their placeholder id.
type Receipt struct {
	Tenant       domain.Tenant `json:"tenant"`
	SubjectID    string        `json:"subject_id"`
	ExpiresAt    time.Time     `json:"expires_at"`
	ProviderUsed string        `json:"provider_used"`
}

// Status never carries the code value.
type Status struct {
	Exists         bool           `json:"exists"`
	Channel        domain.Channel `json:"channel,omitempty"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	Attempts       int            `json:"attempts"`
	IsUsed         bool           `json:"is_used"`
	DeliveryStatus string         `json:"delivery_status,omitempty"`
}

type Service interface {
	RequestOTP(ctx context.Context, in RequestInput) (*Receipt, error)
	ResendOTP(ctx context.Context, in ResendInput) (*Receipt, error)
	VerifyOTP(ctx context.Context, in VerifyInput) (*verify.Result, error)
	GetOTPStatus(ctx context.Context, subject domain.Subject, purpose domain.Purpose) (*Status, error)
	ResetPassword(ctx context.Context, in ResetPasswordInput) error
}

// Limiter is the rate-limit gate.
type Limiter interface {
	Allow(ctx context.Context, key string, c ratelimit.Category) error
}

type service struct {
	store    *codestore.Store
	pipeline *delivery.Pipeline
	engine   *verify.Engine
	accounts *account.Resolver
	limiter  Limiter
	cooldown time.Duration
}

func NewService(
	store *codestore.Store,
	pipeline *delivery.Pipeline,
	engine *verify.Engine,
	accounts *account.Resolver,
	limiter Limiter,
	cooldown time.Duration,
) Service {
	return &service{
		store:    store,
		pipeline: pipeline,
		engine:   engine,
		accounts: accounts,
		limiter:  limiter,
		cooldown: cooldown,
	}
}

// errUnowned marks a destination that may not receive the subject's code.
// Callers get an ordinary receipt and nothing is sent.
var errUnowned = errors.New("destination not owned by subject")

func badRequest(err error) error {
	return fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
}

func (s *service) RequestOTP(ctx context.Context, in RequestInput) (*Receipt, error) {
	if err := validate.Struct(in); err != nil {
		return nil, badRequest(err)
	}
	if err := validate.Destination(in.Channel, in.Destination); err != nil {
		return nil, err
	}
	if err := s.limiter.Allow(ctx, "dest:"+token.Hash(in.Destination), ratelimit.CategoryOTPRequest); err != nil {
		return nil, err
	}

	subject, err := s.subjectFor(ctx, in)
	if errors.Is(err, errUnowned) {
		return s.silentReceipt(subject, in.Channel, in.Destination), nil
	}
	if err != nil {
		return nil, err
	}
	return s.deliver(ctx, subject, in.Purpose, in.Channel, in.Destination, in.Locale)
}

// subjectFor picks the subject a requested code belongs to. A caller-named
// subject must pass authorizeDestination. Otherwise the contact is resolved
// to its account, and verification of a contact with no account reuses or
// mints a placeholder subject.
func (s *service) subjectFor(ctx context.Context, in RequestInput) (domain.Subject, error) {
	var t domain.Tenant
	if in.Tenant != "" {
		var err error
		if t, err = domain.ParseTenant(in.Tenant); err != nil {
			return domain.Subject{}, err
		}
	}
	if in.SubjectID != "" {
		if t == "" {
			return domain.Subject{}, badRequest(errors.New("tenant is required with subject_id"))
		}
		subject := domain.Subject{Tenant: t, ID: in.SubjectID}
		return subject, s.authorizeDestination(ctx, subject, in.Purpose, in.Channel, in.Destination, in.Caller)
	}

	var subject domain.Subject
	var err error
	if t == "" {
		subject, err = s.accounts.ResolveSubject(ctx, in.Channel, in.Destination)
	} else {
		subject, err = s.accounts.ResolveSubjectIn(ctx, t, in.Channel, in.Destination)
	}
	if err == nil {
		return subject, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Subject{}, err
	}
	if t == "" {
		t = domain.TenantRider
	}
	if in.Purpose != domain.PurposeVerification {
		return domain.Subject{Tenant: t}, errUnowned
	}
	if existing, ok := s.store.FindPlaceholder(ctx, t, in.Destination); ok {
		return domain.Subject{Tenant: t, ID: existing}, nil
	}
	return domain.Subject{Tenant: t, ID: id.Placeholder()}, nil
}

// authorizeDestination decides whether subject's code may go to destination.
// Login and reset codes only go to a contact on the subject's account. A
// verification code may also go to the contact a placeholder was minted for,
// or to a new contact when the bearer is the subject.
func (s *service) authorizeDestination(ctx context.Context, subject domain.Subject, purpose domain.Purpose, channel domain.Channel, destination string, caller *domain.Subject) error {
	if caller != nil && *caller != subject {
		return fmt.Errorf("bearer does not match subject: %w", domain.ErrForbidden)
	}
	owner, err := s.accounts.ResolveSubjectIn(ctx, subject.Tenant, channel, destination)
	switch {
	case err == nil && owner == subject:
		return nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return err
	case purpose != domain.PurposeVerification:
		return errUnowned
	}

	if id.IsPlaceholder(subject.ID) {
		if existing, ok := s.store.FindPlaceholder(ctx, subject.Tenant, destination); ok && existing == subject.ID {
			return nil
		}
		return fmt.Errorf("placeholder was not issued for this contact: %w", domain.ErrForbidden)
	}
	if caller == nil {
		return fmt.Errorf("bearer token required to verify a new contact: %w", domain.ErrUnauthorized)
	}
	if err == nil {
		return fmt.Errorf("contact belongs to another account: %w", domain.ErrConflict)
	}
	return nil
}

// silentReceipt answers a request whose destination has no matching account
// the same way a real delivery would, without issuing a code.
func (s *service) silentReceipt(subject domain.Subject, channel domain.Channel, destination string) *Receipt {
	if subject.ID == "" {
		subject.ID = id.New()
	}
	log.Info().Str("tenant", string(subject.Tenant)).Str("destination", mask.Destination(destination)).
		Msg("no account owns destination, nothing sent")
	return &Receipt{
		Tenant:       subject.Tenant,
		SubjectID:    subject.ID,
		ExpiresAt:    s.store.Now().Add(s.store.Policy().TTL),
		ProviderUsed: s.pipeline.PrimaryProvider(channel),
	}
}

func (s *service) deliver(ctx context.Context, subject domain.Subject, purpose domain.Purpose, channel domain.Channel, destination, locale string) (*Receipt, error) {
	res, err := s.pipeline.Deliver(ctx, delivery.Request{
		Subject:     subject,
		Purpose:     purpose,
		Channel:     channel,
		Destination: destination,
		Locale:      locale,
	})
	if err != nil {
		return nil, err
	}
	return &Receipt{
		Tenant:       subject.Tenant,
		SubjectID:    subject.ID,
		ExpiresAt:    res.ExpiresAt,
		ProviderUsed: res.ProviderUsed,
	}, nil
}

func (s *service) ResendOTP(ctx context.Context, in ResendInput) (*Receipt, error) {
	if err := validate.Struct(in); err != nil {
		return nil, badRequest(err)
	}
	t, err := domain.ParseTenant(in.Tenant)
	if err != nil {
		return nil, err
	}
	subject := domain.Subject{Tenant: t, ID: in.SubjectID}
	if err := s.limiter.Allow(ctx, subject.String(), ratelimit.CategoryOTPResend); err != nil {
		return nil, err
	}

	prior, err := s.store.Peek(ctx, subject, in.Purpose)
	if err != nil && !errors.Is(err, domain.ErrNotFoundOrExpired) {
		return nil, err
	}
	if prior != nil {
		if wait := prior.CreatedAt.Add(s.cooldown).Sub(s.store.Now()); wait > 0 {
			return nil, &domain.RateLimitedError{Category: string(ratelimit.CategoryOTPResend), RetryAfter: wait}
		}
	}

	destination, channel := in.Destination, validate.ChannelOf(in.Destination)
	if destination == "" {
		if prior == nil || prior.Destination == "" {
			return nil, badRequest(errors.New("destination is required when there is no prior code"))
		}
		destination, channel = prior.Destination, prior.Channel
	}
	if err := validate.Destination(channel, destination); err != nil {
		return nil, err
	}
	if prior == nil || destination != prior.Destination {
		err := s.authorizeDestination(ctx, subject, in.Purpose, channel, destination, in.Caller)
		if errors.Is(err, errUnowned) {
			return s.silentReceipt(subject, channel, destination), nil
		}
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.Invalidate(ctx, subject, in.Purpose); err != nil {
		return nil, err
	}
	log.Info().Str("subject", subject.String()).Str("purpose", string(in.Purpose)).
		Str("destination", mask.Destination(destination)).Msg("resending code")
	return s.deliver(ctx, subject, in.Purpose, channel, destination, in.Locale)
}

func (s *service) VerifyOTP(ctx context.Context, in VerifyInput) (*verify.Result, error) {
	if err := validate.Struct(in); err != nil {
		return nil, badRequest(err)
	}
	t, err := domain.ParseTenant(in.Tenant)
	if err != nil {
		return nil, err
	}
	subject := domain.Subject{Tenant: t, ID: in.SubjectID}
	if err := s.limiter.Allow(ctx, subject.String(), ratelimit.CategoryOTPVerify); err != nil {
		return nil, err
	}
	return s.engine.Verify(ctx, subject, in.Purpose, in.Code)
}

func (s *service) GetOTPStatus(ctx context.Context, subject domain.Subject, purpose domain.Purpose) (*Status, error) {
	if !purpose.Valid() {
		return nil, fmt.Errorf("unknown purpose %q: %w", purpose, domain.ErrBadRequest)
	}
	c, err := s.store.Latest(ctx, subject, purpose)
	if errors.Is(err, domain.ErrNotFoundOrExpired) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, err
	}
	expiresAt := c.ExpiresAt
	return &Status{
		Exists:         true,
		Channel:        c.Channel,
		ExpiresAt:      &expiresAt,
		Attempts:       c.Attempts,
		IsUsed:         c.IsUsed,
		DeliveryStatus: c.DeliveryStatus,
	}, nil
}

func (s *service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := validate.Struct(in); err != nil {
		return badRequest(err)
	}
	t, err := domain.ParseTenant(in.Tenant)
	if err != nil {
		return err
	}
	subject := domain.Subject{Tenant: t, ID: in.SubjectID}
	if err := s.limiter.Allow(ctx, subject.String(), ratelimit.CategoryAuth); err != nil {
		return err
	}
	if err := s.engine.ConsumeGrant(ctx, subject, in.Grant); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.SetPasswordHash(ctx, subject, string(hash)); err != nil {
		return err
	}
	log.Info().Str("subject", subject.String()).Msg("password changed")
	return nil
}
