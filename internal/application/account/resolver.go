// Package account is the OTP subsystem's view of account storage: finding
// which tenant a contact belongs to and applying verification side effects.
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/infrastructure/tenant"
	"github.com/rs/zerolog/log"
)

type Resolver struct {
	handles tenant.Getter
}

func NewResolver(handles tenant.Getter) *Resolver {
	return &Resolver{handles: handles}
}

func (r *Resolver) accounts(ctx context.Context, t domain.Tenant) (domain.AccountRepository, error) {
	h, err := r.handles.Get(ctx, t)
	if err != nil {
		return nil, err
	}
	return h.Accounts(), nil
}

// ResolveSubject finds the account owning destination, trying tenants in
// domain.Tenants order. ErrNotFound when no tenant has it.
func (r *Resolver) ResolveSubject(ctx context.Context, channel domain.Channel, destination string) (domain.Subject, error) {
	for _, t := range domain.Tenants {
		s, err := r.ResolveSubjectIn(ctx, t, channel, destination)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		return s, err
	}
	return domain.Subject{}, fmt.Errorf("no account for contact: %w", domain.ErrNotFound)
}

// ResolveSubjectIn is ResolveSubject limited to one tenant.
func (r *Resolver) ResolveSubjectIn(ctx context.Context, t domain.Tenant, channel domain.Channel, destination string) (domain.Subject, error) {
	repo, err := r.accounts(ctx, t)
	if err != nil {
		return domain.Subject{}, err
	}
	a, err := repo.FindByContact(ctx, channel, destination)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Subject{}, fmt.Errorf("no account for contact in %s: %w", t, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Subject{}, fmt.Errorf("find account in %s: %w", t, err)
	}
	return domain.Subject{Tenant: t, ID: a.SubjectID}, nil
}

func (r *Resolver) Account(ctx context.Context, subject domain.Subject) (*domain.Account, error) {
	repo, err := r.accounts(ctx, subject.Tenant)
	if err != nil {
		return nil, err
	}
	a, err := repo.Get(ctx, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", subject, err)
	}
	return a, nil
}

// MarkContactVerified records destination as the account's verified contact
// for channel.
func (r *Resolver) MarkContactVerified(ctx context.Context, subject domain.Subject, channel domain.Channel, destination string) error {
	repo, err := r.accounts(ctx, subject.Tenant)
	if err != nil {
		return err
	}
	if err := repo.MarkContactVerified(ctx, subject.ID, channel, destination); err != nil {
		return fmt.Errorf("mark %s verified: %w", channel, err)
	}
	log.Info().Str("subject", subject.String()).Str("channel", string(channel)).Msg("contact verified")
	return nil
}

func (r *Resolver) SetPasswordHash(ctx context.Context, subject domain.Subject, hash string) error {
	repo, err := r.accounts(ctx, subject.Tenant)
	if err != nil {
		return err
	}
	if err := repo.SetPasswordHash(ctx, subject.ID, hash); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}
