package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/ride-identity/internal/domain"
)

// noopHandle stands in for a tenant database in permissive mode. Reads come
// back empty and writes are acknowledged and discarded.
type noopHandle struct {
	tenant domain.Tenant
}

// NewNoop returns the permissive-mode stand-in for tenant t.
func NewNoop(t domain.Tenant) Handle { return &noopHandle{tenant: t} }

// IsNoop reports whether h is a permissive-mode stand-in.
func IsNoop(h Handle) bool {
	_, ok := h.(*noopHandle)
	return ok
}

func (h *noopHandle) Tenant() domain.Tenant              { return h.tenant }
func (h *noopHandle) Codes() domain.CodeRepository       { return noopCodes{} }
func (h *noopHandle) Accounts() domain.AccountRepository { return noopAccounts{} }
func (h *noopHandle) Sessions() domain.SessionRepository { return noopSessions{} }
func (h *noopHandle) Ping(context.Context) error         { return nil }
func (h *noopHandle) Disconnected() <-chan struct{}      { return nil }
func (h *noopHandle) Close(context.Context) error        { return nil }

type noopCodes struct{}

func (noopCodes) Put(context.Context, *domain.OneTimeCode) error { return nil }

func (noopCodes) Get(context.Context, string, domain.Purpose) (*domain.OneTimeCode, error) {
	return nil, fmt.Errorf("code (degraded store): %w", domain.ErrNotFound)
}

func (noopCodes) RecordAttempt(context.Context, string, domain.Purpose, string, int) (int, error) {
	return 0, fmt.Errorf("code (degraded store): %w", domain.ErrNotFound)
}

func (noopCodes) MarkUsed(context.Context, string, domain.Purpose, string) error { return nil }

func (noopCodes) SetDeliveryStatus(context.Context, string, domain.Purpose, string, string) error {
	return nil
}

func (noopCodes) FindByDestination(context.Context, string) ([]domain.OneTimeCode, error) {
	return nil, nil
}

func (noopCodes) DeleteExpired(context.Context, time.Time) (int, error) { return 0, nil }

type noopAccounts struct{}

func (noopAccounts) FindByContact(context.Context, domain.Channel, string) (*domain.Account, error) {
	return nil, fmt.Errorf("account (degraded store): %w", domain.ErrNotFound)
}

func (noopAccounts) Get(context.Context, string) (*domain.Account, error) {
	return nil, fmt.Errorf("account (degraded store): %w", domain.ErrNotFound)
}

func (noopAccounts) Put(context.Context, *domain.Account) error { return nil }

func (noopAccounts) MarkContactVerified(context.Context, string, domain.Channel, string) error {
	return nil
}

func (noopAccounts) SetPasswordHash(context.Context, string, string) error { return nil }

type noopSessions struct{}

func (noopSessions) Put(context.Context, *domain.Session) error { return nil }
