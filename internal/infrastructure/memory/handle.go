// Package memory keeps tenant data in process memory. It backs local
// development (DB_BACKEND=memory) and tests.
package memory

import (
	"context"
	"sync"

	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/infrastructure/tenant"
)

type Handle struct {
	tenant   domain.Tenant
	codes    *CodeRepo
	accounts *AccountRepo
	sessions *SessionRepo

	lost     chan struct{}
	lostOnce sync.Once
}

func NewHandle(t domain.Tenant) *Handle {
	return &Handle{
		tenant:   t,
		codes:    NewCodeRepo(),
		accounts: NewAccountRepo(),
		sessions: NewSessionRepo(),
		lost:     make(chan struct{}),
	}
}

func (h *Handle) Tenant() domain.Tenant              { return h.tenant }
func (h *Handle) Codes() domain.CodeRepository       { return h.codes }
func (h *Handle) Accounts() domain.AccountRepository { return h.accounts }
func (h *Handle) Sessions() domain.SessionRepository { return h.sessions }
func (h *Handle) Ping(context.Context) error         { return nil }
func (h *Handle) Disconnected() <-chan struct{}      { return h.lost }
func (h *Handle) Close(context.Context) error        { return nil }

// Disconnect simulates a dropped connection.
func (h *Handle) Disconnect() { h.lostOnce.Do(func() { close(h.lost) }) }

// Connector hands out one long-lived Handle per tenant, so data survives a
// reconnect the way it would with a real database.
type Connector struct {
	mu      sync.Mutex
	handles map[domain.Tenant]*Handle
}

func NewConnector() *Connector {
	return &Connector{handles: make(map[domain.Tenant]*Handle)}
}

func (c *Connector) Connect(_ context.Context, t domain.Tenant) (tenant.Handle, error) {
	return c.Handle(t), nil
}

func (c *Connector) Descriptor(t domain.Tenant) string { return "memory://" + string(t) }

// Handle returns the tenant's handle, creating it on first use.
func (c *Connector) Handle(t domain.Tenant) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[t]
	if !ok || isClosed(h.lost) {
		prev := h
		h = NewHandle(t)
		if prev != nil {
			h.codes, h.accounts, h.sessions = prev.codes, prev.accounts, prev.sessions
		}
		c.handles[t] = h
	}
	return h
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
