package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ride-identity/internal/domain"
)

type AccountRepo struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

func NewAccountRepo() *AccountRepo {
	return &AccountRepo{accounts: make(map[string]domain.Account)}
}

func (r *AccountRepo) Put(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.SubjectID] = *a
	return nil
}

func (r *AccountRepo) Get(_ context.Context, subjectID string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[subjectID]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return &a, nil
}

func (r *AccountRepo) FindByContact(_ context.Context, channel domain.Channel, destination string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if destination != "" && a.Contact(channel) == destination {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
}

func (r *AccountRepo) MarkContactVerified(_ context.Context, subjectID string, channel domain.Channel, destination string) error {
	return r.update(subjectID, func(a *domain.Account) {
		if channel == domain.ChannelEmail {
			a.Email, a.EmailVerified = destination, true
		} else {
			a.Phone, a.PhoneVerified = destination, true
		}
	})
}

func (r *AccountRepo) SetPasswordHash(_ context.Context, subjectID, hash string) error {
	return r.update(subjectID, func(a *domain.Account) { a.PasswordHash = hash })
}

func (r *AccountRepo) update(subjectID string, fn func(*domain.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[subjectID]
	if !ok {
		return fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	fn(&a)
	a.UpdatedAt = time.Now().UTC()
	r.accounts[subjectID] = a
	return nil
}

type SessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{sessions: make(map[string]domain.Session)}
}

func (r *SessionRepo) Put(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.SessionID] = *s
	return nil
}

// Len is the number of stored sessions.
func (r *SessionRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
