package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ride-identity/internal/domain"
)

type codeKey struct {
	subjectID string
	purpose   domain.Purpose
}

// CodeRepo stores codes in a map guarded by a RWMutex.
type CodeRepo struct {
	mu    sync.RWMutex
	codes map[codeKey]domain.OneTimeCode
}

func NewCodeRepo() *CodeRepo {
	return &CodeRepo{codes: make(map[codeKey]domain.OneTimeCode)}
}

func (r *CodeRepo) Put(_ context.Context, c *domain.OneTimeCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *c
	stored.Code = ""
	r.codes[codeKey{c.SubjectID, c.Purpose}] = stored
	return nil
}

func (r *CodeRepo) Get(_ context.Context, subjectID string, purpose domain.Purpose) (*domain.OneTimeCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codes[codeKey{subjectID, purpose}]
	if !ok {
		return nil, fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	return &c, nil
}

func (r *CodeRepo) RecordAttempt(_ context.Context, subjectID string, purpose domain.Purpose, codeID string, max int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := codeKey{subjectID, purpose}
	c, ok := r.codes[k]
	if !ok || c.CodeID != codeID {
		return 0, fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	if c.Attempts >= max {
		return c.Attempts, domain.ErrAttemptsExhausted
	}
	c.Attempts++
	r.codes[k] = c
	return c.Attempts, nil
}

func (r *CodeRepo) MarkUsed(_ context.Context, subjectID string, purpose domain.Purpose, codeID string) error {
	return r.update(subjectID, purpose, codeID, func(c *domain.OneTimeCode) { c.IsUsed = true })
}

func (r *CodeRepo) SetDeliveryStatus(_ context.Context, subjectID string, purpose domain.Purpose, codeID, status string) error {
	return r.update(subjectID, purpose, codeID, func(c *domain.OneTimeCode) { c.DeliveryStatus = status })
}

func (r *CodeRepo) update(subjectID string, purpose domain.Purpose, codeID string, fn func(*domain.OneTimeCode)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := codeKey{subjectID, purpose}
	c, ok := r.codes[k]
	if !ok || c.CodeID != codeID {
		return fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	fn(&c)
	r.codes[k] = c
	return nil
}

func (r *CodeRepo) FindByDestination(_ context.Context, destination string) ([]domain.OneTimeCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.OneTimeCode
	for _, c := range r.codes {
		if c.Destination == destination {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *CodeRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, c := range r.codes {
		if c.Expired(now) {
			delete(r.codes, k)
			n++
		}
	}
	return n, nil
}
