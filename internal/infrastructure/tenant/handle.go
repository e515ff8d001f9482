package tenant

import (
	"context"
	"errors"

	"github.com/ride-identity/internal/domain"
)

// Handle is an established connection to one tenant's database.
// Only the Manager creates or replaces handles; callers fetch a handle per
// operation and never keep one across calls.
type Handle interface {
	Tenant() domain.Tenant
	Codes() domain.CodeRepository
	Accounts() domain.AccountRepository
	Sessions() domain.SessionRepository
	// Ping is the liveness probe run before a handle is handed out.
	Ping(ctx context.Context) error
	// Disconnected is closed once the driver reports the connection lost.
	Disconnected() <-chan struct{}
	Close(ctx context.Context) error
}

// Connector opens handles for a storage backend.
type Connector interface {
	Connect(ctx context.Context, t domain.Tenant) (Handle, error)
	// Descriptor is the raw connection target for t. It may hold
	// credentials and is always passed through Redact before logging.
	Descriptor(t domain.Tenant) string
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a connect error that retrying cannot fix, such as a
// malformed target or rejected credentials.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Getter hands out the current handle of a tenant. *Manager implements it.
type Getter interface {
	Get(ctx context.Context, t domain.Tenant) (Handle, error)
}
