// Package verify checks submitted codes and runs the post-action of the
// code's purpose once a code verifies.
package verify

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/ride-identity/internal/application/codestore"
	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/infrastructure/tenant"
	"github.com/ride-identity/internal/pkg/id"
	"github.com/ride-identity/internal/pkg/token"
	"github.com/rs/zerolog/log"
)

// TokenSigner issues access tokens for the login post-action.
type TokenSigner interface {
	Sign(subject domain.Subject, sessionID string) (string, error)
	Expiry() time.Duration
}

// ContactVerifier is the account-mutation hook of the verification post-action.
type ContactVerifier interface {
	MarkContactVerified(ctx context.Context, subject domain.Subject, channel domain.Channel, destination string) error
}

// Tokens are the session credentials returned by a login verification.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SessionID    string    `json:"session_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Result is the outcome of Verify. At most one of ResetGrant and Tokens is set.
type Result struct {
	Success      bool    `json:"success"`
	AttemptsLeft int     `json:"attempts_left"`
	ResetGrant   string  `json:"reset_grant,omitempty"`
	Tokens       *Tokens `json:"tokens,omitempty"`
}

type Engine struct {
	store      *codestore.Store
	handles    tenant.Getter
	accounts   ContactVerifier
	signer     TokenSigner
	refreshTTL time.Duration
}

func NewEngine(store *codestore.Store, handles tenant.Getter, accounts ContactVerifier, signer TokenSigner, refreshTTL time.Duration) *Engine {
	return &Engine{store: store, handles: handles, accounts: accounts, signer: signer, refreshTTL: refreshTTL}
}

// Verify checks submitted against the latest code of (subject, purpose).
// Every failure comes back as a *domain.VerificationError next to a
// Result with Success false.
func (e *Engine) Verify(ctx context.Context, subject domain.Subject, purpose domain.Purpose, submitted string) (*Result, error) {
	if !purpose.Valid() {
		return nil, fmt.Errorf("unknown purpose %q: %w", purpose, domain.ErrBadRequest)
	}
	unlock := e.store.Lock(subject, purpose)
	defer unlock()

	c, left, err := e.consume(ctx, subject, purpose, submitted)
	if err != nil {
		var ve *domain.VerificationError
		if errors.As(err, &ve) {
			log.Info().Str("subject", subject.String()).Str("purpose", string(purpose)).
				Str("reason", ve.Reason.Error()).Int("attempts_left", ve.AttemptsLeft).Msg("verification failed")
			return &Result{AttemptsLeft: ve.AttemptsLeft}, err
		}
		return nil, err
	}

	res := &Result{Success: true, AttemptsLeft: left}
	if err := e.postAction(ctx, subject, c, res); err != nil {
		return nil, err
	}
	log.Info().Str("subject", subject.String()).Str("purpose", string(purpose)).Msg("code verified")
	return res, nil
}

// ConsumeGrant spends a password-reset grant. It fails like Verify.
func (e *Engine) ConsumeGrant(ctx context.Context, subject domain.Subject, grant string) error {
	unlock := e.store.Lock(subject, domain.PurposePasswordResetGrant)
	defer unlock()
	_, _, err := e.consume(ctx, subject, domain.PurposePasswordResetGrant, grant)
	return err
}

// consume runs the check sequence: latest, used, attempt, compare, mark used.
// The caller holds the (subject, purpose) lock.
func (e *Engine) consume(ctx context.Context, subject domain.Subject, purpose domain.Purpose, submitted string) (*domain.OneTimeCode, int, error) {
	c, err := e.store.Latest(ctx, subject, purpose)
	if errors.Is(err, domain.ErrNotFoundOrExpired) {
		return nil, 0, &domain.VerificationError{Reason: domain.ErrNotFoundOrExpired}
	}
	if err != nil {
		return nil, 0, err
	}
	if c.IsUsed {
		return nil, 0, &domain.VerificationError{Reason: domain.ErrAlreadyUsed}
	}

	n, err := e.store.RecordAttempt(ctx, subject, c)
	switch {
	case errors.Is(err, domain.ErrAttemptsExhausted):
		if merr := e.store.MarkUsed(ctx, subject, c); merr != nil {
			log.Warn().Err(merr).Str("code_id", c.CodeID).Msg("could not retire exhausted code")
		}
		return nil, 0, &domain.VerificationError{Reason: domain.ErrAttemptsExhausted}
	case errors.Is(err, domain.ErrNotFoundOrExpired):
		return nil, 0, &domain.VerificationError{Reason: domain.ErrNotFoundOrExpired}
	case err != nil:
		return nil, 0, err
	}

	left := max(e.store.Policy().MaxAttempts-n, 0)
	if subtle.ConstantTimeCompare([]byte(token.Hash(submitted)), []byte(c.CodeHash)) != 1 {
		return nil, left, &domain.VerificationError{Reason: domain.ErrInvalidCode, AttemptsLeft: left}
	}
	if err := e.store.MarkUsed(ctx, subject, c); err != nil {
		return nil, 0, err
	}
	return c, left, nil
}

func (e *Engine) postAction(ctx context.Context, subject domain.Subject, c *domain.OneTimeCode, res *Result) error {
	switch c.Purpose {
	case domain.PurposeVerification:
		err := e.accounts.MarkContactVerified(ctx, subject, c.Channel, c.Destination)
		if errors.Is(err, domain.ErrNotFound) && id.IsPlaceholder(subject.ID) {
			// Pre-account flow: the account is created after verification.
			return nil
		}
		return err

	case domain.PurposePasswordReset:
		g, err := e.store.IssueGrant(ctx, subject)
		if err != nil {
			return fmt.Errorf("issue reset grant: %w", err)
		}
		res.ResetGrant = g.Code
		return nil

	case domain.PurposeLogin:
		tokens, err := e.issueSession(ctx, subject)
		if err != nil {
			return err
		}
		res.Tokens = tokens
		return nil
	}
	return nil
}

func (e *Engine) issueSession(ctx context.Context, subject domain.Subject) (*Tokens, error) {
	if e.signer == nil {
		return nil, errors.New("token signing is not configured")
	}
	h, err := e.handles.Get(ctx, subject.Tenant)
	if err != nil {
		return nil, err
	}
	refresh, err := token.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	now := e.store.Now().UTC()
	s := &domain.Session{
		SessionID:        id.New(),
		SubjectID:        subject.ID,
		RefreshTokenHash: token.Hash(refresh),
		CreatedAt:        now,
		ExpiresAt:        now.Add(e.refreshTTL),
	}
	if err := h.Sessions().Put(ctx, s); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	access, err := e.signer.Sign(subject, s.SessionID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    s.SessionID,
		ExpiresAt:    now.Add(e.signer.Expiry()),
	}, nil
}
