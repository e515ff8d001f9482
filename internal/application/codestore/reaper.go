package codestore

import (
	"context"

	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/infrastructure/tenant"
	"github.com/rs/zerolog/log"
)

// Reap deletes expired codes in every connected tenant. It is best-effort:
// expiry is already enforced on read.
func (s *Store) Reap(ctx context.Context) error {
	now := s.now()
	for _, t := range domain.Tenants {
		h, err := s.handles.Get(ctx, t)
		if err != nil {
			log.Warn().Err(err).Str("tenant", string(t)).Msg("reaper: tenant unavailable")
			continue
		}
		if tenant.IsNoop(h) {
			continue
		}
		n, err := h.Codes().DeleteExpired(ctx, now)
		if err != nil {
			log.Warn().Err(err).Str("tenant", string(t)).Msg("reaper: delete expired codes")
			continue
		}
		if n > 0 {
			log.Info().Str("tenant", string(t)).Int("deleted", n).Msg("reaped expired codes")
		}
	}
	return nil
}
