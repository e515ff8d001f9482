package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ride-identity/internal/domain"
	"github.com/rs/zerolog/log"
)

// httpError maps a service error to a status code. Infrastructure detail
// never reaches the body.
func httpError(w http.ResponseWriter, err error) {
	var (
		rl *domain.RateLimitedError
		ve *domain.VerificationError
	)
	switch {
	case errors.As(err, &rl):
		secs := int(rl.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeError(w, http.StatusTooManyRequests, rl.Error())
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnauthorized, VerifyEnvelope{Error: ve.Error(), AttemptsLeft: ve.AttemptsLeft})
	case errors.Is(err, domain.ErrInvalidDestination):
		writeError(w, http.StatusBadRequest, "invalid destination for channel")
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrDeliveryFailed):
		log.Warn().Err(err).Msg("code delivery failed")
		writeError(w, http.StatusBadGateway, "could not deliver code")
	case errors.Is(err, domain.ErrConnection):
		log.Error().Err(err).Msg("tenant unavailable")
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
