package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ride-identity/internal/application/otp"
	"github.com/ride-identity/internal/application/ratelimit"
	"github.com/ride-identity/internal/config"
	"github.com/ride-identity/internal/transport/http/handler"
	appmiddleware "github.com/ride-identity/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds everything the router needs from the application layer.
type Deps struct {
	OTP      otp.Service
	Limiter  appmiddleware.Categorizer
	Verifier appmiddleware.TokenVerifier
	Tenants  handler.StatusReporter
}

// NewRouter builds and returns the application router. ctx bounds the
// lifetime of background middleware state.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10 per client IP.
	burst := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)

	// Without a verifier every request is anonymous and the status route
	// answers 401 on its own.
	optionalAuth := func(next http.Handler) http.Handler { return next }
	requireAuth := optionalAuth
	if deps.Verifier != nil {
		optionalAuth = appmiddleware.OptionalAuth(deps.Verifier)
		requireAuth = appmiddleware.Auth(deps.Verifier)
	}
	category := func(c ratelimit.Category) func(http.Handler) http.Handler {
		return appmiddleware.Category(deps.Limiter, c)
	}

	healthH := handler.NewHealthHandler(deps.Tenants)
	otpH := handler.NewOTPHandler(deps.OTP)
	pwH := handler.NewPasswordRecoveryHandler(deps.OTP)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(burst.Limit)
			r.Use(category(ratelimit.CategoryGlobal))

			// Per-category limits on the OTP routes are applied by the
			// service, keyed by destination or subject.
			r.With(optionalAuth).Post("/otp/request", otpH.Request)
			r.With(optionalAuth).Post("/otp/resend", otpH.Resend)
			r.Post("/otp/verify", otpH.Verify)
			r.With(requireAuth).Get("/otp/status", otpH.Status)

			r.With(category(ratelimit.CategoryAuth)).Post("/password-recovery/change-password", pwH.ChangePassword)
		})
	})

	return r
}
