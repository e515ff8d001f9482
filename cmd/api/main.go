package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ride-identity/internal/application/account"
	"github.com/ride-identity/internal/application/codestore"
	"github.com/ride-identity/internal/application/delivery"
	"github.com/ride-identity/internal/application/otp"
	"github.com/ride-identity/internal/application/ratelimit"
	"github.com/ride-identity/internal/application/verify"
	"github.com/ride-identity/internal/config"
	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/infrastructure/cron"
	"github.com/ride-identity/internal/infrastructure/dynamo"
	jwtinfra "github.com/ride-identity/internal/infrastructure/jwt"
	"github.com/ride-identity/internal/infrastructure/memory"
	"github.com/ride-identity/internal/infrastructure/mongo"
	redisinfra "github.com/ride-identity/internal/infrastructure/redis"
	"github.com/ride-identity/internal/infrastructure/smtp"
	"github.com/ride-identity/internal/infrastructure/sns"
	"github.com/ride-identity/internal/infrastructure/tenant"
	"github.com/ride-identity/internal/infrastructure/whatsapp"
	transporthttp "github.com/ride-identity/internal/transport/http"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	setLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	// Tenant databases. Strict mode exits here if a tenant is unreachable.
	tenants := tenant.NewManager(newConnector(cfg), tenant.OptionsFromConfig(cfg))
	if err := tenants.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect tenant databases")
	}
	log.Info().Str("backend", cfg.DB.Backend).Str("mode", cfg.DB.Mode).Msg("tenant databases ready")

	localStore := ratelimit.NewMemoryStore()
	var redisClient *redisinfra.Client
	limiter := ratelimit.New(localStore, nil, nil)
	if cfg.Limits.Store == config.LimitStoreRedis {
		redisClient, err = redisinfra.NewClient(ctx, cfg.Limits.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		log.Info().Msg("redis connected")
		limiter = ratelimit.New(ratelimit.NewRedisStore(redisClient), localStore, nil)
	}

	// JWT provider (optional: without keys, login verifies but cannot issue tokens).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else if cfg.IsProduction() {
		log.Fatal().Err(err).Msg("JWT keys are required in production")
	} else {
		log.Warn().Err(err).Msg("JWT provider not available")
	}

	composer, err := delivery.NewComposer(cfg.Delivery.DefaultLocale)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load message catalogue")
	}
	providers, closeProviders := newProviders(ctx, cfg)
	defer closeProviders()

	store := codestore.New(tenants, codestore.PolicyFromConfig(cfg))
	pipeline := delivery.NewPipeline(store, composer, map[domain.Channel][]delivery.Provider{
		domain.ChannelSMS:   delivery.BuildChain(domain.ChannelSMS, cfg.Delivery.SMSProviders, providers),
		domain.ChannelEmail: delivery.BuildChain(domain.ChannelEmail, cfg.Delivery.EmailProviders, providers),
	}, cfg.Delivery.ProviderTimeout)
	accounts := account.NewResolver(tenants)

	var signer verify.TokenSigner
	if jwtProvider != nil {
		signer = jwtProvider
	}
	engine := verify.NewEngine(store, tenants, accounts, signer, cfg.RefreshTokenExpiry)
	otpSvc := otp.NewService(store, pipeline, engine, accounts, limiter, cfg.OTP.ResendCooldown)

	scheduler, err := cron.NewScheduler(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	if err := cron.Every(ctx, scheduler, "reap-expired-codes", cfg.OTP.ReapInterval, store.Reap); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule reaper")
	}
	maxWindow := longestWindow(ratelimit.DefaultPolicies())
	if err := cron.Every(ctx, scheduler, "sweep-rate-limits", time.Minute, func(context.Context) error {
		if n := localStore.Sweep(time.Now(), maxWindow); n > 0 {
			log.Debug().Int("keys", n).Msg("swept idle rate-limit keys")
		}
		return nil
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule rate-limit sweep")
	}

	deps := &transporthttp.Deps{
		OTP:     otpSvc,
		Limiter: limiter,
		Tenants: tenants,
	}
	if jwtProvider != nil {
		deps.Verifier = jwtProvider
	}
	router := transporthttp.NewRouter(ctx, cfg, deps)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("env", cfg.AppEnv).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := scheduler.Shutdown(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown")
	}
	if err := tenants.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("close tenant databases")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("close redis")
		}
	}
	log.Info().Msg("server stopped")
}

func newConnector(cfg *config.Config) tenant.Connector {
	switch cfg.DB.Backend {
	case config.BackendMongo:
		return mongo.NewConnector(cfg)
	case config.BackendMemory:
		log.Warn().Msg("using in-memory tenant storage; data is lost on restart")
		return memory.NewConnector()
	default:
		return dynamo.NewConnector(cfg)
	}
}

// newProviders builds every delivery provider that can be configured. A
// provider that fails to start is left out and BuildChain skips it.
func newProviders(ctx context.Context, cfg *config.Config) (map[string]delivery.Provider, func()) {
	available := map[string]delivery.Provider{
		smtp.NamePrimary: smtp.NewPrimary(cfg),
	}
	if fb := smtp.NewFallback(cfg); fb != nil {
		available[smtp.NameFallback] = fb
	}

	if p, err := sns.NewProvider(ctx, cfg); err == nil {
		available[sns.Name] = p
	} else {
		log.Warn().Err(err).Msg("SNS provider not available")
	}

	closeFn := func() {}
	if wantsProvider(cfg.Delivery.SMSProviders, whatsapp.Name) {
		if p, err := whatsapp.NewProvider(ctx, cfg.Delivery.WhatsAppStorePath); err == nil {
			available[whatsapp.Name] = p
			closeFn = p.Close
		} else {
			log.Warn().Err(err).Msg("WhatsApp provider not available")
		}
	}
	return available, closeFn
}

func wantsProvider(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func longestWindow(policies map[ratelimit.Category]ratelimit.Policy) time.Duration {
	var longest time.Duration
	for _, p := range policies {
		longest = max(longest, p.Window)
	}
	return longest
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
