package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends for the tenant databases.
const (
	BackendDynamo = "dynamo"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// Connection modes.
const (
	ModeStrict     = "strict"
	ModePermissive = "permissive"
)

// Rate-limit stores.
const (
	LimitStoreMemory = "memory"
	LimitStoreRedis  = "redis"
)

// Config holds all runtime configuration loaded from environment variables.
// It is built once by Load and never mutated afterwards.
type Config struct {
	AppPort        string   `env:"APP_PORT" envDefault:"3000"`
	AppEnv         string   `env:"APP_ENV" envDefault:"development"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	DB       Database
	AWS      AWS
	OTP      OTP
	Delivery Delivery
	SMTP     SMTP
	Limits   Limits

	JWTPrivateKeyPath  string        `env:"JWT_PRIVATE_KEY_PATH" envDefault:"./private_key.pem"`
	JWTPublicKeyPath   string        `env:"JWT_PUBLIC_KEY_PATH" envDefault:"./public_key.pem"`
	JWTExpiry          time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"720h"`
}

// Database configures the two tenant handles.
type Database struct {
	Backend                string        `env:"DB_BACKEND" envDefault:"dynamo"`
	Mode                   string        `env:"DB_MODE" envDefault:"strict"`
	ConnectAttempts        int           `env:"DB_CONNECT_ATTEMPTS" envDefault:"5"`
	BackoffBase            time.Duration `env:"DB_BACKOFF_BASE" envDefault:"500ms"`
	BackoffJitter          time.Duration `env:"DB_BACKOFF_JITTER" envDefault:"1s"`
	ConnectTimeout         time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"3m"`
	SocketTimeout          time.Duration `env:"DB_SOCKET_TIMEOUT" envDefault:"4m"`
	ServerSelectionTimeout time.Duration `env:"DB_SERVER_SELECTION_TIMEOUT" envDefault:"3m"`
	DegradedRetry          time.Duration `env:"DB_DEGRADED_RETRY" envDefault:"30s"`

	RiderMongoURI        string `env:"RIDER_MONGO_URI" envDefault:"mongodb://localhost:27017/rider"`
	PassengerMongoURI    string `env:"PASSENGER_MONGO_URI" envDefault:"mongodb://localhost:27017/passenger"`
	RiderTablePrefix     string `env:"RIDER_TABLE_PREFIX" envDefault:"rider_"`
	PassengerTablePrefix string `env:"PASSENGER_TABLE_PREFIX" envDefault:"passenger_"`
}

type AWS struct {
	Region      string `env:"AWS_REGION" envDefault:"us-east-1"`
	EndpointURL string `env:"AWS_ENDPOINT_URL"` // empty in prod, set to LocalStack URL in dev
	AccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	SecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	SNSRegion   string `env:"SNS_REGION" envDefault:"us-east-1"`
}

// OTP is the code lifecycle policy.
type OTP struct {
	Length           int           `env:"OTP_LENGTH" envDefault:"6"`
	TTL              time.Duration `env:"OTP_TTL" envDefault:"10m"`
	MaxAttempts      int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	ResendCooldown   time.Duration `env:"OTP_RESEND_COOLDOWN" envDefault:"60s"`
	ResetGrantTTL    time.Duration `env:"RESET_GRANT_TTL" envDefault:"15m"`
	ResetGrantLength int           `env:"RESET_GRANT_LENGTH" envDefault:"32"`
	ReapInterval     time.Duration `env:"OTP_REAP_INTERVAL" envDefault:"5m"`
}

type Delivery struct {
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	SMSProviders      []string      `env:"SMS_PROVIDERS" envDefault:"sns,whatsapp" envSeparator:","`
	EmailProviders    []string      `env:"EMAIL_PROVIDERS" envDefault:"smtp,smtp_fallback" envSeparator:","`
	WhatsAppStorePath string        `env:"WHATSAPP_STORE_PATH" envDefault:"./whatsapp.db"`
	DefaultLocale     string        `env:"DEFAULT_LOCALE" envDefault:"en"`
}

// SMTP holds the primary relay and an optional fallback relay.
type SMTP struct {
	Host     string `env:"SMTP_HOST" envDefault:"localhost"`
	Port     string `env:"SMTP_PORT" envDefault:"1025"`
	From     string `env:"SMTP_FROM" envDefault:"noreply@example.com"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`

	FallbackHost     string `env:"SMTP_FALLBACK_HOST"`
	FallbackPort     string `env:"SMTP_FALLBACK_PORT" envDefault:"587"`
	FallbackUsername string `env:"SMTP_FALLBACK_USERNAME"`
	FallbackPassword string `env:"SMTP_FALLBACK_PASSWORD"`
}

type Limits struct {
	Store    string `env:"RATE_LIMIT_STORE" envDefault:"memory"`
	RedisURL string `env:"REDIS_URL"`
}

// Load reads all configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return ":" + c.AppPort }

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.DB.Backend {
	case BackendDynamo, BackendMongo, BackendMemory:
	default:
		return fmt.Errorf("DB_BACKEND must be one of dynamo, mongo, memory; got %q", c.DB.Backend)
	}
	if c.DB.Backend == BackendMemory && c.IsProduction() {
		return fmt.Errorf("DB_BACKEND=memory is not allowed in production")
	}
	switch c.DB.Mode {
	case ModeStrict, ModePermissive:
	default:
		return fmt.Errorf("DB_MODE must be strict or permissive; got %q", c.DB.Mode)
	}
	if c.DB.ConnectAttempts < 1 {
		return fmt.Errorf("DB_CONNECT_ATTEMPTS must be at least 1")
	}
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 || c.OTP.ResetGrantTTL <= 0 {
		return fmt.Errorf("OTP_TTL and RESET_GRANT_TTL must be positive")
	}
	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1")
	}
	if c.OTP.ResetGrantLength < 16 {
		return fmt.Errorf("RESET_GRANT_LENGTH must be at least 16")
	}
	if c.OTP.ResendCooldown < 0 || c.OTP.ReapInterval <= 0 || c.DB.DegradedRetry <= 0 {
		return fmt.Errorf("OTP_RESEND_COOLDOWN, OTP_REAP_INTERVAL and DB_DEGRADED_RETRY must not be negative or zero")
	}
	if c.JWTExpiry <= 0 || c.RefreshTokenExpiry <= 0 {
		return fmt.Errorf("JWT_EXPIRY and REFRESH_TOKEN_EXPIRY must be positive")
	}
	if c.IsProduction() && c.JWTExpiry > 24*time.Hour {
		return fmt.Errorf("JWT_EXPIRY must be at most 24h in production")
	}
	if c.Delivery.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	switch c.Limits.Store {
	case LimitStoreMemory:
	case LimitStoreRedis:
		if c.Limits.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when RATE_LIMIT_STORE=redis")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_STORE must be memory or redis; got %q", c.Limits.Store)
	}
	if c.IsProduction() && c.DB.Mode == ModePermissive {
		return fmt.Errorf("DB_MODE=permissive is not allowed in production")
	}
	if c.IsProduction() && strings.Contains(strings.Join(c.AllowedOrigins, ","), "*") {
		return fmt.Errorf("ALLOWED_ORIGINS must not contain * in production")
	}
	return nil
}
