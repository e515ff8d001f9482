package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.AppPort)
	assert.Equal(t, BackendDynamo, cfg.DB.Backend)
	assert.Equal(t, ModeStrict, cfg.DB.Mode)
	assert.Equal(t, 5, cfg.DB.ConnectAttempts)
	assert.Equal(t, 3*time.Minute, cfg.DB.ConnectTimeout)
	assert.Equal(t, 4*time.Minute, cfg.DB.SocketTimeout)
	assert.Equal(t, 3*time.Minute, cfg.DB.ServerSelectionTimeout)
	assert.Equal(t, 6, cfg.OTP.Length)
	assert.Equal(t, 10*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, []string{"sns", "whatsapp"}, cfg.Delivery.SMSProviders)
	assert.Equal(t, []string{"smtp", "smtp_fallback"}, cfg.Delivery.EmailProviders)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_BACKEND", "mongo")
	t.Setenv("DB_MODE", "permissive")
	t.Setenv("OTP_TTL", "5m")
	t.Setenv("SMS_PROVIDERS", "whatsapp")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMongo, cfg.DB.Backend)
	assert.Equal(t, ModePermissive, cfg.DB.Mode)
	assert.Equal(t, 5*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, []string{"whatsapp"}, cfg.Delivery.SMSProviders)
}

func TestLoad_RedisStoreRequiresURL(t *testing.T) {
	t.Setenv("RATE_LIMIT_STORE", "redis")
	_, err := Load()
	assert.ErrorContains(t, err, "REDIS_URL")
}

func TestLoad_UnknownBackend(t *testing.T) {
	t.Setenv("DB_BACKEND", "postgres")
	_, err := Load()
	assert.ErrorContains(t, err, "DB_BACKEND")
}

func TestValidate_ProductionRejectsPermissive(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("DB_MODE", "permissive")
	_, err := Load()
	assert.ErrorContains(t, err, "permissive")
}

func TestValidate_RejectsZeroWindows(t *testing.T) {
	t.Setenv("OTP_REAP_INTERVAL", "0s")
	_, err := Load()
	assert.ErrorContains(t, err, "OTP_REAP_INTERVAL")
}

func TestValidate_ProductionCapsJWTExpiry(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("JWT_EXPIRY", "168h")
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_EXPIRY")
}
