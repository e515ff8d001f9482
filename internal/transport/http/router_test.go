package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ride-identity/internal/application/otp"
	"github.com/ride-identity/internal/application/ratelimit"
	"github.com/ride-identity/internal/application/verify"
	"github.com/ride-identity/internal/config"
	"github.com/ride-identity/internal/domain"
	jwtinfra "github.com/ride-identity/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
)

type stubOTP struct{}

func (stubOTP) RequestOTP(context.Context, otp.RequestInput) (*otp.Receipt, error) {
	return &otp.Receipt{ProviderUsed: "sns"}, nil
}
func (stubOTP) ResendOTP(context.Context, otp.ResendInput) (*otp.Receipt, error) {
	return &otp.Receipt{ProviderUsed: "sns"}, nil
}
func (stubOTP) VerifyOTP(context.Context, otp.VerifyInput) (*verify.Result, error) {
	return &verify.Result{Success: true}, nil
}
func (stubOTP) GetOTPStatus(context.Context, domain.Subject, domain.Purpose) (*otp.Status, error) {
	return &otp.Status{}, nil
}
func (stubOTP) ResetPassword(context.Context, otp.ResetPasswordInput) error { return nil }

type staticVerifier struct{}

func (staticVerifier) Verify(token string) (*jwtinfra.Claims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &jwtinfra.Claims{SubjectID: "u1", Tenant: domain.TenantRider}, nil
}

type allConnected struct{}

func (allConnected) Status() map[domain.Tenant]string {
	return map[domain.Tenant]string{domain.TenantRider: "connected", domain.TenantPassenger: "connected"}
}

func newTestRouter(t *testing.T, global int) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), nil, map[ratelimit.Category]ratelimit.Policy{
		ratelimit.CategoryGlobal: {Window: time.Hour, Max: global},
		ratelimit.CategoryAuth:   {Window: time.Hour, Max: 1},
	})
	return NewRouter(ctx, &config.Config{AllowedOrigins: []string{"*"}}, &Deps{
		OTP:     stubOTP{},
		Limiter: limiter,
		Tenants: allConnected{},
	})
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "10.1.1.1:5000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Routes(t *testing.T) {
	h := newTestRouter(t, 100)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/v1/otp/request", "{}").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/v1/otp/resend", "{}").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/v1/otp/verify", "{}").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/v1/otp/status?tenant=rider&subject_id=u1&purpose=login", "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/v1/password-recovery/change-password", "{}").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/v1/health-check/db", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodGet, "/v1/otp/request", "").Code)
}

func TestRouter_StatusNeedsBearer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewRouter(ctx, &config.Config{AllowedOrigins: []string{"*"}}, &Deps{
		OTP:      stubOTP{},
		Limiter:  ratelimit.New(ratelimit.NewMemoryStore(), nil, nil),
		Verifier: staticVerifier{},
		Tenants:  allConnected{},
	})

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/v1/otp/status?tenant=rider&subject_id=u1&purpose=login", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/otp/status?purpose=login", nil)
	req.RemoteAddr = "10.1.1.2:5000"
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	// A bad token on the request route is rejected rather than treated as anonymous.
	req = httptest.NewRequest(http.MethodPost, "/v1/otp/request", strings.NewReader("{}"))
	req.RemoteAddr = "10.1.1.2:5000"
	req.Header.Set("Authorization", "Bearer forged")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_GlobalLimitSparesHealth(t *testing.T) {
	h := newTestRouter(t, 2)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/v1/otp/request", "{}").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/v1/otp/verify", "{}").Code)

	rr := do(h, http.MethodPost, "/v1/otp/request", "{}")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/v1/health-check/ping", "").Code)
}

func TestRouter_AuthLimitOnPasswordChange(t *testing.T) {
	h := newTestRouter(t, 100)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/v1/password-recovery/change-password", "{}").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodPost, "/v1/password-recovery/change-password", "{}").Code)
}
