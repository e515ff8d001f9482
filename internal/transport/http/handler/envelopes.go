package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ride-identity/internal/application/verify"
	"github.com/ride-identity/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// VerifyEnvelope is the response of POST /otp/verify.
type VerifyEnvelope struct {
	Success      bool       `json:"success"`
	AttemptsLeft int        `json:"attempts_left"`
	Error        string     `json:"error,omitempty"`
	ResetGrant   string     `json:"reset_grant,omitempty"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	SessionID    string     `json:"session_id,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

func toVerifyEnvelope(res *verify.Result) VerifyEnvelope {
	env := VerifyEnvelope{Success: res.Success, AttemptsLeft: res.AttemptsLeft, ResetGrant: res.ResetGrant}
	if t := res.Tokens; t != nil {
		env.AccessToken = t.AccessToken
		env.RefreshToken = t.RefreshToken
		env.SessionID = t.SessionID
		expiresAt := t.ExpiresAt
		env.ExpiresAt = &expiresAt
	}
	return env
}

// HealthEnvelope reports each tenant connection.
type HealthEnvelope struct {
	Status  string                   `json:"status"`
	Tenants map[domain.Tenant]string `json:"tenants,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}
