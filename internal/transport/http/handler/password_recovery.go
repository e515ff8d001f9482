package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ride-identity/internal/application/otp"
)

// PasswordRecoveryHandler finishes the reset flow: the grant from a verified
// passwordReset code buys one password change.
type PasswordRecoveryHandler struct {
	svc otp.Service
}

func NewPasswordRecoveryHandler(svc otp.Service) *PasswordRecoveryHandler {
	return &PasswordRecoveryHandler{svc: svc}
}

func (h *PasswordRecoveryHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req otp.ResetPasswordInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password changed"})
}
