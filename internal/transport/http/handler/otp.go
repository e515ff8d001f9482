package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ride-identity/internal/application/otp"
	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/transport/http/middleware"
)

// OTPHandler exposes the code request, resend, verify and status operations.
type OTPHandler struct {
	svc otp.Service
}

func NewOTPHandler(svc otp.Service) *OTPHandler { return &OTPHandler{svc: svc} }

func (h *OTPHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req otp.RequestInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Caller = caller(r)
	receipt, err := h.svc.RequestOTP(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *OTPHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req otp.ResendInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Caller = caller(r)
	receipt, err := h.svc.ResendOTP(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req otp.VerifyInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.VerifyOTP(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVerifyEnvelope(res))
}

// Status reports on the bearer's own code.
func (h *OTPHandler) Status(w http.ResponseWriter, r *http.Request) {
	subject := caller(r)
	if subject == nil {
		writeError(w, http.StatusUnauthorized, "missing authorization header")
		return
	}
	st, err := h.svc.GetOTPStatus(r.Context(), *subject, domain.Purpose(r.URL.Query().Get("purpose")))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// caller is the subject of the request's bearer token, nil when anonymous.
func caller(r *http.Request) *domain.Subject {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return nil
	}
	s := claims.Subject()
	return &s
}
