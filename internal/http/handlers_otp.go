package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tiffinlabs/tiffin-auth/internal/service"
)

// OTPHandlers provides HTTP handlers for the phone OTP flow.
type OTPHandlers struct {
	OTP    *service.OTPService
	Logger *slog.Logger
}

func (h *OTPHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type otpRequestBody struct {
	Phone string `json:"phone"`
}

// Request issues a verification code for the number.
// POST /auth/otp/request.
func (h *OTPHandlers) Request(w http.ResponseWriter, r *http.Request) {
	var body otpRequestBody
	if !DecodeJSON(w, r, &body) {
		return
	}
	if body.Phone == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("phone is required"),
		})
		return
	}

	if err := h.OTP.Issue(r.Context(), body.Phone); err != nil {
		h.logger().WarnContext(r.Context(), "otp issuance failed", "error", err)
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

type otpVerifyBody struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// Verify redeems a verification code and establishes the phone session for
// this client.
// POST /auth/otp/verify.
func (h *OTPHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	var body otpVerifyBody
	if !DecodeJSON(w, r, &body) {
		return
	}
	if body.Phone == "" || body.Code == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("phone and code are required"),
		})
		return
	}

	principal, profile, err := h.OTP.Verify(r.Context(), body.Phone, body.Code)
	if err != nil {
		h.logger().WarnContext(r.Context(), "otp verification failed", "error", err)
		WriteDomainError(w, err)
		return
	}

	cs, ok := ClientSessionFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "internal",
			Err:     errors.New("no client session on request"),
		})
		return
	}
	if err := cs.Manager.SignInPhone(r.Context(), principal, profile); err != nil {
		h.logger().ErrorContext(r.Context(), "phone sign-in failed", "error", err)
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, sessionPayload(cs.Manager.Current()))
}
