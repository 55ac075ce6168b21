package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tiffinlabs/tiffin-auth/internal/service"
)

// ProfileHandlers provides HTTP handlers for profile completion after a
// phone-only sign-in.
type ProfileHandlers struct {
	Profiles *service.ProfileService
	Logger   *slog.Logger
}

func (h *ProfileHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type completeProfileBody struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Complete fills in the synthesized profile for the signed-in principal and
// refreshes the session snapshot from the store.
// POST /auth/profile.
func (h *ProfileHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	var body completeProfileBody
	if !DecodeJSON(w, r, &body) {
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
	sess := cs.Manager.Current()
	if !sess.Authenticated() {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}

	if _, err := h.Profiles.Complete(r.Context(), sess.Principal.ID, body.DisplayName, body.Email); err != nil {
		h.logger().WarnContext(r.Context(), "profile completion failed",
			"uid", sess.Principal.ID, "error", err)
		WriteDomainError(w, err)
		return
	}
	if err := cs.Manager.Refresh(r.Context()); err != nil {
		h.logger().WarnContext(r.Context(), "session refresh after profile completion failed",
			"uid", sess.Principal.ID, "error", err)
	}

	WriteJSON(w, http.StatusOK, sessionPayload(cs.Manager.Current()))
}
