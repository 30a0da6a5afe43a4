package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-auth-service/internal/model"
)

type passwordResetService interface {
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, identifier string, token string, newPassword string) error
}

type PasswordResetHandler struct {
	service passwordResetService
}

func NewPasswordResetHandler(service passwordResetService) *PasswordResetHandler {
	return &PasswordResetHandler{service: service}
}

func (h *PasswordResetHandler) Request(w http.ResponseWriter, r *http.Request) {
	var payload model.PasswordResetRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), payload.Email); err != nil {
		writeError(w, r, err)
		return
	}

	writeMessage(w, http.StatusOK, "Password reset email sent")
}

func (h *PasswordResetHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var payload model.PasswordResetConfirmRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	uid := chi.URLParam(r, "uid")
	token := chi.URLParam(r, "token")
	if err := h.service.ConfirmPasswordReset(r.Context(), uid, token, payload.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}

	writeMessage(w, http.StatusOK, "Password has been reset")
}
