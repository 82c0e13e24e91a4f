package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pribylovaa/go-jwt-auth/internal/pkg/log"
	"github.com/pribylovaa/go-jwt-auth/internal/service"
	apierrors "github.com/pribylovaa/go-jwt-auth/internal/transport/http/errors"
)

// ForgotPassword всегда отвечает 202, если тело разобрано: по ответу нельзя
// понять, зарегистрирован ли e-mail.
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in forgotRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.RequestPasswordReset(r.Context(), in.Email); err != nil {
		if !errors.Is(err, service.ErrInvalidEmail) {
			log.From(r.Context()).Error("password_reset_request_failed", slog.String("err", err.Error()))
		}
	}

	writeJSON(w, http.StatusAccepted, okResponse{OK: true})
}

func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in resetRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), in.Token, in.Password); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handlers) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	uid, err := subject(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.RequestEmailVerification(r.Context(), uid); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, okResponse{OK: true})
}

func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var in tokenRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	uid, err := h.svc.VerifyEmail(r.Context(), in.Token)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyEmailResponse{OK: true, UserID: uid.String()})
}
