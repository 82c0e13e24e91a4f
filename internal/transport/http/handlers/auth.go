package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pribylovaa/go-jwt-auth/internal/session"
	apierrors "github.com/pribylovaa/go-jwt-auth/internal/transport/http/errors"
)

func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var in signupRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	user, pair, err := h.svc.Signup(r.Context(), in.Email, in.Password, in.Name)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{User: userFromModel(user), Tokens: tokensFromModel(pair)})
}

func (h *Handlers) Signin(w http.ResponseWriter, r *http.Request) {
	var in signinRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	user, pair, err := h.svc.Signin(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: userFromModel(user), Tokens: tokensFromModel(pair)})
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, _, err := h.svc.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, credentialFailure(err))
		return
	}

	writeJSON(w, http.StatusOK, tokensResponse{Tokens: tokensFromModel(pair)})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.Logout(r.Context(), in.RefreshToken); err != nil {
		apierrors.WriteError(w, r, credentialFailure(err))
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// RevokeAll завершает все сессии владельца access-токена.
func (h *Handlers) RevokeAll(w http.ResponseWriter, r *http.Request) {
	uid, err := subject(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	n, err := h.svc.LogoutAll(r.Context(), uid)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, revokeAllResponse{OK: true, Revoked: n})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	uid, err := subject(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	user, err := h.svc.Profile(r.Context(), uid)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userFromModel(user))
}

// credentialFailure сводит отсутствие пользователя к 401: в потоках
// с refresh-токеном клиент не должен отличать его от отозванного токена.
func credentialFailure(err error) error {
	if errors.Is(err, session.ErrUserNotFound) {
		return fmt.Errorf("%w: %v", apierrors.ErrUnauthorized, err)
	}

	return err
}
