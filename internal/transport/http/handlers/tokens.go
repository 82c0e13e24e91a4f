package handlers

import (
	"log/slog"
	"maps"
	"net/http"
	"time"

	"github.com/pribylovaa/go-jwt-auth/internal/pkg/log"
	"github.com/pribylovaa/go-jwt-auth/internal/token"
	apierrors "github.com/pribylovaa/go-jwt-auth/internal/transport/http/errors"
	"github.com/pribylovaa/go-jwt-auth/internal/transport/http/middleware"
)

// claimGeneratedBy — кто выпустил токен через /generate.
const claimGeneratedBy = "gen_by"

// Verify проверяет access-токен. Недействительный токен — не ошибка запроса:
// ответ 200 с valid=false и машиночитаемой причиной.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	var in tokenRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	vc, err := h.engine.VerifyAccessToken(in.Token)
	if err != nil {
		reason := token.ReasonOf(err)
		if reason == "" {
			reason = token.ReasonMalformed
		}
		writeJSON(w, http.StatusOK, verifyResponse{Valid: false, Reason: string(reason)})
		return
	}

	exp := vc.ExpiresAt
	writeJSON(w, http.StatusOK, verifyResponse{
		Valid:     true,
		User:      &verifyUser{ID: vc.Subject, Email: vc.Email, Name: vc.Name},
		ExpiresAt: &exp,
	})
}

// Decode разбирает токен без проверки подписи и срока.
func (h *Handlers) Decode(w http.ResponseWriter, r *http.Request) {
	var in tokenRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	dc, err := h.engine.Decode(in.Token)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, decodeResponse{
		Decoded:   dc.Claims,
		Algorithm: dc.Algorithm,
		IssuedAt:  dc.IssuedAt,
		ExpiresAt: dc.ExpiresAt,
	})
}

// Info описывает access-токен, с которым пришёл запрос.
func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	vc, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthorized)
		return
	}

	left := vc.ExpiresAt.Sub(h.now())

	writeJSON(w, http.StatusOK, infoResponse{
		Type:      string(vc.Type),
		Algorithm: vc.Algorithm,
		Subject:   vc.Subject,
		Issuer:    vc.Issuer,
		Audience:  vc.Audience,
		IssuedAt:  vc.IssuedAt,
		ExpiresAt: vc.ExpiresAt,
		Expired:   left <= 0,
		ValidFor:  max(int64(left/time.Second), 0),
		Payload:   vc.Raw,
	})
}

// Generate выпускает access-токен с произвольными claims.
// sub берётся из payload, иначе — владелец запроса. Срок ограничен custom_token_max_ttl.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthorized)
		return
	}

	var in generateRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	ttl := h.cfg.CustomTokenTTL
	expiresIn := ttl.String()
	if in.ExpiresIn != "" {
		d, err := token.ParseTTL(in.ExpiresIn)
		if err != nil {
			apierrors.WriteError(w, r, err)
			return
		}
		ttl, expiresIn = d, in.ExpiresIn
	}
	if h.cfg.CustomTokenMaxTTL > 0 && ttl > h.cfg.CustomTokenMaxTTL {
		ttl, expiresIn = h.cfg.CustomTokenMaxTTL, h.cfg.CustomTokenMaxTTL.String()
	}

	payload := maps.Clone(in.Payload)
	if payload == nil {
		payload = map[string]any{}
	}

	claims := token.Claims{Subject: caller.Subject, Extra: payload}
	if sub, ok := payload["sub"].(string); ok && sub != "" {
		claims.Subject = sub
	}
	claims.Email, _ = payload["email"].(string)
	claims.Name, _ = payload["name"].(string)
	payload[claimGeneratedBy] = caller.Subject

	signed, exp, err := h.engine.IssueAccessToken(claims, ttl)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	log.From(r.Context()).Info("custom_token_issued",
		slog.String("subject", claims.Subject),
		slog.Duration("ttl", ttl),
	)

	writeJSON(w, http.StatusOK, generateResponse{
		Token:     signed,
		ExpiresIn: expiresIn,
		ExpiresAt: exp,
		Payload:   payload,
	})
}
