package controllers

import (
	"context"
	"net/http"

	"github.com/batjin/foodrush-storefront/api/responses"
	"github.com/batjin/foodrush-storefront/api/validators"
	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/logger"
)

// Session is the credential surface controllers drive.
type Session interface {
	SetCredentials(ctx context.Context, token string, userID string) error
	Clear(ctx context.Context)
	UserID() string
	Authenticated() bool
}

type loginRequest struct {
	Token  string `json:"token" validate:"required"`
	UserID string `json:"userId"`
}

type sessionPayload struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
}

// SessionLogin installs the bearer token obtained by the UI shell.
func SessionLogin(sessions Session, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session unavailable"))
			return
		}

		var payload loginRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := sessions.SetCredentials(r.Context(), payload.Token, payload.UserID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessionPayload{Authenticated: true, UserID: sessions.UserID()})
	}
}

// SessionLogout drops the credentials.
func SessionLogout(sessions Session, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session unavailable"))
			return
		}
		sessions.Clear(r.Context())
		responses.WriteSuccess(w, sessionPayload{Authenticated: false})
	}
}

// SessionFetch reports the current auth state.
func SessionFetch(sessions Session, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session unavailable"))
			return
		}
		responses.WriteSuccess(w, sessionPayload{
			Authenticated: sessions.Authenticated(),
			UserID:        sessions.UserID(),
		})
	}
}
