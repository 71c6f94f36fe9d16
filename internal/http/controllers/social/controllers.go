// Package social contiene los controllers del login federado.
package social

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellogate/internal/binding"
	"github.com/dropDatabas3/hellogate/internal/federation"
	"github.com/dropDatabas3/hellogate/internal/http/dto"
	httperrors "github.com/dropDatabas3/hellogate/internal/http/errors"
	"github.com/dropDatabas3/hellogate/internal/http/helpers"
	svc "github.com/dropDatabas3/hellogate/internal/http/services/social"
	"github.com/dropDatabas3/hellogate/internal/observability/logger"
	"github.com/dropDatabas3/hellogate/internal/session"
	"github.com/go-chi/chi/v5"
)

// Controllers agrupa los handlers del dominio social.
type Controllers struct {
	service svc.Service

	// Destinos del redirect final; vacíos = respuesta JSON.
	SuccessRedirect string
	BindingRedirect string
}

func NewControllers(s svc.Service, successRedirect, bindingRedirect string) *Controllers {
	return &Controllers{service: s, SuccessRedirect: successRedirect, BindingRedirect: bindingRedirect}
}

// Authorize maneja GET /oauth2/authorization/{registrationId}.
func (c *Controllers) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("social.Authorize"))

	target, err := c.service.Start(ctx, w, r, session.From(ctx))
	if err != nil {
		log.Warn("authorize failed", logger.Err(err))
		WriteFederationError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback maneja GET /login/oauth2/code/{registrationId}.
func (c *Controllers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid := chi.URLParam(r, "registrationId")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("social.Callback"), logger.RegistrationID(rid))

	q := r.URL.Query()
	res, err := c.service.Callback(ctx, w, session.From(ctx), svc.CallbackRequest{
		RegistrationID:   rid,
		Code:             strings.TrimSpace(q.Get("code")),
		State:            strings.TrimSpace(q.Get("state")),
		Error:            strings.TrimSpace(q.Get("error")),
		ErrorDescription: strings.TrimSpace(q.Get("error_description")),
	})
	if err != nil {
		log.Warn("callback failed", logger.Err(err))
		WriteFederationError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	resp := dto.CallbackResponse{
		Status:         dto.CallbackPendingBinding,
		RegistrationID: res.Identity.RegistrationID,
		Provider:       res.Identity.Provider,
		SubjectID:      res.Identity.SubjectID,
		AccountID:      res.AccountID,
	}
	redirect := c.BindingRedirect
	if res.AccountID != "" {
		resp.Status = dto.CallbackSignedIn
		redirect = c.SuccessRedirect
	}
	if redirect != "" && !helpers.WantsJSON(r) {
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

// WriteFederationError traduce errores de federation/binding a AppError.
func WriteFederationError(w http.ResponseWriter, err error) {
	var (
		te *federation.TokenExchangeError
		ue *federation.UserInfoError
	)
	switch {
	case errors.Is(err, federation.ErrUnknownRegistration):
		httperrors.WriteError(w, httperrors.ErrUnknownRegistration.WithCause(err))
	case errors.As(err, &te):
		httperrors.WriteError(w, httperrors.ErrTokenExchangeFailed.WithDetail(te.ProviderErrorCode).WithCause(err))
	case errors.As(err, &ue):
		httperrors.WriteError(w, httperrors.ErrUserInfoFetchFailed.WithDetail(ue.ProviderErrorCode).WithCause(err))
	case errors.Is(err, federation.ErrInvalidState):
		httperrors.WriteError(w, httperrors.ErrInvalidState.WithCause(err))
	case errors.Is(err, svc.ErrProviderDenied):
		httperrors.WriteError(w, httperrors.ErrProviderDenied.WithDetail(err.Error()).WithCause(err))
	case errors.Is(err, binding.ErrLinkConflict):
		httperrors.WriteError(w, httperrors.ErrLinkConflict)
	case errors.Is(err, session.ErrStorage), errors.Is(err, binding.ErrStorage):
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
	}
}
