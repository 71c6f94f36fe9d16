// Package auth contiene los controllers de login local y sesión.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellogate/internal/account"
	"github.com/dropDatabas3/hellogate/internal/binding"
	"github.com/dropDatabas3/hellogate/internal/http/dto"
	httperrors "github.com/dropDatabas3/hellogate/internal/http/errors"
	"github.com/dropDatabas3/hellogate/internal/http/helpers"
	svc "github.com/dropDatabas3/hellogate/internal/http/services/auth"
	"github.com/dropDatabas3/hellogate/internal/observability/logger"
	"github.com/dropDatabas3/hellogate/internal/session"
)

// Controllers agrupa los handlers del dominio auth.
type Controllers struct {
	service svc.LoginService
}

func NewControllers(s svc.LoginService) *Controllers {
	return &Controllers{service: s}
}

// Login maneja POST /login (detrás del gate de captcha de imagen).
func (c *Controllers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.Login"))

	var req dto.LoginRequest
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		if !helpers.ReadJSON(w, r, &req) {
			return
		}
	} else {
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("username y password son requeridos"))
		return
	}

	res, err := c.service.LoginPassword(ctx, w, session.From(ctx), req.Username, req.Password)
	if err != nil {
		log.Info("login failed", logger.Err(err))
		writeLoginError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// LoginVerified maneja POST /login/mobile y /login/email: el gate ya
// validó el código y el destino verificado identifica la cuenta.
func (c *Controllers) LoginVerified(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.LoginVerified"))

	res, err := c.service.LoginVerified(ctx, w, session.From(ctx))
	if err != nil {
		log.Info("verified login failed", logger.Err(err))
		writeLoginError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// Logout maneja POST /logout.
func (c *Controllers) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := c.service.Logout(ctx, w, session.From(ctx)); err != nil {
		logger.From(ctx).Error("logout failed", logger.Layer("controller"), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session maneja GET /session.
func (c *Controllers) Session(w http.ResponseWriter, r *http.Request) {
	sess := session.From(r.Context())
	resp := dto.SessionResponse{}
	if sess.Authenticated() {
		at := sess.AuthenticatedAt
		resp.Authenticated = true
		resp.AccountID = sess.AccountID
		resp.AuthMethod = sess.AuthMethod
		resp.AuthenticatedAt = &at
	}
	if st, err := binding.LoadState(sess); err == nil && st.Pending != nil {
		resp.PendingBinding = &dto.PendingInfo{
			RegistrationID: st.Pending.RegistrationID,
			Provider:       st.Pending.Provider,
			SubjectID:      st.Pending.SubjectID,
		}
	}
	w.Header().Set("Cache-Control", "no-store")
	helpers.WriteJSON(w, http.StatusOK, resp)
}

func loginResponse(res *svc.Result) dto.LoginResponse {
	out := dto.LoginResponse{
		AccountID:  res.Account.ID,
		Username:   res.Account.Username,
		AuthMethod: res.Method,
	}
	if res.Link != nil {
		out.Linked = &dto.LinkInfo{RegistrationID: res.Link.RegistrationID, SubjectID: res.Link.SubjectID}
	}
	return out
}

func writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrInvalidCredentials):
		httperrors.WriteError(w, httperrors.ErrInvalidCredentials)
	case errors.Is(err, account.ErrDisabled):
		httperrors.WriteError(w, httperrors.ErrAccountDisabled)
	case errors.Is(err, svc.ErrNotVerified):
		httperrors.WriteError(w, httperrors.ErrChallengeInvalid)
	case errors.Is(err, session.ErrStorage):
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
	}
}
