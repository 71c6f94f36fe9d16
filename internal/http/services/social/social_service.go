// Package social contiene el service del login federado: arranque del flujo
// authorization-code y callback (canje, user-info, binding).
package social

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dropDatabas3/hellogate/internal/audit"
	"github.com/dropDatabas3/hellogate/internal/binding"
	"github.com/dropDatabas3/hellogate/internal/federation"
	"github.com/dropDatabas3/hellogate/internal/metrics"
	"github.com/dropDatabas3/hellogate/internal/observability/logger"
	"github.com/dropDatabas3/hellogate/internal/session"
)

// ErrProviderDenied: el proveedor volvió al callback con ?error=.
var ErrProviderDenied = errors.New("social: provider returned an error")

// IDTokenVerifier valida el id_token de registraciones OIDC. found=false
// si la registración no tiene verificador.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, registrationID, rawIDToken, nonce string) (bool, error)
}

// Deps contiene las dependencias del service.
type Deps struct {
	Providers federation.ProviderRegistry
	Authz     *federation.AuthorizationRequestBroker
	Tokens    *federation.TokenExchangeBroker
	Users     *federation.UserInfoBroker
	IDTokens  IDTokenVerifier // opcional
	Binding   *binding.Coordinator
	Sessions  *session.Store
	Now       func() time.Time
}

// CallbackRequest son los parámetros del redirect de vuelta.
type CallbackRequest struct {
	RegistrationID   string
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackResult del login federado.
type CallbackResult struct {
	Identity  *federation.FederatedIdentity
	AccountID string // != "" si la sesión quedó autenticada
	Pending   bool
}

type Service interface {
	Start(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *session.Session) (string, error)
	Callback(ctx context.Context, w http.ResponseWriter, sess *session.Session, in CallbackRequest) (*CallbackResult, error)
}

type service struct {
	deps Deps
}

func NewService(d Deps) Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &service{deps: d}
}

// Start arma el authorization request, lo guarda en sesión bajo su state y
// devuelve la URL de redirect al proveedor.
func (s *service) Start(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *session.Session) (string, error) {
	req, err := s.deps.Authz.Resolve(r)
	if err != nil {
		return "", err
	}
	var maxAge time.Duration
	if s.deps.Authz.State != nil {
		maxAge = s.deps.Authz.State.TTL()
	}
	if err := federation.SaveAuthorizationRequest(sess, req, maxAge); err != nil {
		return "", err
	}
	if err := s.deps.Sessions.Save(ctx, w, sess); err != nil {
		return "", err
	}
	logger.From(ctx).Debug("authorization request issued",
		logger.Layer("service"), logger.RegistrationID(req.RegistrationID), logger.Provider(req.Provider))
	return req.URL(), nil
}

func (s *service) Callback(ctx context.Context, w http.ResponseWriter, sess *session.Session, in CallbackRequest) (res *CallbackResult, err error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("social.Callback"), logger.RegistrationID(in.RegistrationID))

	p, ok := s.deps.Providers.Lookup(in.RegistrationID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", federation.ErrUnknownRegistration, in.RegistrationID)
	}
	defer func() {
		metrics.FederationLogins.WithLabelValues(in.RegistrationID, outcome(res, err)).Inc()
	}()

	// el request guardado es de un solo uso, pase lo que pase después
	authReq, takeErr := federation.TakeAuthorizationRequest(sess, in.State)
	if takeErr == nil {
		defer func() {
			if res == nil || res.AccountID == "" {
				if serr := s.deps.Sessions.Save(ctx, w, sess); serr != nil && err == nil {
					res, err = nil, serr
				}
			}
		}()
	}

	if in.Error != "" {
		return nil, fmt.Errorf("%w: %s %s", ErrProviderDenied, in.Error, in.ErrorDescription)
	}
	if takeErr != nil {
		return nil, takeErr
	}
	rid, err := s.deps.Authz.State.Parse(in.State)
	if err != nil {
		return nil, err
	}
	if rid != in.RegistrationID || authReq.RegistrationID != in.RegistrationID {
		return nil, fmt.Errorf("%w: registration mismatch", federation.ErrInvalidState)
	}
	if in.Code == "" {
		return nil, fmt.Errorf("%w: missing code", federation.ErrInvalidState)
	}

	tok, err := s.deps.Tokens.Exchange(ctx, federation.AuthorizationCodeGrant{
		Provider:     p,
		Code:         in.Code,
		RedirectURI:  authReq.RedirectURI,
		CodeVerifier: authReq.CodeVerifier,
		State:        in.State,
	})
	if err != nil {
		return nil, err
	}

	if raw := tok.Param("id_token"); raw != "" && s.deps.IDTokens != nil {
		if _, err := s.deps.IDTokens.VerifyIDToken(ctx, in.RegistrationID, raw, authReq.Nonce); err != nil {
			return nil, err
		}
	}

	id, err := s.deps.Users.FetchUser(ctx, tok, in.RegistrationID)
	if err != nil {
		return nil, err
	}

	out, err := s.deps.Binding.OnFederationResolved(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	res = &CallbackResult{Identity: id, Pending: out.Pending}

	if out.SignInAccountID != "" {
		sess.SignIn(out.SignInAccountID, "federated:"+in.RegistrationID, s.deps.Now().UTC())
		if err := s.deps.Sessions.Rotate(ctx, w, sess); err != nil {
			return nil, err
		}
		res.AccountID = out.SignInAccountID
		audit.Log(ctx, audit.EventFederatedLogin, logger.AccountID(res.AccountID),
			logger.RegistrationID(in.RegistrationID), logger.String("subject_id", id.SubjectID))
	} else {
		log.Info("federated login pending binding")
	}
	return res, nil
}

func outcome(res *CallbackResult, err error) string {
	switch {
	case err == nil && res != nil && res.AccountID != "":
		return "signed_in"
	case err == nil:
		return "pending_binding"
	case errors.Is(err, federation.ErrTokenExchangeFailed):
		return "token_exchange_failed"
	case errors.Is(err, federation.ErrUserInfoFetchFailed):
		return "user_info_failed"
	case errors.Is(err, federation.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrProviderDenied):
		return "provider_denied"
	}
	return "error"
}
