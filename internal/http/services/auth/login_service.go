// Package auth contiene los services de login local.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/hellogate/internal/account"
	"github.com/dropDatabas3/hellogate/internal/audit"
	"github.com/dropDatabas3/hellogate/internal/binding"
	"github.com/dropDatabas3/hellogate/internal/captcha"
	"github.com/dropDatabas3/hellogate/internal/observability/logger"
	"github.com/dropDatabas3/hellogate/internal/session"
)

// Métodos de autenticación guardados en la sesión.
const (
	MethodPassword = "password"
	MethodSMS      = "sms"
	MethodEmail    = "email"
)

var ErrNotVerified = errors.New("auth: request did not pass a verification challenge")

// Deps contiene las dependencias del login service.
type Deps struct {
	Accounts *account.Service
	Sessions *session.Store
	Binding  *binding.Coordinator
	Now      func() time.Time
}

// Result de un login local exitoso.
type Result struct {
	Account *account.Account
	Method  string
	Link    *binding.Link // vínculo creado por el hook de binding, si hubo
}

// LoginService autentica cuentas locales y dispara el hook de binding.
type LoginService interface {
	LoginPassword(ctx context.Context, w http.ResponseWriter, sess *session.Session, username, password string) (*Result, error)
	LoginVerified(ctx context.Context, w http.ResponseWriter, sess *session.Session) (*Result, error)
	Logout(ctx context.Context, w http.ResponseWriter, sess *session.Session) error
}

type loginService struct {
	deps Deps
}

func NewLoginService(d Deps) LoginService {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &loginService{deps: d}
}

func (s *loginService) LoginPassword(ctx context.Context, w http.ResponseWriter, sess *session.Session, username, password string) (*Result, error) {
	acc, err := s.deps.Accounts.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, w, sess, acc, MethodPassword)
}

// LoginVerified autentica con el destino validado por el gate (móvil o
// email). El challenge ya fue consumido antes de llegar acá.
func (s *loginService) LoginVerified(ctx context.Context, w http.ResponseWriter, sess *session.Session) (*Result, error) {
	v, ok := captcha.VerifiedFrom(ctx)
	if !ok || v.Target == "" {
		return nil, ErrNotVerified
	}

	var (
		acc    *account.Account
		err    error
		method string
	)
	switch v.Channel {
	case captcha.ChannelSMS:
		acc, err = s.deps.Accounts.FindByMobile(ctx, v.Target)
		method = MethodSMS
	case captcha.ChannelEmail:
		acc, err = s.deps.Accounts.FindByEmail(ctx, v.Target)
		method = MethodEmail
	default:
		return nil, ErrNotVerified
	}
	if errors.Is(err, account.ErrNotFound) {
		return nil, account.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if acc.Disabled {
		return nil, account.ErrDisabled
	}
	return s.complete(ctx, w, sess, acc, method)
}

// complete marca la sesión, corre el hook de binding y rota el id.
func (s *loginService) complete(ctx context.Context, w http.ResponseWriter, sess *session.Session, acc *account.Account, method string) (*Result, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("login.complete"), logger.AccountID(acc.ID))

	sess.SignIn(acc.ID, method, s.deps.Now().UTC())
	res := &Result{Account: acc, Method: method}

	link, err := s.deps.Binding.OnLocalAuthenticationSuccess(ctx, sess, acc.ID)
	switch {
	case err == nil:
		res.Link = link
		if link != nil {
			audit.Log(ctx, audit.EventBindingCreated, logger.AccountID(acc.ID),
				logger.RegistrationID(link.RegistrationID), logger.String("subject_id", link.SubjectID))
		}
	case errors.Is(err, binding.ErrLinkConflict):
		// el login vale igual; el pendiente ya se limpió
		log.Warn("pending binding discarded", logger.Err(err))
	default:
		log.Error("binding hook failed", logger.Err(err))
	}

	if err := s.deps.Sessions.Rotate(ctx, w, sess); err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.EventLocalLogin, logger.AccountID(acc.ID), logger.String("method", method))
	return res, nil
}

func (s *loginService) Logout(ctx context.Context, w http.ResponseWriter, sess *session.Session) error {
	if sess.Authenticated() {
		audit.Log(ctx, audit.EventLogout, logger.AccountID(sess.AccountID))
	}
	return s.deps.Sessions.Destroy(ctx, w, sess)
}
