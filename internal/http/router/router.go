// Package router arma el árbol de rutas HTTP del gateway (chi).
package router

import (
	"net/http"

	"github.com/dropDatabas3/hellogate/internal/captcha"
	authctrl "github.com/dropDatabas3/hellogate/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/hellogate/internal/http/controllers/health"
	socialctrl "github.com/dropDatabas3/hellogate/internal/http/controllers/social"
	httperrors "github.com/dropDatabas3/hellogate/internal/http/errors"
	mw "github.com/dropDatabas3/hellogate/internal/http/middlewares"
	"github.com/dropDatabas3/hellogate/internal/rate"
	"github.com/dropDatabas3/hellogate/internal/session"
	"github.com/go-chi/chi/v5"
)

// Deps contiene todo lo que el router necesita.
type Deps struct {
	Auth   *authctrl.Controllers
	Social *socialctrl.Controllers
	Health *healthctrl.Controllers

	Captcha  *captcha.ServiceRegistry
	Sessions *session.Store

	// SendLimiter limita por IP las URLs de envío de captcha; nil = sin límite.
	SendLimiter rate.Limiter

	// Metrics expone /metrics; nil = no se monta.
	Metrics http.Handler
}

// New devuelve el handler raíz.
//
// El gate de captcha corre como middleware global: las URLs de envío no
// tienen ruta propia y las de validación llegan a su handler solo si el
// código validó.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// ===========================================================================
	// Infra (sin sesión ni captcha)
	// ===========================================================================
	r.Group(func(r chi.Router) {
		r.Use(mw.WithRecover(), mw.WithRequestID())
		if d.Health != nil {
			r.Get("/healthz", d.Health.Healthz)
			r.Get("/readyz", d.Health.Readyz)
		}
		if d.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", d.Metrics)
		}
	})

	// ===========================================================================
	// Gateway
	// ===========================================================================
	gw := chi.NewRouter()
	gw.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithSecurityHeaders(),
	)
	if d.SendLimiter != nil && d.Captcha != nil {
		gw.Use(mw.WithRateLimit(mw.RateLimitConfig{
			Limiter: d.SendLimiter,
			KeyFunc: mw.IPPathRateKey,
			Match: func(req *http.Request) bool {
				_, action := d.Captcha.Resolve(req)
				return action == captcha.ActionSend
			},
		}))
	}
	if d.Captcha != nil {
		gw.Use(mw.WithCaptcha(d.Captcha))
	}
	gw.Use(mw.WithSession(d.Sessions))

	gw.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	gw.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	if d.Auth != nil {
		gw.Post("/login", d.Auth.Login)
		gw.Post("/login/mobile", d.Auth.LoginVerified)
		gw.Post("/login/email", d.Auth.LoginVerified)
		gw.Post("/logout", d.Auth.Logout)
		gw.Get("/session", d.Auth.Session)
	}
	if d.Social != nil {
		gw.Get("/oauth2/authorization/{registrationId}", d.Social.Authorize)
		gw.Get("/login/oauth2/code/{registrationId}", d.Social.Callback)
	}

	// todo lo que no es infra pasa por el gateway (incluye URLs de envío
	// de captcha, que no tienen ruta)
	r.Mount("/", gw)
	return r
}
