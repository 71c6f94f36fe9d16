// Package app arma el gateway a partir de la config: stores, canales de
// captcha, brokers de federación, binding, sesiones y router.
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/hellogate/internal/account"
	"github.com/dropDatabas3/hellogate/internal/binding"
	"github.com/dropDatabas3/hellogate/internal/cache"
	"github.com/dropDatabas3/hellogate/internal/captcha"
	"github.com/dropDatabas3/hellogate/internal/config"
	"github.com/dropDatabas3/hellogate/internal/dispatch"
	"github.com/dropDatabas3/hellogate/internal/federation"
	"github.com/dropDatabas3/hellogate/internal/federation/vendors"
	authctrl "github.com/dropDatabas3/hellogate/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/hellogate/internal/http/controllers/health"
	socialctrl "github.com/dropDatabas3/hellogate/internal/http/controllers/social"
	"github.com/dropDatabas3/hellogate/internal/http/router"
	authsvc "github.com/dropDatabas3/hellogate/internal/http/services/auth"
	socialsvc "github.com/dropDatabas3/hellogate/internal/http/services/social"
	"github.com/dropDatabas3/hellogate/internal/metrics"
	"github.com/dropDatabas3/hellogate/internal/observability/logger"
	"github.com/dropDatabas3/hellogate/internal/rate"
	"github.com/dropDatabas3/hellogate/internal/session"
	"github.com/dropDatabas3/hellogate/internal/store"
	migrations "github.com/dropDatabas3/hellogate/migrations/postgres"
)

// Parámetros que llevan el destino de los canales de mensaje.
const (
	SMSTargetParam   = "mobile"
	EmailTargetParam = "email"
)

// Options permite inyectar colaboradores (tests, CLI).
type Options struct {
	Cache      cache.Client
	HTTPClient *http.Client // llamadas a proveedores
	SMS        dispatch.Dispatcher
	Email      dispatch.Dispatcher
}

// App es el gateway armado.
type App struct {
	Config    *config.Config
	Handler   http.Handler
	Cache     cache.Client
	Pool      *pgxpool.Pool
	Captcha   *captcha.ServiceRegistry
	Providers *federation.StaticProviderRegistry
	Accounts  *account.Service

	closers []func() error
}

// New arma el App. Si algo falla libera lo que ya abrió.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	log := logger.L().With(logger.Component("app"))

	// ─── TTL store ───
	a.Cache = opts.Cache
	if a.Cache == nil {
		a.Cache, err = cache.New(cache.Config{
			Driver:     cfg.Cache.Kind,
			Addr:       cfg.Cache.Redis.Addr,
			Password:   cfg.Cache.Redis.Password,
			DB:         cfg.Cache.Redis.DB,
			Prefix:     cfg.Cache.Redis.Prefix,
			DefaultTTL: cfg.Cache.Memory.DefaultTTL,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.Cache.Close)
	}

	// ─── Cuentas + vínculos ───
	links, err := a.buildStorage(ctx)
	if err != nil {
		return nil, err
	}

	// ─── Métricas ───
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}

	// ─── Captcha ───
	a.Captcha, err = buildCaptcha(cfg, a.Cache, opts)
	if err != nil {
		return nil, err
	}

	// ─── Federation ───
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Federation.HTTPTimeout}
	}
	a.Providers = federation.NewStaticProviderRegistry(providerDescriptors(cfg)...)
	if cfg.Federation.Discovery {
		if err := a.Providers.Discover(ctx, httpClient); err != nil {
			return nil, err
		}
	}
	authzReg := federation.NewRegistry[federation.AuthorizationRequestCustomizer]()
	tokenReg := federation.NewRegistry[federation.TokenExchanger]()
	userReg := federation.NewRegistry[federation.UserInfoFetcher]()
	vendors.Register(authzReg, tokenReg, userReg)

	secret := []byte(cfg.Federation.StateSecret)
	if len(secret) == 0 {
		// sin providers configurados el state nunca se usa
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
	}

	sessions := session.NewStore(a.Cache, session.Options{
		CookieName: cfg.Session.CookieName,
		Domain:     cfg.Session.Domain,
		SameSite:   session.ParseSameSite(cfg.Session.SameSite),
		Secure:     cfg.Session.Secure,
		TTL:        cfg.Session.TTL,
	})
	coordinator := binding.NewCoordinator(links)

	social := socialsvc.NewService(socialsvc.Deps{
		Providers: a.Providers,
		Authz: &federation.AuthorizationRequestBroker{
			Providers:   a.Providers,
			Customizers: authzReg,
			State:       federation.NewStateCodec(secret, cfg.Federation.StateTTL),
			BaseURL:     cfg.App.BaseURL,
		},
		Tokens:   &federation.TokenExchangeBroker{Customizers: tokenReg, HTTPClient: httpClient},
		Users:    &federation.UserInfoBroker{Providers: a.Providers, Customizers: userReg, HTTPClient: httpClient},
		IDTokens: a.Providers,
		Binding:  coordinator,
		Sessions: sessions,
	})
	login := authsvc.NewLoginService(authsvc.Deps{
		Accounts: a.Accounts,
		Sessions: sessions,
		Binding:  coordinator,
	})

	// ─── HTTP ───
	checks := map[string]healthctrl.Pinger{"cache": a.Cache}
	if a.Pool != nil {
		checks["postgres"] = a.Pool
	}
	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		limiter = buildLimiter(cfg, a.Cache)
	}

	a.Handler = router.New(router.Deps{
		Auth:        authctrl.NewControllers(login),
		Social:      socialctrl.NewControllers(social, cfg.Federation.SuccessRedirect, cfg.Federation.BindingRedirect),
		Health:      healthctrl.NewControllers(checks),
		Captcha:     a.Captcha,
		Sessions:    sessions,
		SendLimiter: limiter,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	log.Info("gateway wired",
		logger.String("cache", cfg.Cache.Kind),
		logger.String("storage", cfg.Storage.Driver),
		logger.Any("channels", a.Captcha.Channels()),
		logger.Any("registrations", a.Providers.IDs()),
	)
	return a, nil
}

// Close libera recursos en orden inverso.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) buildStorage(ctx context.Context) (binding.LinkStore, error) {
	cfg := a.Config
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := store.OpenPostgres(ctx, store.PGConfig{DSN: cfg.Storage.DSN, MaxConns: cfg.Storage.Postgres.MaxConns})
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		if cfg.Storage.Postgres.Migrate {
			res, err := store.NewMigrator(migrations.FS, migrations.Dir).Run(ctx, pool)
			if err != nil {
				return nil, err
			}
			logger.L().Info("migrations applied", logger.Component("store"),
				logger.Any("applied", res.Applied), logger.Duration(res.Duration))
		}

		accounts := account.NewPGStore(pool)
		for _, s := range cfg.Accounts {
			if err := accounts.Insert(ctx, seedAccount(s)); err != nil {
				return nil, fmt.Errorf("seed account %s: %w", s.Username, err)
			}
		}
		a.Accounts = account.NewService(accounts)
		return binding.NewPGLinkStore(pool), nil

	default:
		seeds := make([]account.Account, 0, len(cfg.Accounts))
		for _, s := range cfg.Accounts {
			seeds = append(seeds, seedAccount(s))
		}
		a.Accounts = account.NewService(account.NewMemoryStore(seeds...))
		return binding.NewCacheLinkStore(a.Cache), nil
	}
}

func seedAccount(s config.AccountSeed) account.Account {
	return account.Account{
		ID:           s.ID,
		Username:     s.Username,
		PasswordHash: s.PasswordHash,
		Mobile:       s.Mobile,
		Email:        s.Email,
	}
}

func buildCaptcha(cfg *config.Config, c cache.Client, opts Options) (*captcha.ServiceRegistry, error) {
	cc := cfg.Captcha
	reg := captcha.NewServiceRegistry(cc.TypeParam)
	tpl := dispatch.DefaultTemplates()

	if img := cc.Image; !img.Disabled {
		gen := captcha.NewImageGenerator(captcha.ImageOptions{
			Charset:    img.Charset,
			Length:     img.Length,
			Width:      img.Width,
			Height:     img.Height,
			NoiseLines: img.NoiseLines,
			FontSize:   img.FontSize,
			Expiry:     img.Expiry,
		}, nil)
		svc := captcha.NewImageService(c, gen, cc.KeyParam, cc.CodeParam, img.ResendInterval)
		if err := reg.Register(svc, img.SendURLs, img.ValidateURLs); err != nil {
			return nil, err
		}
	}

	if sms := cc.SMS; !sms.Disabled {
		d := opts.SMS
		if d == nil {
			if cfg.SMS.Driver == "http" {
				d = dispatch.NewHTTPSMS(cfg.SMS.Endpoint, cfg.SMS.APIKey, cfg.SMS.Sender, cfg.SMS.Timeout, tpl)
			} else {
				d = dispatch.NewLog(captcha.ChannelSMS, tpl)
			}
		}
		gen := captcha.NewNumericGenerator(sms.Length, sms.Expiry, nil)
		svc := captcha.NewMessageService(captcha.ChannelSMS, c, gen, d, sms.TemplateID, SMSTargetParam, cc.CodeParam, sms.ResendInterval)
		if err := reg.Register(svc, sms.SendURLs, sms.ValidateURLs); err != nil {
			return nil, err
		}
	}

	if em := cc.Email; !em.Disabled {
		d := opts.Email
		if d == nil {
			if cfg.SMTP.Host != "" {
				d = dispatch.NewMail(dispatch.MailConfig{
					Host:               cfg.SMTP.Host,
					Port:               cfg.SMTP.Port,
					Username:           cfg.SMTP.Username,
					Password:           cfg.SMTP.Password,
					From:               cfg.SMTP.From,
					TLSMode:            cfg.SMTP.TLS,
					InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
				}, tpl)
			} else {
				d = dispatch.NewLog(captcha.ChannelEmail, tpl)
			}
		}
		gen := captcha.NewNumericGenerator(em.Length, em.Expiry, nil)
		svc := captcha.NewMessageService(captcha.ChannelEmail, c, gen, d, em.TemplateID, EmailTargetParam, cc.CodeParam, em.ResendInterval)
		if err := reg.Register(svc, em.SendURLs, em.ValidateURLs); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func providerDescriptors(cfg *config.Config) []federation.ProviderDescriptor {
	ids := make([]string, 0, len(cfg.Federation.Providers))
	for id := range cfg.Federation.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]federation.ProviderDescriptor, 0, len(ids))
	for _, id := range ids {
		p := cfg.Federation.Providers[id]
		subject := p.SubjectAttribute
		if subject == "" {
			subject = vendors.SubjectAttribute(p.Provider)
		}
		out = append(out, federation.ProviderDescriptor{
			RegistrationID:   id,
			Provider:         p.Provider,
			AuthorizationURI: p.AuthorizationURI,
			TokenURI:         p.TokenURI,
			UserInfoURI:      p.UserInfoURI,
			IssuerURI:        p.IssuerURI,
			ClientID:         p.ClientID,
			ClientSecret:     p.ClientSecret,
			RedirectURI:      p.RedirectURI,
			Scopes:           p.Scopes,
			SubjectAttribute: subject,
			ClientAuthMethod: p.ClientAuthMethod,
			UsePKCE:          p.UsePKCE,
		})
	}
	return out
}

func buildLimiter(cfg *config.Config, c cache.Client) rate.Limiter {
	if rc, ok := c.(*cache.RedisClient); ok {
		return rate.NewRedisLimiter(rc.Raw(), "rl:", cfg.Rate.Send.Limit, cfg.Rate.Send.Window)
	}
	return rate.NewMemoryLimiter(cfg.Rate.Send.Limit, cfg.Rate.Send.Window)
}
