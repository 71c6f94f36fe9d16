package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/hellogate/internal/security/secretbox"
	"github.com/dropDatabas3/hellogate/internal/validation"
)

// Channel agrupa la configuración de un canal de captcha (image | sms | email).
// Los campos de imagen solo aplican al canal image; TemplateID solo a sms/email.
type Channel struct {
	Disabled       bool          `yaml:"disabled"`
	Length         int           `yaml:"length"`
	Expiry         time.Duration `yaml:"expiry"`
	ResendInterval time.Duration `yaml:"resend_interval"`
	SendURLs       []string      `yaml:"send_urls"`
	ValidateURLs   []string      `yaml:"validate_urls"`

	// image
	Charset    string `yaml:"charset"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	NoiseLines int    `yaml:"noise_lines"`
	FontSize   int    `yaml:"font_size"`

	// sms / email
	TemplateID string `yaml:"template_id"`
}

// Provider describe una registración de federación. La key del mapa
// Federation.Providers es el registrationId.
type Provider struct {
	Provider         string   `yaml:"provider"` // nombre lógico del vendor (feishu, wechat, github, ...)
	ClientID         string   `yaml:"client_id"`
	ClientSecret     string   `yaml:"client_secret"`
	AuthorizationURI string   `yaml:"authorization_uri"`
	TokenURI         string   `yaml:"token_uri"`
	UserInfoURI      string   `yaml:"user_info_uri"`
	IssuerURI        string   `yaml:"issuer_uri"`
	RedirectURI      string   `yaml:"redirect_uri"` // template, default {baseUrl}/login/oauth2/code/{registrationId}
	Scopes           []string `yaml:"scopes"`
	SubjectAttribute string   `yaml:"subject_attribute"` // vacío: default del vendor o "sub"
	ClientAuthMethod string   `yaml:"client_auth_method"` // client_secret_basic | client_secret_post
	UsePKCE          bool     `yaml:"use_pkce"`
}

// AccountSeed cuenta local precargada en el store en memoria.
type AccountSeed struct {
	ID           string `yaml:"id"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // argon2id (PHC) o bcrypt
	Mobile       string `yaml:"mobile"`
	Email        string `yaml:"email"`
}

type Config struct {
	App struct {
		// dev | staging | prod
		Env     string `yaml:"env"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"app"`

	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			DB       int    `yaml:"db"`
			Password string `yaml:"password"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL time.Duration `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	// Storage: cuentas locales y vínculos sociales.
	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns int32 `yaml:"max_conns"`
			Migrate  bool  `yaml:"migrate"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Session struct {
		CookieName string        `yaml:"cookie_name"`
		Domain     string        `yaml:"domain"`
		SameSite   string        `yaml:"samesite"`
		Secure     bool          `yaml:"secure"`
		TTL        time.Duration `yaml:"ttl"`
	} `yaml:"session"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Send    struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"send"`
	} `yaml:"rate"`

	Captcha struct {
		KeyParam  string  `yaml:"key_param"`
		CodeParam string  `yaml:"code_param"`
		TypeParam string  `yaml:"type_param"`
		Image     Channel `yaml:"image"`
		SMS       Channel `yaml:"sms"`
		Email     Channel `yaml:"email"`
	} `yaml:"captcha"`

	// SMS gateway HTTP (driver "log" solo loguea el código; dev)
	SMS struct {
		Driver   string        `yaml:"driver"` // http | log
		Endpoint string        `yaml:"endpoint"`
		APIKey   string        `yaml:"api_key"`
		Sender   string        `yaml:"sender"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"sms"`

	// SMTP para el canal email; sin host se usa el dispatcher "log".
	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	// ───────── Federation ─────────
	Federation struct {
		StateSecret     string              `yaml:"state_secret"`
		StateTTL        time.Duration       `yaml:"state_ttl"`
		HTTPTimeout     time.Duration       `yaml:"http_timeout"`
		Discovery       bool                `yaml:"discovery"` // OIDC discovery para providers con issuer_uri
		SuccessRedirect string              `yaml:"success_redirect"`
		BindingRedirect string              `yaml:"binding_redirect"`
		Providers       map[string]Provider `yaml:"providers"`
	} `yaml:"federation"`

	Accounts []AccountSeed `yaml:"accounts"`
}

const DefaultRedirectURITemplate = "{baseUrl}/login/oauth2/code/{registrationId}"

// Load lee el YAML (si path != ""), aplica defaults, overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.openSecrets(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default devuelve una config con todos los defaults (sin YAML ni env).
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.BaseURL == "" {
		c.App.BaseURL = "http://localhost:8080"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == 0 {
		c.Cache.Memory.DefaultTTL = 2 * time.Minute
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}

	// Session defaults
	if c.Session.CookieName == "" {
		c.Session.CookieName = "hellogate_sid"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 30 * time.Minute
	}

	if c.Rate.Send.Limit == 0 {
		c.Rate.Send.Limit = 10
	}
	if c.Rate.Send.Window == 0 {
		c.Rate.Send.Window = time.Minute
	}

	// Captcha defaults
	if c.Captcha.KeyParam == "" {
		c.Captcha.KeyParam = "captcha_key"
	}
	if c.Captcha.CodeParam == "" {
		c.Captcha.CodeParam = "captcha_code"
	}
	if c.Captcha.TypeParam == "" {
		c.Captcha.TypeParam = "captcha_type"
	}
	img := &c.Captcha.Image
	if img.Length == 0 {
		img.Length = 4
	}
	if img.Expiry == 0 {
		img.Expiry = 2 * time.Minute
	}
	if img.Charset == "" {
		img.Charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	}
	if img.Width == 0 {
		img.Width = 120
	}
	if img.Height == 0 {
		img.Height = 40
	}
	if img.NoiseLines == 0 {
		img.NoiseLines = 4
	}
	if img.FontSize == 0 {
		img.FontSize = 26
	}
	if len(img.SendURLs) == 0 {
		img.SendURLs = []string{"/captcha/image"}
	}
	if len(img.ValidateURLs) == 0 {
		img.ValidateURLs = []string{"/login"}
	}

	sms := &c.Captcha.SMS
	if sms.Length == 0 {
		sms.Length = 6
	}
	if sms.Expiry == 0 {
		sms.Expiry = 60 * time.Second
	}
	if sms.ResendInterval == 0 {
		sms.ResendInterval = 60 * time.Second
	}
	if sms.TemplateID == "" {
		sms.TemplateID = "captcha"
	}
	if len(sms.SendURLs) == 0 {
		sms.SendURLs = []string{"/captcha/sms"}
	}
	if len(sms.ValidateURLs) == 0 {
		sms.ValidateURLs = []string{"/login/mobile"}
	}

	em := &c.Captcha.Email
	if em.Length == 0 {
		em.Length = 6
	}
	if em.Expiry == 0 {
		em.Expiry = 5 * time.Minute
	}
	if em.ResendInterval == 0 {
		em.ResendInterval = 60 * time.Second
	}
	if em.TemplateID == "" {
		em.TemplateID = "captcha"
	}
	if len(em.SendURLs) == 0 {
		em.SendURLs = []string{"/captcha/email"}
	}
	if len(em.ValidateURLs) == 0 {
		em.ValidateURLs = []string{"/login/email"}
	}

	if c.SMS.Driver == "" {
		c.SMS.Driver = "log"
	}
	if c.SMS.Timeout == 0 {
		c.SMS.Timeout = 5 * time.Second
	}
	// SMTP defaults
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}

	// Federation defaults
	if c.Federation.StateTTL == 0 {
		c.Federation.StateTTL = 10 * time.Minute
	}
	if c.Federation.HTTPTimeout == 0 {
		c.Federation.HTTPTimeout = 10 * time.Second
	}
	if c.Federation.Providers == nil {
		c.Federation.Providers = map[string]Provider{}
	}
	for id, p := range c.Federation.Providers {
		if p.Provider == "" {
			p.Provider = id
		}
		if p.RedirectURI == "" {
			p.RedirectURI = DefaultRedirectURITemplate
		}
		if p.ClientAuthMethod == "" {
			p.ClientAuthMethod = "client_secret_basic"
		}
		c.Federation.Providers[id] = p
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// channelEnv aplica CAPTCHA_<NAME>_* sobre un canal.
func channelEnv(name string, ch *Channel) {
	p := "CAPTCHA_" + name + "_"
	if v, ok := getEnvBool(p + "ENABLED"); ok {
		ch.Disabled = !v
	}
	if v, ok := getEnvInt(p + "LENGTH"); ok {
		ch.Length = v
	}
	if v, ok := getEnvDur(p + "EXPIRY"); ok {
		ch.Expiry = v
	}
	if v, ok := getEnvDur(p + "RESEND_INTERVAL"); ok {
		ch.ResendInterval = v
	}
	if v, ok := getEnvCSV(p + "SEND_URLS"); ok {
		ch.SendURLs = v
	}
	if v, ok := getEnvCSV(p + "VALIDATE_URLS"); ok {
		ch.ValidateURLs = v
	}
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("APP_BASE_URL"); ok {
		c.App.BaseURL = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvBool("STORAGE_MIGRATE"); ok {
		c.Storage.Postgres.Migrate = v
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_COOKIE_NAME"); ok {
		c.Session.CookieName = v
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvDur("SESSION_TTL"); ok {
		c.Session.TTL = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_SEND_LIMIT"); ok {
		c.Rate.Send.Limit = v
	}
	if v, ok := getEnvDur("RATE_SEND_WINDOW"); ok {
		c.Rate.Send.Window = v
	}

	// CAPTCHA
	channelEnv("IMAGE", &c.Captcha.Image)
	channelEnv("SMS", &c.Captcha.SMS)
	channelEnv("EMAIL", &c.Captcha.Email)

	// SMS gateway
	if v, ok := getEnvStr("SMS_DRIVER"); ok {
		c.SMS.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SMS_ENDPOINT"); ok {
		c.SMS.Endpoint = v
	}
	if v, ok := getEnvStr("SMS_API_KEY"); ok {
		c.SMS.APIKey = v
	}
	if v, ok := getEnvDur("SMS_TIMEOUT"); ok {
		c.SMS.Timeout = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}

	// FEDERATION
	if v, ok := getEnvStr("FEDERATION_STATE_SECRET"); ok {
		c.Federation.StateSecret = v
	}
	if v, ok := getEnvDur("FEDERATION_HTTP_TIMEOUT"); ok {
		c.Federation.HTTPTimeout = v
	}
	// Secrets por provider: FEDERATION_<ID>_CLIENT_SECRET (ID en mayúsculas, '-' -> '_')
	for id, p := range c.Federation.Providers {
		envID := strings.ToUpper(strings.ReplaceAll(id, "-", "_"))
		if v, ok := getEnvStr("FEDERATION_" + envID + "_CLIENT_ID"); ok {
			p.ClientID = v
		}
		if v, ok := getEnvStr("FEDERATION_" + envID + "_CLIENT_SECRET"); ok {
			p.ClientSecret = v
		}
		c.Federation.Providers[id] = p
	}
}

// Validate rechaza combinaciones inconsistentes.
func (c *Config) Validate() error {
	var errs []error

	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			errs = append(errs, errors.New("cache.redis.addr is required when cache.kind=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind: unknown %q", c.Cache.Kind))
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required when storage.driver=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown %q", c.Storage.Driver))
	}

	for name, ch := range map[string]Channel{"image": c.Captcha.Image, "sms": c.Captcha.SMS, "email": c.Captcha.Email} {
		if ch.Disabled {
			continue
		}
		if ch.Length <= 0 {
			errs = append(errs, fmt.Errorf("captcha.%s.length must be > 0", name))
		}
		if ch.Expiry <= 0 {
			errs = append(errs, fmt.Errorf("captcha.%s.expiry must be > 0", name))
		}
		if ch.ResendInterval < 0 {
			errs = append(errs, fmt.Errorf("captcha.%s.resend_interval must be >= 0", name))
		}
	}
	if !c.Captcha.Image.Disabled && c.Captcha.Image.Charset == "" {
		errs = append(errs, errors.New("captcha.image.charset must not be empty"))
	}

	if !c.Captcha.SMS.Disabled {
		switch c.SMS.Driver {
		case "log":
		case "http":
			if c.SMS.Endpoint == "" {
				errs = append(errs, errors.New("sms.endpoint is required when sms.driver=http"))
			}
		default:
			errs = append(errs, fmt.Errorf("sms.driver: unknown %q", c.SMS.Driver))
		}
	}

	// llamadas salientes siempre con timeout (0 en http.Client = sin límite)
	if c.Federation.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("federation.http_timeout must be > 0"))
	}
	if c.SMS.Timeout <= 0 {
		errs = append(errs, errors.New("sms.timeout must be > 0"))
	}

	if len(c.Federation.Providers) > 0 && len(c.Federation.StateSecret) < 16 {
		errs = append(errs, errors.New("federation.state_secret must be at least 16 bytes"))
	}
	ids := make([]string, 0, len(c.Federation.Providers))
	for id := range c.Federation.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := c.Federation.Providers[id]
		if !validation.ValidRegistrationID(id) {
			errs = append(errs, fmt.Errorf("federation.providers: invalid registration id %q", id))
		}
		if p.ClientID == "" {
			errs = append(errs, fmt.Errorf("federation.providers.%s.client_id is required", id))
		}
		if err := validation.Scopes(p.Scopes); err != nil {
			errs = append(errs, fmt.Errorf("federation.providers.%s.scopes: %w", id, err))
		}
		if p.IssuerURI == "" || !c.Federation.Discovery {
			if p.AuthorizationURI == "" || p.TokenURI == "" {
				errs = append(errs, fmt.Errorf("federation.providers.%s: authorization_uri and token_uri are required without discovery", id))
			}
		}
		switch p.ClientAuthMethod {
		case "client_secret_basic", "client_secret_post":
		default:
			errs = append(errs, fmt.Errorf("federation.providers.%s.client_auth_method: unknown %q", id, p.ClientAuthMethod))
		}
	}

	return errors.Join(errs...)
}

// openSecrets descifra los valores enc:... (ver secretbox).
func (c *Config) openSecrets() error {
	vals := []*string{
		&c.Storage.DSN,
		&c.Cache.Redis.Password,
		&c.SMS.APIKey,
		&c.SMTP.Password,
		&c.Federation.StateSecret,
	}
	secrets := make(map[string]*string, len(c.Federation.Providers))
	for id, p := range c.Federation.Providers {
		s := p.ClientSecret
		secrets[id] = &s
		vals = append(vals, &s)
	}
	if err := secretbox.OpenAll(secretbox.FromEnv, vals...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for id, s := range secrets {
		p := c.Federation.Providers[id]
		p.ClientSecret = *s
		c.Federation.Providers[id] = p
	}
	return nil
}

// IsProd indica si corremos en producción.
func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }
