package federation

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/hellogate/internal/metrics"
	"github.com/dropDatabas3/hellogate/internal/observability/logger"
	"golang.org/x/oauth2"
)

// AuthorizationCodeGrant es lo que llega al callback más lo guardado en sesión.
type AuthorizationCodeGrant struct {
	Provider     *ProviderDescriptor
	Code         string
	RedirectURI  string
	CodeVerifier string
	State        string
}

// AccessTokenResponse normalizado. TokenType vacío se completa con "Bearer".
type AccessTokenResponse struct {
	AccessToken          string         `json:"access_token"`
	TokenType            string         `json:"token_type"`
	ExpiresIn            int64          `json:"expires_in"`
	Scope                string         `json:"scope,omitempty"`
	RefreshToken         string         `json:"refresh_token,omitempty"`
	AdditionalParameters map[string]any `json:"additional_parameters,omitempty"`
}

// Param devuelve un parámetro adicional como string.
func (t *AccessTokenResponse) Param(k string) string {
	if t == nil || t.AdditionalParameters == nil {
		return ""
	}
	return AsString(t.AdditionalParameters[k])
}

// TokenExchanger implementa el canje de un vendor. client ya trae el timeout.
type TokenExchanger interface {
	Exchange(ctx context.Context, client *http.Client, grant AuthorizationCodeGrant) (*AccessTokenResponse, error)
}

// TokenExchangerFunc adapta una función.
type TokenExchangerFunc func(ctx context.Context, client *http.Client, grant AuthorizationCodeGrant) (*AccessTokenResponse, error)

func (f TokenExchangerFunc) Exchange(ctx context.Context, client *http.Client, grant AuthorizationCodeGrant) (*AccessTokenResponse, error) {
	return f(ctx, client, grant)
}

// TokenExchangeBroker canjea el code. Sin customizer usa el POST estándar
// (golang.org/x/oauth2) con el método de autenticación configurado, sin
// auto-detección ni reintentos.
type TokenExchangeBroker struct {
	Customizers *Registry[TokenExchanger]
	HTTPClient  *http.Client
}

func (b *TokenExchangeBroker) Exchange(ctx context.Context, grant AuthorizationCodeGrant) (*AccessTokenResponse, error) {
	p := grant.Provider
	if p == nil {
		return nil, ErrUnknownRegistration
	}
	start := time.Now()
	defer func() {
		metrics.ProviderLatency.WithLabelValues(p.Provider, "token").Observe(time.Since(start).Seconds())
	}()

	var (
		tok *AccessTokenResponse
		err error
	)
	if ex, ok := b.Customizers.Resolve(p.Provider); ok {
		tok, err = ex.Exchange(ctx, b.client(), grant)
	} else {
		tok, err = b.standardExchange(ctx, grant)
	}
	if err != nil {
		var te *TokenExchangeError
		if !errors.As(err, &te) {
			err = &TokenExchangeError{RegistrationID: p.RegistrationID, ProviderErrorCode: "transport_error", ProviderErrorMessage: err.Error(), Err: err}
		} else if te.RegistrationID == "" {
			te.RegistrationID = p.RegistrationID
		}
		logger.From(ctx).Warn("token exchange failed",
			logger.Component("federation"), logger.RegistrationID(p.RegistrationID), logger.Err(err))
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, &TokenExchangeError{RegistrationID: p.RegistrationID, ProviderErrorCode: "invalid_response", ProviderErrorMessage: "missing access_token"}
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	// RFC 6749 §5.1: scope omitido = el scope pedido
	if tok.Scope == "" {
		tok.Scope = strings.Join(p.Scopes, " ")
	}
	return tok, nil
}

func (b *TokenExchangeBroker) client() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

func (b *TokenExchangeBroker) standardExchange(ctx context.Context, grant AuthorizationCodeGrant) (*AccessTokenResponse, error) {
	p := grant.Provider
	style := oauth2.AuthStyleInHeader
	if p.ClientAuthMethod == ClientSecretPost {
		style = oauth2.AuthStyleInParams
	}
	cfg := &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  grant.RedirectURI,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthorizationURI,
			TokenURL:  p.TokenURI,
			AuthStyle: style,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.client())
	var opts []oauth2.AuthCodeOption
	if grant.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(grant.CodeVerifier))
	}

	t, err := cfg.Exchange(ctx, grant.Code, opts...)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			te := &TokenExchangeError{
				ProviderErrorCode:    re.ErrorCode,
				ProviderErrorMessage: re.ErrorDescription,
				Err:                  err,
			}
			if re.Response != nil {
				te.Status = re.Response.StatusCode
			}
			if te.ProviderErrorCode == "" {
				te.ProviderErrorCode = "http_error"
				te.ProviderErrorMessage = truncate(string(re.Body), 256)
			}
			return nil, te
		}
		return nil, err
	}

	out := &AccessTokenResponse{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    t.ExpiresIn,
		Scope:        AsString(t.Extra("scope")),
	}
	if out.ExpiresIn == 0 && !t.Expiry.IsZero() {
		out.ExpiresIn = int64(time.Until(t.Expiry).Round(time.Second) / time.Second)
	}
	if idt := AsString(t.Extra("id_token")); idt != "" {
		out.AdditionalParameters = map[string]any{"id_token": idt}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
