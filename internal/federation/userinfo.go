package federation

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/hellogate/internal/metrics"
	"github.com/dropDatabas3/hellogate/internal/observability/logger"
)

// FederatedIdentity es el resultado normalizado del login externo, antes de
// resolver el vínculo con una cuenta local. Solo vive en sesión.
type FederatedIdentity struct {
	RegistrationID string         `json:"registration_id"`
	Provider       string         `json:"provider"`
	SubjectID      string         `json:"subject_id"`
	RawAttributes  map[string]any `json:"raw_attributes"`
}

// UserInfoFetcher implementa el user-info de un vendor: arma su request y
// desenvuelve su envelope. Devuelve el mapa de atributos plano.
type UserInfoFetcher interface {
	FetchAttributes(ctx context.Context, client *http.Client, p *ProviderDescriptor, token *AccessTokenResponse) (map[string]any, error)
}

// UserInfoFetcherFunc adapta una función.
type UserInfoFetcherFunc func(ctx context.Context, client *http.Client, p *ProviderDescriptor, token *AccessTokenResponse) (map[string]any, error)

func (f UserInfoFetcherFunc) FetchAttributes(ctx context.Context, client *http.Client, p *ProviderDescriptor, token *AccessTokenResponse) (map[string]any, error) {
	return f(ctx, client, p, token)
}

// UserInfoBroker obtiene la identidad federada.
type UserInfoBroker struct {
	Providers   ProviderRegistry
	Customizers *Registry[UserInfoFetcher]
	HTTPClient  *http.Client
}

func (b *UserInfoBroker) FetchUser(ctx context.Context, token *AccessTokenResponse, registrationID string) (*FederatedIdentity, error) {
	p, ok := b.Providers.Lookup(registrationID)
	if !ok {
		return nil, ErrUnknownRegistration
	}
	start := time.Now()
	defer func() {
		metrics.ProviderLatency.WithLabelValues(p.Provider, "userinfo").Observe(time.Since(start).Seconds())
	}()

	var (
		attrs map[string]any
		err   error
	)
	if f, ok := b.Customizers.Resolve(p.Provider); ok {
		attrs, err = f.FetchAttributes(ctx, b.client(), p, token)
	} else {
		attrs, err = b.standardFetch(ctx, p, token)
	}
	if err != nil {
		var ue *UserInfoError
		if !errors.As(err, &ue) {
			err = &UserInfoError{RegistrationID: registrationID, ProviderErrorCode: "transport_error", ProviderErrorMessage: err.Error(), Err: err}
		} else if ue.RegistrationID == "" {
			ue.RegistrationID = registrationID
		}
		logger.From(ctx).Warn("user info fetch failed",
			logger.Component("federation"), logger.RegistrationID(registrationID), logger.Err(err))
		return nil, err
	}

	sub := AsString(attrs[p.SubjectAttribute])
	if sub == "" {
		return nil, &UserInfoError{
			RegistrationID:       registrationID,
			ProviderErrorCode:    "missing_subject",
			ProviderErrorMessage: "attribute " + p.SubjectAttribute + " not present",
		}
	}
	return &FederatedIdentity{
		RegistrationID: registrationID,
		Provider:       p.Provider,
		SubjectID:      sub,
		RawAttributes:  attrs,
	}, nil
}

func (b *UserInfoBroker) client() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

// standardFetch: GET userInfoUri con bearer; el objeto JSON top-level son los atributos.
func (b *UserInfoBroker) standardFetch(ctx context.Context, p *ProviderDescriptor, token *AccessTokenResponse) (map[string]any, error) {
	if p.UserInfoURI == "" {
		return nil, &UserInfoError{ProviderErrorCode: "misconfigured", ProviderErrorMessage: "user_info_uri not set"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURI, nil)
	if err != nil {
		return nil, err
	}
	typ := token.TokenType
	if typ == "" || strings.EqualFold(typ, "bearer") {
		typ = "Bearer"
	}
	req.Header.Set("Authorization", typ+" "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	var attrs map[string]any
	status, err := DoJSON(b.client(), req, &attrs)
	if err != nil {
		return nil, &UserInfoError{Status: status, ProviderErrorCode: "invalid_response", ProviderErrorMessage: err.Error(), Err: err}
	}
	if status < 200 || status > 299 {
		ue := &UserInfoError{Status: status, ProviderErrorCode: "http_error"}
		if code := AsString(attrs["error"]); code != "" {
			ue.ProviderErrorCode = code
		}
		ue.ProviderErrorMessage = firstString(attrs, "error_description", "message")
		return nil, ue
	}
	if attrs == nil {
		return nil, &UserInfoError{Status: status, ProviderErrorCode: "invalid_response", ProviderErrorMessage: "empty body"}
	}
	return attrs, nil
}
