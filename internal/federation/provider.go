package federation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dropDatabas3/hellogate/internal/observability/logger"
)

// Métodos de autenticación del cliente en el token endpoint.
const (
	ClientSecretBasic = "client_secret_basic"
	ClientSecretPost  = "client_secret_post"
)

// ProviderDescriptor es la configuración de una registración. Inmutable
// una vez cargada.
type ProviderDescriptor struct {
	RegistrationID   string
	Provider         string // nombre lógico del vendor; clave de los customizers
	AuthorizationURI string
	TokenURI         string
	UserInfoURI      string
	IssuerURI        string
	ClientID         string
	ClientSecret     string
	RedirectURI      string // template: {baseUrl}, {registrationId}, {action}
	Scopes           []string
	SubjectAttribute string
	ClientAuthMethod string
	UsePKCE          bool
}

// ProviderRegistry resuelve registrationId -> descriptor.
type ProviderRegistry interface {
	Lookup(registrationID string) (*ProviderDescriptor, bool)
}

// StaticProviderRegistry es un ProviderRegistry en memoria armado desde config.
type StaticProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]*ProviderDescriptor
	oidc      map[string]*oidc.Provider
}

func NewStaticProviderRegistry(descs ...ProviderDescriptor) *StaticProviderRegistry {
	r := &StaticProviderRegistry{
		providers: make(map[string]*ProviderDescriptor, len(descs)),
		oidc:      map[string]*oidc.Provider{},
	}
	for i := range descs {
		d := descs[i]
		if d.Provider == "" {
			d.Provider = d.RegistrationID
		}
		if d.SubjectAttribute == "" {
			d.SubjectAttribute = "sub"
		}
		if d.ClientAuthMethod == "" {
			d.ClientAuthMethod = ClientSecretBasic
		}
		r.providers[d.RegistrationID] = &d
	}
	return r
}

func (r *StaticProviderRegistry) Lookup(registrationID string) (*ProviderDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.providers[registrationID]
	if !ok {
		return nil, false
	}
	cp := *d
	return &cp, true
}

// IDs lista los registrationIds configurados, ordenados.
func (r *StaticProviderRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Discover completa endpoints faltantes vía OIDC discovery
// ({issuer}/.well-known/openid-configuration) para cada registración con
// IssuerURI. Corre una vez al arrancar; un issuer caído es error.
func (r *StaticProviderRegistry) Discover(ctx context.Context, client *http.Client) error {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	var errs []error
	for _, id := range r.IDs() {
		r.mu.RLock()
		d := *r.providers[id]
		r.mu.RUnlock()
		if d.IssuerURI == "" {
			continue
		}

		p, err := oidc.NewProvider(ctx, d.IssuerURI)
		if err != nil {
			errs = append(errs, fmt.Errorf("federation: discovery %s: %w", id, err))
			continue
		}
		ep := p.Endpoint()
		if d.AuthorizationURI == "" {
			d.AuthorizationURI = ep.AuthURL
		}
		if d.TokenURI == "" {
			d.TokenURI = ep.TokenURL
		}
		if d.UserInfoURI == "" {
			d.UserInfoURI = p.UserInfoEndpoint()
		}

		r.mu.Lock()
		r.providers[id] = &d
		r.oidc[id] = p
		r.mu.Unlock()

		logger.L().Info("oidc discovery ok",
			logger.Component("federation"), logger.RegistrationID(id), logger.String("issuer", d.IssuerURI))
	}
	return errors.Join(errs...)
}

// VerifyIDToken valida firma, audiencia y nonce de un id_token. Solo aplica
// a registraciones descubiertas; para el resto devuelve (false, nil).
func (r *StaticProviderRegistry) VerifyIDToken(ctx context.Context, registrationID, rawIDToken, nonce string) (bool, error) {
	r.mu.RLock()
	p, ok := r.oidc[registrationID]
	d := r.providers[registrationID]
	r.mu.RUnlock()
	if !ok || d == nil {
		return false, nil
	}

	tok, err := p.Verifier(&oidc.Config{ClientID: d.ClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return true, &UserInfoError{RegistrationID: registrationID, ProviderErrorCode: "invalid_id_token", Err: err}
	}
	if nonce != "" && tok.Nonce != nonce {
		return true, &UserInfoError{RegistrationID: registrationID, ProviderErrorCode: "invalid_nonce", ProviderErrorMessage: "nonce mismatch"}
	}
	return true, nil
}
