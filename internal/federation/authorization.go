package federation

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// AuthorizationPathPrefix es el path que inicia la federación:
// /oauth2/authorization/{registrationId}.
const AuthorizationPathPrefix = "/oauth2/authorization/"

// AuthorizationRequest es el request authorization-code hacia el proveedor.
// Se guarda en sesión bajo su State hasta el callback.
type AuthorizationRequest struct {
	RegistrationID   string   `json:"registration_id"`
	Provider         string   `json:"provider"`
	AuthorizationURI string   `json:"authorization_uri"`
	ResponseType     string   `json:"response_type"`
	ClientID         string   `json:"client_id"`
	RedirectURI      string   `json:"redirect_uri"`
	Scopes           []string `json:"scopes,omitempty"`
	State            string   `json:"state"`
	Nonce            string   `json:"nonce,omitempty"`

	// PKCE: el verifier nunca sale en la URL.
	CodeVerifier  string `json:"code_verifier,omitempty"`
	CodeChallenge string `json:"code_challenge,omitempty"`

	// Ajustes de vendor (customizers).
	ClientIDParam  string     `json:"client_id_param,omitempty"` // default "client_id"
	ScopeSeparator string     `json:"scope_separator,omitempty"` // default " "
	Parameters     url.Values `json:"parameters,omitempty"`
	ParamOrder     []string   `json:"param_order,omitempty"`
	Fragment       string     `json:"fragment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Set agrega o pisa un parámetro de query.
func (a *AuthorizationRequest) Set(k, v string) {
	if a.Parameters == nil {
		a.Parameters = url.Values{}
	}
	a.Parameters.Set(k, v)
}

// HasScope indica si el scope fue pedido.
func (a *AuthorizationRequest) HasScope(s string) bool {
	return slices.Contains(a.Scopes, s)
}

// URL renderiza el redirect. Los parámetros listados en ParamOrder van
// primero y en ese orden; el resto ordenado alfabéticamente.
func (a *AuthorizationRequest) URL() string {
	params := url.Values{}
	params.Set("response_type", a.ResponseType)
	cid := a.ClientIDParam
	if cid == "" {
		cid = "client_id"
	}
	params.Set(cid, a.ClientID)
	params.Set("redirect_uri", a.RedirectURI)
	if len(a.Scopes) > 0 {
		sep := a.ScopeSeparator
		if sep == "" {
			sep = " "
		}
		params.Set("scope", strings.Join(a.Scopes, sep))
	}
	params.Set("state", a.State)
	if a.Nonce != "" {
		params.Set("nonce", a.Nonce)
	}
	if a.CodeChallenge != "" {
		params.Set("code_challenge", a.CodeChallenge)
		params.Set("code_challenge_method", "S256")
	}
	for k, vs := range a.Parameters {
		params[k] = vs
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if !slices.Contains(a.ParamOrder, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	ordered := make([]string, 0, len(params))
	for _, k := range a.ParamOrder {
		if _, ok := params[k]; ok {
			ordered = append(ordered, k)
		}
	}
	ordered = append(ordered, keys...)

	var sb strings.Builder
	sb.WriteString(a.AuthorizationURI)
	if strings.Contains(a.AuthorizationURI, "?") {
		sb.WriteByte('&')
	} else {
		sb.WriteByte('?')
	}
	first := true
	for _, k := range ordered {
		for _, v := range params[k] {
			if !first {
				sb.WriteByte('&')
			}
			first = false
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	if a.Fragment != "" {
		sb.WriteByte('#')
		sb.WriteString(a.Fragment)
	}
	return sb.String()
}

// AuthorizationRequestCustomizer modifica el request estándar para un vendor.
type AuthorizationRequestCustomizer func(req *AuthorizationRequest, p *ProviderDescriptor)

// AuthorizationRequestBroker arma el AuthorizationRequest de una registración.
type AuthorizationRequestBroker struct {
	Providers   ProviderRegistry
	Customizers *Registry[AuthorizationRequestCustomizer]
	State       *StateCodec

	// BaseURL para expandir {baseUrl}; vacío = se deriva del request.
	BaseURL string
	Now     func() time.Time
}

// Resolve extrae el registrationId de /oauth2/authorization/{registrationId}
// y arma el request. ErrUnknownRegistration si el path no matchea o el id
// no está configurado.
func (b *AuthorizationRequestBroker) Resolve(r *http.Request) (*AuthorizationRequest, error) {
	id, ok := RegistrationIDFromPath(r.URL.Path, AuthorizationPathPrefix)
	if !ok {
		return nil, ErrUnknownRegistration
	}
	return b.ResolveRegistration(r, id)
}

// ResolveRegistration arma el request para un registrationId ya conocido.
func (b *AuthorizationRequestBroker) ResolveRegistration(r *http.Request, registrationID string) (*AuthorizationRequest, error) {
	p, ok := b.Providers.Lookup(registrationID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegistration, registrationID)
	}

	state, err := b.State.Issue(registrationID)
	if err != nil {
		return nil, err
	}

	req := &AuthorizationRequest{
		RegistrationID:   p.RegistrationID,
		Provider:         p.Provider,
		AuthorizationURI: p.AuthorizationURI,
		ResponseType:     "code",
		ClientID:         p.ClientID,
		RedirectURI:      ExpandRedirectURI(p.RedirectURI, b.baseURL(r), p.RegistrationID),
		Scopes:           slices.Clone(p.Scopes),
		State:            state,
		CreatedAt:        b.now(),
	}
	if req.HasScope("openid") {
		if req.Nonce, err = randomToken(); err != nil {
			return nil, err
		}
	}
	if p.UsePKCE {
		req.CodeVerifier = oauth2.GenerateVerifier()
		req.CodeChallenge = oauth2.S256ChallengeFromVerifier(req.CodeVerifier)
	}

	if c, ok := b.Customizers.Resolve(p.Provider); ok {
		c(req, p)
	}
	return req, nil
}

func (b *AuthorizationRequestBroker) baseURL(r *http.Request) string {
	if b.BaseURL != "" {
		return strings.TrimRight(b.BaseURL, "/")
	}
	return RequestBaseURL(r)
}

func (b *AuthorizationRequestBroker) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// RegistrationIDFromPath extrae el segmento que sigue a prefix.
func RegistrationIDFromPath(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(path, prefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// ExpandRedirectURI reemplaza {baseUrl}, {registrationId} y {action}.
func ExpandRedirectURI(tpl, baseURL, registrationID string) string {
	return strings.NewReplacer(
		"{baseUrl}", baseURL,
		"{registrationId}", registrationID,
		"{action}", "login",
	).Replace(tpl)
}

// RequestBaseURL deriva scheme://host del request (respeta X-Forwarded-*).
func RequestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	host := r.Host
	if fh := r.Header.Get("X-Forwarded-Host"); fh != "" {
		host = fh
	}
	return scheme + "://" + host
}

func randomToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("federation: random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
