package vendors

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/hellogate/internal/federation"
)

// ============================================================================
// Feishu / Lark
// ============================================================================

// Feishu envuelve las respuestas en {code, msg, data}. Según la versión de
// la API el éxito es code 0 o 200.
type feishuEnvelope struct {
	Code any            `json:"code"`
	Msg  string         `json:"msg"`
	Data map[string]any `json:"data"`
}

func (e feishuEnvelope) ok() bool {
	if e.Code == nil {
		return true
	}
	n, ok := federation.AsInt64(e.Code)
	return ok && (n == 0 || n == 200)
}

func (e feishuEnvelope) code() string {
	return federation.AsString(e.Code)
}

// FeishuTokenExchanger: POST JSON al token endpoint.
type FeishuTokenExchanger struct{}

func (FeishuTokenExchanger) Exchange(ctx context.Context, client *http.Client, g federation.AuthorizationCodeGrant) (*federation.AccessTokenResponse, error) {
	p := g.Provider
	body := map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     p.ClientID,
		"client_secret": p.ClientSecret,
		"code":          g.Code,
		"redirect_uri":  g.RedirectURI,
	}
	if g.CodeVerifier != "" {
		body["code_verifier"] = g.CodeVerifier
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURI, nil)
	if err != nil {
		return nil, err
	}
	if req, err = federation.NewJSONRequest(req, body); err != nil {
		return nil, err
	}

	var raw map[string]any
	status, err := federation.DoJSON(client, req, &raw)
	if err != nil {
		return nil, tokenError("invalid_response", err.Error(), status, err)
	}
	env := envelopeOf(raw)
	if !env.ok() || status < 200 || status > 299 {
		return nil, tokenError(env.code(), env.Msg, status, nil)
	}
	// v1 trae el token dentro de data; v2 lo trae plano
	fields := env.Data
	if fields == nil {
		fields = raw
	}
	return accessTokenFrom(fields), nil
}

// FeishuUserInfo: GET user_info con bearer, atributos en data.
type FeishuUserInfo struct{}

func (FeishuUserInfo) FetchAttributes(ctx context.Context, client *http.Client, p *federation.ProviderDescriptor, t *federation.AccessTokenResponse) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURI, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.AccessToken)
	req.Header.Set("Accept", "application/json")

	var raw map[string]any
	status, err := federation.DoJSON(client, req, &raw)
	if err != nil {
		return nil, userInfoError("invalid_response", err.Error(), status, err)
	}
	env := envelopeOf(raw)
	if !env.ok() || status < 200 || status > 299 {
		return nil, userInfoError(env.code(), env.Msg, status, nil)
	}
	if env.Data == nil {
		return nil, userInfoError("invalid_response", "missing data", status, nil)
	}
	return env.Data, nil
}

func envelopeOf(raw map[string]any) feishuEnvelope {
	env := feishuEnvelope{Code: raw["code"], Msg: federation.AsString(raw["msg"])}
	if d, ok := raw["data"].(map[string]any); ok {
		env.Data = d
	}
	return env
}

// accessTokenFrom normaliza un mapa snake_case al AccessTokenResponse. Lo
// que no es campo conocido va a AdditionalParameters.
func accessTokenFrom(m map[string]any) *federation.AccessTokenResponse {
	out := &federation.AccessTokenResponse{AdditionalParameters: map[string]any{}}
	for k, v := range m {
		switch k {
		case "access_token":
			out.AccessToken = federation.AsString(v)
		case "token_type":
			out.TokenType = federation.AsString(v)
		case "expires_in":
			out.ExpiresIn, _ = federation.AsInt64(v)
		case "refresh_token":
			out.RefreshToken = federation.AsString(v)
		case "scope":
			out.Scope = federation.AsString(v)
		case "code", "msg":
		default:
			out.AdditionalParameters[k] = v
		}
	}
	return out
}

