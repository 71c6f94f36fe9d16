package vendors

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/hellogate/internal/federation"
)

// ============================================================================
// DingTalk
// ============================================================================

// DingTalkAuthorization fuerza la pantalla de consentimiento.
func DingTalkAuthorization(req *federation.AuthorizationRequest, _ *federation.ProviderDescriptor) {
	req.Set("prompt", "consent")
}

// DingTalkTokenExchanger: POST JSON camelCase.
// Respuesta: {accessToken, expireIn, refreshToken, corpId}.
type DingTalkTokenExchanger struct{}

func (DingTalkTokenExchanger) Exchange(ctx context.Context, client *http.Client, g federation.AuthorizationCodeGrant) (*federation.AccessTokenResponse, error) {
	p := g.Provider
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURI, nil)
	if err != nil {
		return nil, err
	}
	req, err = federation.NewJSONRequest(req, map[string]string{
		"clientId":     p.ClientID,
		"clientSecret": p.ClientSecret,
		"code":         g.Code,
		"grantType":    "authorization_code",
	})
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	status, err := federation.DoJSON(client, req, &raw)
	if err != nil {
		return nil, tokenError("invalid_response", err.Error(), status, err)
	}
	if status < 200 || status > 299 {
		return nil, tokenError(dingtalkCode(raw), federation.AsString(raw["message"]), status, nil)
	}

	out := &federation.AccessTokenResponse{
		AccessToken:          federation.AsString(raw["accessToken"]),
		RefreshToken:         federation.AsString(raw["refreshToken"]),
		AdditionalParameters: map[string]any{},
	}
	out.ExpiresIn, _ = federation.AsInt64(raw["expireIn"])
	if corp := federation.AsString(raw["corpId"]); corp != "" {
		out.AdditionalParameters["corpId"] = corp
	}
	return out, nil
}

// DingTalkUserInfo: GET contact/users/me con el token en
// x-acs-dingtalk-access-token.
type DingTalkUserInfo struct{}

func (DingTalkUserInfo) FetchAttributes(ctx context.Context, client *http.Client, p *federation.ProviderDescriptor, t *federation.AccessTokenResponse) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURI, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-acs-dingtalk-access-token", t.AccessToken)
	req.Header.Set("Accept", "application/json")

	var raw map[string]any
	status, err := federation.DoJSON(client, req, &raw)
	if err != nil {
		return nil, userInfoError("invalid_response", err.Error(), status, err)
	}
	if status < 200 || status > 299 {
		return nil, userInfoError(dingtalkCode(raw), federation.AsString(raw["message"]), status, nil)
	}
	return raw, nil
}

func dingtalkCode(raw map[string]any) string {
	if c := federation.AsString(raw["code"]); c != "" {
		return c
	}
	return "http_error"
}
