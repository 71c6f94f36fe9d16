package vendors

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dropDatabas3/hellogate/internal/federation"
)

// ============================================================================
// WeChat (open platform, QR login)
// ============================================================================

// WeChatAuthorization: appid en vez de client_id, orden fijo de parámetros
// y fragmento #wechat_redirect. WeChat rechaza el request si el orden cambia.
func WeChatAuthorization(req *federation.AuthorizationRequest, _ *federation.ProviderDescriptor) {
	req.ClientIDParam = "appid"
	req.ScopeSeparator = ","
	req.ParamOrder = []string{"appid", "redirect_uri", "response_type", "scope", "state"}
	req.Fragment = "wechat_redirect"
}

type wechatError struct {
	code string
	msg  string
}

func wechatErrorOf(m map[string]any) (wechatError, bool) {
	n, ok := federation.AsInt64(m["errcode"])
	if !ok || n == 0 {
		return wechatError{}, false
	}
	return wechatError{code: federation.AsString(m["errcode"]), msg: federation.AsString(m["errmsg"])}, true
}

// WeChatTokenExchanger: GET con appid/secret/code en la query. La respuesta
// trae openid y unionid junto al token.
type WeChatTokenExchanger struct{}

func (WeChatTokenExchanger) Exchange(ctx context.Context, client *http.Client, g federation.AuthorizationCodeGrant) (*federation.AccessTokenResponse, error) {
	p := g.Provider
	u, err := url.Parse(p.TokenURI)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("appid", p.ClientID)
	q.Set("secret", p.ClientSecret)
	q.Set("code", g.Code)
	q.Set("grant_type", "authorization_code")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	status, err := federation.DoJSON(client, req, &raw)
	if err != nil {
		return nil, tokenError("invalid_response", err.Error(), status, err)
	}
	if we, bad := wechatErrorOf(raw); bad {
		return nil, tokenError(we.code, we.msg, status, nil)
	}
	if status < 200 || status > 299 {
		return nil, tokenError("http_error", "", status, nil)
	}
	return accessTokenFrom(raw), nil
}

// WeChatUserInfo: GET userinfo?access_token&openid&lang=zh_CN.
type WeChatUserInfo struct{}

func (WeChatUserInfo) FetchAttributes(ctx context.Context, client *http.Client, p *federation.ProviderDescriptor, t *federation.AccessTokenResponse) (map[string]any, error) {
	openid := t.Param("openid")
	u, err := url.Parse(p.UserInfoURI)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("access_token", t.AccessToken)
	q.Set("openid", openid)
	q.Set("lang", "zh_CN")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	status, err := federation.DoJSON(client, req, &raw)
	if err != nil {
		return nil, userInfoError("invalid_response", err.Error(), status, err)
	}
	if we, bad := wechatErrorOf(raw); bad {
		return nil, userInfoError(we.code, we.msg, status, nil)
	}
	if status < 200 || status > 299 {
		return nil, userInfoError("http_error", "", status, nil)
	}
	// el user-info también trae openid; si no, usamos el del token
	if _, ok := raw["openid"]; !ok && openid != "" {
		raw["openid"] = openid
	}
	return raw, nil
}
