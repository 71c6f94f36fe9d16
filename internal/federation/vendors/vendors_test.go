package vendors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/hellogate/internal/federation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokers struct {
	authz  *federation.AuthorizationRequestBroker
	tokens *federation.TokenExchangeBroker
	users  *federation.UserInfoBroker
	reg    *federation.StaticProviderRegistry
}

func newBrokers(client *http.Client, descs ...federation.ProviderDescriptor) brokers {
	ar := federation.NewRegistry[federation.AuthorizationRequestCustomizer]()
	tr := federation.NewRegistry[federation.TokenExchanger]()
	ur := federation.NewRegistry[federation.UserInfoFetcher]()
	Register(ar, tr, ur)

	reg := federation.NewStaticProviderRegistry(descs...)
	return brokers{
		authz: &federation.AuthorizationRequestBroker{
			Providers:   reg,
			Customizers: ar,
			State:       federation.NewStateCodec([]byte("0123456789abcdef0123456789abcdef"), time.Minute),
			BaseURL:     "https://app.example.com",
		},
		tokens: &federation.TokenExchangeBroker{Customizers: tr, HTTPClient: client},
		users:  &federation.UserInfoBroker{Providers: reg, Customizers: ur, HTTPClient: client},
		reg:    reg,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSubjectAttribute(t *testing.T) {
	assert.Equal(t, "open_id", SubjectAttribute("feishu"))
	assert.Equal(t, "openid", SubjectAttribute("WeChat"))
	assert.Equal(t, "unionId", SubjectAttribute("dingtalk"))
	assert.Equal(t, "id", SubjectAttribute("github"))
	assert.Equal(t, "sub", SubjectAttribute("google"))
}

// ============================================================================
// Feishu
// ============================================================================

func TestFeishu_FullFlowWithCode200(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cli_a", body["client_id"])
		assert.Equal(t, "abc", body["code"])
		writeJSON(w, http.StatusOK, map[string]any{
			"code": 200, "msg": "success",
			"data": map[string]any{"access_token": "u-123", "token_type": "Bearer", "expires_in": 7200, "refresh_token": "r-1"},
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer u-123", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"code": 200, "msg": "ok",
			"data": map[string]any{"open_id": "ou_x", "union_id": "on_y", "name": "Zhang"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := newBrokers(srv.Client(), federation.ProviderDescriptor{
		RegistrationID: "feishu", ClientID: "cli_a", ClientSecret: "s",
		AuthorizationURI: srv.URL + "/authorize", TokenURI: srv.URL + "/token", UserInfoURI: srv.URL + "/userinfo",
		SubjectAttribute: SubjectAttribute("feishu"),
	})
	desc, _ := b.reg.Lookup("feishu")

	tok, err := b.tokens.Exchange(context.Background(), federation.AuthorizationCodeGrant{Provider: desc, Code: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "u-123", tok.AccessToken)
	assert.Equal(t, int64(7200), tok.ExpiresIn)
	assert.Equal(t, "r-1", tok.RefreshToken)

	id, err := b.users.FetchUser(context.Background(), tok, "feishu")
	require.NoError(t, err)
	assert.Equal(t, "ou_x", id.SubjectID)
	assert.Equal(t, map[string]any{"open_id": "ou_x", "union_id": "on_y", "name": "Zhang"}, id.RawAttributes)
}

func TestFeishu_EnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"code": 20003, "msg": "invalid code"})
	}))
	defer srv.Close()

	b := newBrokers(srv.Client(), federation.ProviderDescriptor{RegistrationID: "feishu", ClientID: "c", TokenURI: srv.URL})
	desc, _ := b.reg.Lookup("feishu")

	_, err := b.tokens.Exchange(context.Background(), federation.AuthorizationCodeGrant{Provider: desc, Code: "x"})
	var te *federation.TokenExchangeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "20003", te.ProviderErrorCode)
	assert.Equal(t, "invalid code", te.ProviderErrorMessage)
	assert.Equal(t, "feishu", te.RegistrationID)
}

// ============================================================================
// Token response: campos básicos completos para todos los vendors
// ============================================================================

func TestTokenExchange_CoreFieldsPerVendor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/feishu/token", func(w http.ResponseWriter, r *http.Request) {
		// v2: token plano, sin scope ni token_type
		writeJSON(w, http.StatusOK, map[string]any{"code": 0, "access_token": "u", "expires_in": 7200})
	})
	mux.HandleFunc("/wechat/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "wx", "expires_in": 7200, "openid": "o", "scope": "snsapi_login"})
	})
	mux.HandleFunc("/dingtalk/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"accessToken": "dt", "expireIn": 7200})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := newBrokers(srv.Client(),
		federation.ProviderDescriptor{RegistrationID: "feishu", ClientID: "c", TokenURI: srv.URL + "/feishu/token",
			Scopes: []string{"contact:user.id:readonly", "offline_access"}},
		federation.ProviderDescriptor{RegistrationID: "wx", Provider: "wechat", ClientID: "c", TokenURI: srv.URL + "/wechat/token",
			Scopes: []string{"snsapi_login"}},
		federation.ProviderDescriptor{RegistrationID: "dingtalk", ClientID: "c", TokenURI: srv.URL + "/dingtalk/token",
			Scopes: []string{"openid"}},
	)

	cases := []struct {
		rid, access, scope string
	}{
		{"feishu", "u", "contact:user.id:readonly offline_access"},
		{"wx", "wx", "snsapi_login"},
		{"dingtalk", "dt", "openid"},
	}
	for _, tc := range cases {
		t.Run(tc.rid, func(t *testing.T) {
			desc, ok := b.reg.Lookup(tc.rid)
			require.True(t, ok)
			tok, err := b.tokens.Exchange(context.Background(), federation.AuthorizationCodeGrant{Provider: desc, Code: "c"})
			require.NoError(t, err)
			assert.Equal(t, tc.access, tok.AccessToken)
			assert.Equal(t, "Bearer", tok.TokenType)
			assert.Equal(t, int64(7200), tok.ExpiresIn)
			assert.Equal(t, tc.scope, tok.Scope)
		})
	}
}

// ============================================================================
// WeChat
// ============================================================================

func TestWeChat_AuthorizationURL(t *testing.T) {
	b := newBrokers(nil, federation.ProviderDescriptor{
		RegistrationID: "wx", Provider: "wechat", ClientID: "wx123",
		AuthorizationURI: "https://open.weixin.qq.com/connect/qrconnect",
		RedirectURI:      "{baseUrl}/login/oauth2/code/{registrationId}",
		Scopes:           []string{"snsapi_login"},
	})

	req, err := b.authz.Resolve(httptest.NewRequest(http.MethodGet, "/oauth2/authorization/wx", nil))
	require.NoError(t, err)
	raw := req.URL()
	assert.True(t, strings.HasPrefix(raw, "https://open.weixin.qq.com/connect/qrconnect?appid=wx123&redirect_uri="), raw)
	assert.True(t, strings.HasSuffix(raw, "#wechat_redirect"))
	assert.Contains(t, raw, "&response_type=code&scope=snsapi_login&state=")
}

func TestWeChat_TokenAndUserInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sns/oauth2/access_token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "wx123", q.Get("appid"))
		assert.Equal(t, "sec", q.Get("secret"))
		assert.Equal(t, "authorization_code", q.Get("grant_type"))
		if q.Get("code") == "bad" {
			writeJSON(w, http.StatusOK, map[string]any{"errcode": 40029, "errmsg": "invalid code"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "wx-at", "expires_in": 7200, "openid": "o_1", "unionid": "u_1", "scope": "snsapi_login",
		})
	})
	mux.HandleFunc("/sns/userinfo", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "wx-at", q.Get("access_token"))
		assert.Equal(t, "o_1", q.Get("openid"))
		assert.Equal(t, "zh_CN", q.Get("lang"))
		writeJSON(w, http.StatusOK, map[string]any{"openid": "o_1", "nickname": "wx-user", "unionid": "u_1"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := newBrokers(srv.Client(), federation.ProviderDescriptor{
		RegistrationID: "wx", Provider: "wechat", ClientID: "wx123", ClientSecret: "sec",
		TokenURI: srv.URL + "/sns/oauth2/access_token", UserInfoURI: srv.URL + "/sns/userinfo",
		SubjectAttribute: SubjectAttribute("wechat"),
	})
	desc, _ := b.reg.Lookup("wx")

	tok, err := b.tokens.Exchange(context.Background(), federation.AuthorizationCodeGrant{Provider: desc, Code: "good"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, "o_1", tok.Param("openid"))

	id, err := b.users.FetchUser(context.Background(), tok, "wx")
	require.NoError(t, err)
	assert.Equal(t, "o_1", id.SubjectID)
	assert.Equal(t, "wechat", id.Provider)

	_, err = b.tokens.Exchange(context.Background(), federation.AuthorizationCodeGrant{Provider: desc, Code: "bad"})
	var te *federation.TokenExchangeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "40029", te.ProviderErrorCode)
}

// ============================================================================
// DingTalk
// ============================================================================

func TestDingTalk_Flow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/oauth2/userAccessToken", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ding-id", body["clientId"])
		assert.Equal(t, "authorization_code", body["grantType"])
		writeJSON(w, http.StatusOK, map[string]any{"accessToken": "dt-at", "expireIn": 7200, "refreshToken": "dt-rt"})
	})
	mux.HandleFunc("/v1.0/contact/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-acs-dingtalk-access-token") != "dt-at" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "InvalidAuthentication", "message": "token invalid"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"nick": "li", "unionId": "union-9", "openId": "open-9"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := newBrokers(srv.Client(), federation.ProviderDescriptor{
		RegistrationID: "dingtalk", ClientID: "ding-id", ClientSecret: "s",
		AuthorizationURI: "https://login.dingtalk.com/oauth2/auth",
		TokenURI:         srv.URL + "/v1.0/oauth2/userAccessToken",
		UserInfoURI:      srv.URL + "/v1.0/contact/users/me",
		SubjectAttribute: SubjectAttribute("dingtalk"),
		Scopes:           []string{"openid"},
	})

	areq, err := b.authz.ResolveRegistration(httptest.NewRequest(http.MethodGet, "/", nil), "dingtalk")
	require.NoError(t, err)
	assert.Contains(t, areq.URL(), "prompt=consent")

	desc, _ := b.reg.Lookup("dingtalk")
	tok, err := b.tokens.Exchange(context.Background(), federation.AuthorizationCodeGrant{Provider: desc, Code: "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(7200), tok.ExpiresIn)

	id, err := b.users.FetchUser(context.Background(), tok, "dingtalk")
	require.NoError(t, err)
	assert.Equal(t, "union-9", id.SubjectID)

	_, err = b.users.FetchUser(context.Background(), &federation.AccessTokenResponse{AccessToken: "nope"}, "dingtalk")
	var ue *federation.UserInfoError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "InvalidAuthentication", ue.ProviderErrorCode)
	assert.Equal(t, http.StatusUnauthorized, ue.Status)
}
