// Package vendors contiene los adaptadores de proveedores que no siguen el
// flujo OAuth2 estándar (Feishu, WeChat, DingTalk). Cada uno aporta hasta
// tres estrategias: ajuste del authorization request, canje del code y
// fetch del user-info. Los demás proveedores usan el camino por defecto.
package vendors

import (
	"strings"

	"github.com/dropDatabas3/hellogate/internal/federation"
)

const (
	Feishu   = "feishu"
	WeChat   = "wechat"
	DingTalk = "dingtalk"
	GitHub   = "github"
)

// Register carga los adaptadores en los registries. Llamar una vez al
// arrancar, antes de servir.
func Register(
	authz *federation.Registry[federation.AuthorizationRequestCustomizer],
	tokens *federation.Registry[federation.TokenExchanger],
	users *federation.Registry[federation.UserInfoFetcher],
) {
	// Feishu usa el authorization request estándar.
	tokens.Register(federation.Entry[federation.TokenExchanger]{Test: federation.ProviderIs(Feishu), Apply: FeishuTokenExchanger{}})
	users.Register(federation.Entry[federation.UserInfoFetcher]{Test: federation.ProviderIs(Feishu), Apply: FeishuUserInfo{}})

	authz.Register(federation.Entry[federation.AuthorizationRequestCustomizer]{Test: federation.ProviderIs(WeChat), Apply: WeChatAuthorization})
	tokens.Register(federation.Entry[federation.TokenExchanger]{Test: federation.ProviderIs(WeChat), Apply: WeChatTokenExchanger{}})
	users.Register(federation.Entry[federation.UserInfoFetcher]{Test: federation.ProviderIs(WeChat), Apply: WeChatUserInfo{}})

	authz.Register(federation.Entry[federation.AuthorizationRequestCustomizer]{Test: federation.ProviderIs(DingTalk), Apply: DingTalkAuthorization})
	tokens.Register(federation.Entry[federation.TokenExchanger]{Test: federation.ProviderIs(DingTalk), Apply: DingTalkTokenExchanger{}})
	users.Register(federation.Entry[federation.UserInfoFetcher]{Test: federation.ProviderIs(DingTalk), Apply: DingTalkUserInfo{}})
}

// SubjectAttribute es el atributo de subject por defecto de cada vendor.
func SubjectAttribute(provider string) string {
	switch strings.ToLower(provider) {
	case Feishu:
		return "open_id"
	case WeChat:
		return "openid"
	case DingTalk:
		return "unionId"
	case GitHub:
		return "id"
	}
	return "sub"
}

func tokenError(code, msg string, status int, err error) *federation.TokenExchangeError {
	return &federation.TokenExchangeError{ProviderErrorCode: code, ProviderErrorMessage: msg, Status: status, Err: err}
}

func userInfoError(code, msg string, status int, err error) *federation.UserInfoError {
	return &federation.UserInfoError{ProviderErrorCode: code, ProviderErrorMessage: msg, Status: status, Err: err}
}
