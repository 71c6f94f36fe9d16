package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidScope(t *testing.T) {
	for _, s := range []string{"openid", "profile", "snsapi_login", "contact:user.id:readonly", "https://www.googleapis.com/auth/userinfo.email"} {
		assert.True(t, ValidScope(s), s)
	}
	for _, s := range []string{"", "a b", `quo"te`, `back\\slash`, "tab\t", strings.Repeat("a", 129)} {
		assert.False(t, ValidScope(s), s)
	}
}

func TestScopes(t *testing.T) {
	assert.NoError(t, Scopes(nil))
	assert.NoError(t, Scopes([]string{"openid", "email"}))
	assert.ErrorContains(t, Scopes([]string{"openid", "openid"}), "duplicated")
	assert.ErrorContains(t, Scopes([]string{"open id"}), "invalid")
}

func TestValidRegistrationID(t *testing.T) {
	for _, s := range []string{"github", "feishu-corp", "a", "we_chat2"} {
		assert.True(t, ValidRegistrationID(s), s)
	}
	for _, s := range []string{"", "GitHub", "-x", "x-", "a/b", "a.b", strings.Repeat("a", 65)} {
		assert.False(t, ValidRegistrationID(s), s)
	}
}
