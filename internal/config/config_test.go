package config

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellogate/internal/security/secretbox"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "memory", c.Cache.Kind)
	assert.Equal(t, "hellogate_sid", c.Session.CookieName)
	assert.Equal(t, "captcha_key", c.Captcha.KeyParam)
	assert.Equal(t, 6, c.Captcha.SMS.Length)
	assert.Equal(t, 60*time.Second, c.Captcha.SMS.Expiry)
	assert.Equal(t, 60*time.Second, c.Captcha.SMS.ResendInterval)
	assert.Equal(t, []string{"/captcha/sms"}, c.Captcha.SMS.SendURLs)
	assert.Equal(t, "ABCDEFGHJKLMNPQRSTUVWXYZ23456789", c.Captcha.Image.Charset)
}

func TestLoad_YAMLAndProviderDefaults(t *testing.T) {
	p := writeYAML(t, `
app:
  base_url: https://auth.example.com
captcha:
  sms:
    length: 4
    expiry: 90s
    validate_urls: ["/login/mobile", "/api/**/bind"]
federation:
  state_secret: 0123456789abcdef0123
  providers:
    feishu:
      client_id: cli_a
      client_secret: s3cr3t
      authorization_uri: https://open.feishu.cn/open-apis/authen/v1/authorize
      token_uri: https://open.feishu.cn/open-apis/authen/v2/oauth/token
      user_info_uri: https://open.feishu.cn/open-apis/authen/v1/user_info
      subject_attribute: open_id
`)
	c, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 4, c.Captcha.SMS.Length)
	assert.Equal(t, 90*time.Second, c.Captcha.SMS.Expiry)
	assert.Len(t, c.Captcha.SMS.ValidateURLs, 2)

	fs := c.Federation.Providers["feishu"]
	assert.Equal(t, "feishu", fs.Provider)
	assert.Equal(t, "open_id", fs.SubjectAttribute)
	assert.Equal(t, DefaultRedirectURITemplate, fs.RedirectURI)
	assert.Equal(t, "client_secret_basic", fs.ClientAuthMethod)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CACHE_KIND", "redis")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("CAPTCHA_SMS_RESEND_INTERVAL", "2m")
	t.Setenv("CAPTCHA_EMAIL_ENABLED", "false")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis", c.Cache.Kind)
	assert.Equal(t, 2*time.Minute, c.Captcha.SMS.ResendInterval)
	assert.True(t, c.Captcha.Email.Disabled)
}

func TestValidate_Rejects(t *testing.T) {
	t.Run("redis without addr", func(t *testing.T) {
		c := Default()
		c.Cache.Kind = "redis"
		assert.Error(t, c.Validate())
	})
	t.Run("postgres without dsn", func(t *testing.T) {
		c := Default()
		c.Storage.Driver = "postgres"
		assert.Error(t, c.Validate())
	})
	t.Run("provider without client id", func(t *testing.T) {
		p := writeYAML(t, `
federation:
  state_secret: 0123456789abcdef0123
  providers:
    github:
      authorization_uri: https://github.com/login/oauth/authorize
      token_uri: https://github.com/login/oauth/access_token
`)
		_, err := Load(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "client_id")
	})
	t.Run("short state secret", func(t *testing.T) {
		c := Default()
		c.Federation.StateSecret = "short"
		c.Federation.Providers["x"] = Provider{ClientID: "a", AuthorizationURI: "u", TokenURI: "t", ClientAuthMethod: "client_secret_post"}
		assert.Error(t, c.Validate())
	})
	t.Run("federation timeout disabled by env", func(t *testing.T) {
		t.Setenv("FEDERATION_HTTP_TIMEOUT", "0s")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "federation.http_timeout")
	})
	t.Run("negative federation timeout in yaml", func(t *testing.T) {
		p := writeYAML(t, `
federation:
  http_timeout: -1s
`)
		_, err := Load(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "federation.http_timeout")
	})
	t.Run("sms timeout disabled", func(t *testing.T) {
		c := Default()
		c.SMS.Timeout = 0
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sms.timeout")
	})
	t.Run("bad scope and registration id", func(t *testing.T) {
		c := Default()
		c.Federation.StateSecret = "0123456789abcdef0123"
		c.Federation.Providers["Bad Id"] = Provider{ClientID: "a", AuthorizationURI: "u", TokenURI: "t",
			ClientAuthMethod: "client_secret_post", Scopes: []string{"openid", "bad scope"}}
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid registration id")
		assert.Contains(t, err.Error(), "scopes")
	})
}

func TestLoad_SealedSecrets(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))
	box, err := secretbox.New(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	sealed, err := box.Seal("gh-secret")
	require.NoError(t, err)

	p := writeYAML(t, `
federation:
  state_secret: 0123456789abcdef0123
  providers:
    github:
      client_id: abc
      client_secret: "`+sealed+`"
      authorization_uri: https://github.com/login/oauth/authorize
      token_uri: https://github.com/login/oauth/access_token
`)

	t.Setenv(secretbox.EnvVar, "")
	_, err = Load(p)
	require.ErrorIs(t, err, secretbox.ErrNoKey)

	t.Setenv(secretbox.EnvVar, key)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "gh-secret", c.Federation.Providers["github"].ClientSecret)
}
