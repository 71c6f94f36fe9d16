package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/hellogate/internal/cache"
	"github.com/dropDatabas3/hellogate/internal/captcha"
	"github.com/dropDatabas3/hellogate/internal/dispatch"
	"github.com/dropDatabas3/hellogate/internal/rate"
	"github.com/dropDatabas3/hellogate/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codeBox struct {
	mu   sync.Mutex
	code string
	fail error
}

func (b *codeBox) dispatcher() dispatch.Dispatcher {
	return dispatch.Func(func(_ context.Context, _, _ string, p map[string]string) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.fail != nil {
			return b.fail
		}
		b.code = p["code"]
		return nil
	})
}

func (b *codeBox) get() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.code
}

func gate(t *testing.T, box *codeBox, store cache.Client) http.Handler {
	t.Helper()
	reg := captcha.NewServiceRegistry("captcha_type")
	img := captcha.NewImageService(store, captcha.NewImageGenerator(captcha.ImageOptions{Expiry: time.Minute}, nil), "captcha_key", "captcha_code", 0)
	sms := captcha.NewMessageService(captcha.ChannelSMS, store, captcha.NewNumericGenerator(6, time.Minute, nil),
		box.dispatcher(), "captcha", "mobile", "captcha_code", time.Minute)
	require.NoError(t, reg.Register(img, []string{"/captcha/image"}, []string{"/login"}))
	require.NoError(t, reg.Register(sms, []string{"/captcha/sms"}, []string{"/login/mobile"}))

	downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, ok := captcha.VerifiedFrom(r.Context())
		if ok {
			w.Header().Set("X-Verified", v.Channel+":"+v.Target)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return Chain(downstream, WithRecover(), WithRequestID(), WithCaptcha(reg))
}

func do(h http.Handler, method, path string, q url.Values) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path+"?"+q.Encode(), nil))
	return rec
}

func TestWithCaptcha_PassThrough(t *testing.T) {
	h := gate(t, &codeBox{}, cache.NewMemory("", 0))
	rec := do(h, http.MethodGet, "/session", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Verified"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestWithCaptcha_SMSSendValidateOnce(t *testing.T) {
	box := &codeBox{}
	h := gate(t, box, cache.NewMemory("", 0))

	rec := do(h, http.MethodPost, "/captcha/sms", url.Values{"mobile": {"13800000000"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"key":"13800000000"`)

	// segundo envío dentro del intervalo
	rec = do(h, http.MethodPost, "/captcha/sms", url.Values{"mobile": {"13800000000"}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "THROTTLE_EXCEEDED")

	q := url.Values{"mobile": {"13800000000"}, "captcha_code": {box.get()}}
	rec = do(h, http.MethodPost, "/login/mobile", q)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "sms:13800000000", rec.Header().Get("X-Verified"))

	rec = do(h, http.MethodPost, "/login/mobile", q)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "CHALLENGE_INVALID")
}

func TestWithCaptcha_ErrorMapping(t *testing.T) {
	box := &codeBox{fail: errors.New("gateway down")}
	h := gate(t, box, cache.NewMemory("", 0))

	rec := do(h, http.MethodPost, "/captcha/sms", url.Values{"mobile": {"1"}})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "SEND_FAILED")

	rec = do(h, http.MethodPost, "/captcha/sms", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPost, "/login", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCaptchaError_Storage(t *testing.T) {
	appErr := CaptchaError(errors.Join(captcha.ErrStorage, errors.New("redis down")))
	assert.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)
}

func TestWithCaptcha_ImageFlow(t *testing.T) {
	store := cache.NewMemory("", 0)
	h := gate(t, &codeBox{}, store)

	rec := do(h, http.MethodGet, "/captcha/image", url.Values{"captcha_key": {"k-1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "k-1", rec.Header().Get(captcha.HeaderKey))

	stored, err := captcha.NewRepository(store, captcha.ChannelImage).Get(context.Background(), "k-1")
	require.NoError(t, err)
	require.NotNil(t, stored)

	rec = do(h, http.MethodPost, "/login", url.Values{"captcha_key": {"k-1"}, "captcha_code": {strings.ToLower(stored.Code)}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWithRateLimit(t *testing.T) {
	lim := rate.NewMemoryLimiter(2, time.Hour)
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
		WithRateLimit(RateLimitConfig{
			Limiter: lim,
			Match:   func(r *http.Request) bool { return strings.HasPrefix(r.URL.Path, "/captcha/") },
		}))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/captcha/sms", nil).Code)
	}
	rec := do(h, http.MethodPost, "/captcha/sms", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// fuera del match no se cuenta
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", nil).Code)
}

func TestWithRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), WithRecover())
	rec := do(h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWithSession(t *testing.T) {
	store := session.NewStore(cache.NewMemory("", 0), session.Options{})
	var seen *session.Session
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = session.From(r.Context())
		seen.SignIn("acc-1", "password", time.Now())
		assert.NoError(t, store.Save(r.Context(), w, seen))
	}), WithSession(store))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, seen)
	first := seen.ID

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, first, seen.ID)
	assert.Equal(t, "acc-1", seen.AccountID)
}
