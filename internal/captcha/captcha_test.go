package captcha

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dropDatabas3/hellogate/internal/cache"
	"github.com/dropDatabas3/hellogate/internal/dispatch"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── helpers ───

type brokenStore struct{ cache.Client }

var errDown = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) (string, error) { return "", errDown }
func (brokenStore) Set(context.Context, string, string, time.Duration) error {
	return errDown
}
func (brokenStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errDown
}
func (brokenStore) GetDel(context.Context, string) (string, error) { return "", errDown }
func (brokenStore) Delete(context.Context, string) error           { return errDown }

type recordingDispatcher struct {
	mu    sync.Mutex
	sent  []map[string]string
	fail  error
	calls int32
}

func (d *recordingDispatcher) Send(_ context.Context, target, _ string, params map[string]string) error {
	atomic.AddInt32(&d.calls, 1)
	if d.fail != nil {
		return d.fail
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := map[string]string{"_target": target}
	for k, v := range params {
		cp[k] = v
	}
	d.sent = append(d.sent, cp)
	return nil
}

func (d *recordingDispatcher) last() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		return nil
	}
	return d.sent[len(d.sent)-1]
}

func smsService(store cache.Client, d dispatch.Dispatcher, resend time.Duration) *Service {
	gen := NewNumericGenerator(6, 60*time.Second, nil)
	return NewMessageService(ChannelSMS, store, gen, d, "captcha", "mobile", "captcha_code", resend)
}

func newRequest(method, path string, q url.Values) *http.Request {
	return httptest.NewRequest(method, path+"?"+q.Encode(), nil)
}

// ─── repository ───

func TestRepository_SaveGetConsume(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(cache.NewMemory("", 0), ChannelSMS)

	c := &Challenge{Code: "123456", Target: "13800000000", ExpireAt: time.Now().Add(time.Minute)}
	require.NoError(t, repo.Save(ctx, "13800000000", c))

	got, err := repo.Get(ctx, "13800000000")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "123456", got.Code)
	assert.Nil(t, got.Payload)

	got, err = repo.Consume(ctx, "13800000000")
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = repo.Consume(ctx, "13800000000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_KeyLayoutAndTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := NewRepository(cache.NewRedisFromClient(rdb, ""), ChannelSMS)

	require.NoError(t, repo.Save(ctx, "13800000000", &Challenge{Code: "1", ExpireAt: time.Now().Add(60 * time.Second)}))
	assert.True(t, mr.Exists("sms:13800000000"))
	ttl := mr.TTL("sms:13800000000")
	assert.InDelta(t, 60, ttl.Seconds(), 2)

	mr.FastForward(61 * time.Second)
	got, err := repo.Get(ctx, "13800000000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_PastExpireAtNeverReturned(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	repo := NewRepository(cache.NewMemory("", 0), ChannelImage).WithClock(func() time.Time { return now })

	require.NoError(t, repo.Save(ctx, "k", &Challenge{Code: "ABCD", ExpireAt: now.Add(time.Minute)}))

	// el backend todavía la tiene, pero ExpireAt ya pasó
	now = now.Add(2 * time.Minute)
	got, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, repo.Save(ctx, "k2", &Challenge{Code: "X", ExpireAt: now.Add(-time.Second)}), ErrAlreadyExpired)
}

func TestRepository_StorageError(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(brokenStore{}, ChannelSMS)

	err := repo.Save(ctx, "k", &Challenge{Code: "1", ExpireAt: time.Now().Add(time.Minute)})
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, errDown)

	_, err = repo.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrStorage)
	_, err = repo.Consume(ctx, "k")
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, repo.Remove(ctx, "k"), ErrStorage)
}

// ─── generators ───

func TestNumericGenerator(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewNumericGenerator(6, time.Minute, rand.New(rand.NewPCG(1, 2)))
	g.Now = func() time.Time { return now }

	c, err := g.Generate()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), c.Code)
	assert.Equal(t, now.Add(time.Minute), c.ExpireAt)

	// misma semilla, mismo código
	g2 := NewNumericGenerator(6, time.Minute, rand.New(rand.NewPCG(1, 2)))
	c2, _ := g2.Generate()
	assert.Equal(t, c.Code, c2.Code)
}

func TestImageGenerator(t *testing.T) {
	g := NewImageGenerator(ImageOptions{Length: 5, Width: 150, Height: 50, NoiseLines: 6, FontSize: 30, Expiry: time.Minute},
		rand.New(rand.NewPCG(7, 7)))

	c, err := g.Generate()
	require.NoError(t, err)
	assert.Len(t, c.Code, 5)
	for _, r := range c.Code {
		assert.Contains(t, DefaultCharset, string(r))
	}

	img, err := png.Decode(bytes.NewReader(c.Payload))
	require.NoError(t, err)
	assert.Equal(t, 150, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	g2 := NewImageGenerator(ImageOptions{Length: 5, Width: 150, Height: 50, NoiseLines: 6, FontSize: 30, Expiry: time.Minute},
		rand.New(rand.NewPCG(7, 7)))
	c2, _ := g2.Generate()
	assert.Equal(t, c.Code, c2.Code)
	assert.Equal(t, c.Payload, c2.Payload)
}

// ─── senders / throttle ───

func TestImageSender_Headers(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, ImageSender{}.Send(context.Background(), "", &Challenge{Payload: []byte{0x89, 'P', 'N', 'G'}}, rec))

	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store, no-cache, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rec.Body.Bytes())
}

func TestMessageSender_DispatchFailure(t *testing.T) {
	d := &recordingDispatcher{fail: errors.New("gateway down")}
	s := &MessageSender{Channel: ChannelSMS, Dispatcher: d, TemplateID: "captcha"}

	err := s.Send(context.Background(), "13800000000", &Challenge{Code: "1", ExpireAt: time.Now().Add(time.Minute)}, httptest.NewRecorder())
	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "13800000000", se.Target)
}

func TestThrottle_ConcurrentSendsDeliverOnce(t *testing.T) {
	store := cache.NewMemory("", 0)
	d := &recordingDispatcher{}
	svc := smsService(store, d, time.Minute)

	var ok, throttled int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Send(context.Background(), httptest.NewRecorder(),
				newRequest(http.MethodPost, "/captcha/sms", url.Values{"mobile": {"13800000000"}}))
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, ErrThrottleExceeded):
				atomic.AddInt32(&throttled, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(7), throttled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&d.calls))
}

func TestThrottle_RetryAfterAndReleaseOnFailure(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory("", 0)
	now := time.Now()
	th := &Throttle{Store: store, Channel: ChannelSMS, Interval: time.Minute, Now: func() time.Time { return now }}

	require.NoError(t, th.Reserve(ctx, "t"))
	now = now.Add(20 * time.Second)
	err := th.Reserve(ctx, "t")
	var te *ThrottleError
	require.ErrorAs(t, err, &te)
	assert.InDelta(t, 40, te.RetryAfter.Seconds(), 1)

	th.Release(ctx, "t")
	assert.NoError(t, th.Reserve(ctx, "t"))
}

func TestService_DispatchFailureLeavesNoState(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory("", 0)
	d := &recordingDispatcher{fail: errors.New("gateway down")}
	svc := smsService(store, d, time.Minute)

	req := newRequest(http.MethodPost, "/captcha/sms", url.Values{"mobile": {"13800000000"}})
	err := svc.Send(ctx, httptest.NewRecorder(), req)
	var se *SendError
	require.ErrorAs(t, err, &se)

	ok, _ := store.Exists(ctx, "sms:13800000000")
	assert.False(t, ok, "challenge must be removed")
	ok, _ = store.Exists(ctx, ThrottleKey(ChannelSMS, "13800000000"))
	assert.False(t, ok, "throttle must be released")

	// el reintento manual no queda bloqueado
	d.fail = nil
	require.NoError(t, svc.Send(ctx, httptest.NewRecorder(), req))
}

// failingWriter simula un cliente que cortó la conexión.
type failingWriter struct {
	*httptest.ResponseRecorder
}

func (w failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestService_ResponseWriteFailureKeepsSentChallenge(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory("", 0)
	d := &recordingDispatcher{}
	svc := smsService(store, d, time.Minute)

	req := newRequest(http.MethodPost, "/captcha/sms", url.Values{"mobile": {"13800000000"}})
	require.NoError(t, svc.Send(ctx, failingWriter{httptest.NewRecorder()}, req))
	require.NotNil(t, d.last(), "code was dispatched")

	ok, _ := store.Exists(ctx, "sms:13800000000")
	assert.True(t, ok, "challenge must survive the write error")
	ok, _ = store.Exists(ctx, ThrottleKey(ChannelSMS, "13800000000"))
	assert.True(t, ok, "throttle must stay reserved")

	// el código despachado sigue validando
	v, err := svc.Validate(ctx, newRequest(http.MethodPost, "/login/mobile", url.Values{"mobile": {"13800000000"}, "captcha_code": {d.last()["code"]}}))
	require.NoError(t, err)
	assert.Equal(t, "13800000000", v.Target)
}

// ─── service send / validate ───

func TestService_SMSScenario(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory("", 0)
	d := &recordingDispatcher{}
	svc := smsService(store, d, time.Minute)

	rec := httptest.NewRecorder()
	require.NoError(t, svc.Send(ctx, rec, newRequest(http.MethodPost, "/captcha/sms", url.Values{"mobile": {"13800000000"}})))
	assert.JSONEq(t, `{"key":"13800000000","expire_in":60}`, rec.Body.String())

	sent := d.last()
	require.NotNil(t, sent)
	code := sent["code"]
	assert.Regexp(t, `^[0-9]{6}$`, code)
	assert.Equal(t, "1", sent["expire_minutes"])

	stored, err := NewRepository(store, ChannelSMS).Get(ctx, "13800000000")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.WithinDuration(t, time.Now().Add(60*time.Second), stored.ExpireAt, 2*time.Second)

	validate := newRequest(http.MethodPost, "/login/mobile", url.Values{"mobile": {"13800000000"}, "captcha_code": {code}})
	v, err := svc.Validate(ctx, validate)
	require.NoError(t, err)
	assert.Equal(t, "13800000000", v.Target)

	_, err = svc.Validate(ctx, validate)
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestService_WrongCodeStillConsumes(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory("", 0)
	d := &recordingDispatcher{}
	svc := smsService(store, d, 0)

	require.NoError(t, svc.Send(ctx, httptest.NewRecorder(), newRequest(http.MethodPost, "/captcha/sms", url.Values{"mobile": {"1"}})))
	code := d.last()["code"]

	_, err := svc.Validate(ctx, newRequest(http.MethodPost, "/login/mobile", url.Values{"mobile": {"1"}, "captcha_code": {"nope"}}))
	assert.ErrorIs(t, err, ErrChallengeInvalid)

	_, err = svc.Validate(ctx, newRequest(http.MethodPost, "/login/mobile", url.Values{"mobile": {"1"}, "captcha_code": {code}}))
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestService_MissingTarget(t *testing.T) {
	svc := smsService(cache.NewMemory("", 0), &recordingDispatcher{}, 0)
	err := svc.Send(context.Background(), httptest.NewRecorder(), newRequest(http.MethodPost, "/captcha/sms", nil))
	assert.ErrorIs(t, err, ErrMissingTarget)
}

func TestService_ImageKeyGeneratedAndCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory("", 0)
	gen := NewImageGenerator(ImageOptions{Expiry: time.Minute}, nil)
	svc := NewImageService(store, gen, "captcha_key", "captcha_code", 0)

	rec := httptest.NewRecorder()
	require.NoError(t, svc.Send(ctx, rec, newRequest(http.MethodGet, "/captcha/image", nil)))
	key := rec.Header().Get(HeaderKey)
	require.NotEmpty(t, key)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	stored, err := NewRepository(store, ChannelImage).Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, stored)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set(HeaderKey, key)
	req.Header.Set(HeaderCode, lower(stored.Code))
	v, err := svc.Validate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, key, v.Key)
}

func TestService_ValidateConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory("", 0)
	d := &recordingDispatcher{}
	svc := smsService(store, d, 0)
	require.NoError(t, svc.Send(ctx, httptest.NewRecorder(), newRequest(http.MethodPost, "/captcha/sms", url.Values{"mobile": {"2"}})))
	code := d.last()["code"]

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Validate(ctx, newRequest(http.MethodPost, "/login/mobile", url.Values{"mobile": {"2"}, "captcha_code": {code}}))
			if err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
