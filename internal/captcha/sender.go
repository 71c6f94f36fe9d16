package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/hellogate/internal/cache"
	"github.com/dropDatabas3/hellogate/internal/dispatch"
)

// Sender entrega el challenge. w es el response del request de envío: la
// imagen se escribe ahí. Los canales de mensaje no lo tocan; el {key,
// expire_in} lo escribe Service.Send con el envío ya confirmado.
type Sender interface {
	Send(ctx context.Context, target string, c *Challenge, w http.ResponseWriter) error
}

// ImageSender escribe el PNG con cache deshabilitada. No tiene destino.
type ImageSender struct{}

func (s ImageSender) Send(ctx context.Context, _ string, c *Challenge, w http.ResponseWriter) error {
	h := w.Header()
	h.Set("Content-Type", "image/png")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("Content-Length", strconv.Itoa(len(c.Payload)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(c.Payload)
	return nil
}

// MessageSender despacha el código por SMS / e-mail.
type MessageSender struct {
	Channel    string
	Dispatcher dispatch.Dispatcher
	TemplateID string
	Now        func() time.Time
}

type sendResponse struct {
	Key      string `json:"key"`
	ExpireIn int64  `json:"expire_in"`
}

func (s *MessageSender) Send(ctx context.Context, target string, c *Challenge, _ http.ResponseWriter) error {
	now := s.now()
	params := map[string]string{
		"code":           c.Code,
		"target":         target,
		"expire_minutes": strconv.Itoa(expireMinutes(c.ExpiresIn(now))),
	}
	if err := s.Dispatcher.Send(ctx, target, s.TemplateID, params); err != nil {
		return &SendError{Channel: s.Channel, Target: target, Err: err}
	}
	return nil
}

// writeSent responde {key, expire_in} a un envío por mensaje.
func writeSent(w http.ResponseWriter, key string, c *Challenge, now time.Time) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(sendResponse{
		Key:      key,
		ExpireIn: int64(c.ExpiresIn(now).Round(time.Second) / time.Second),
	})
}

func (s *MessageSender) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// expireMinutes redondea hacia arriba (60s -> 1, 61s -> 2).
func expireMinutes(d time.Duration) int {
	m := int((d + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}

// =================================================================================
// THROTTLE
// =================================================================================

// Throttle impone el intervalo mínimo de reenvío por destino.
//
// La marca de último envío se reserva con SET-if-absent
// ("captcha:throttle:{channel}:{target}", TTL = Interval) antes de despachar,
// así dos envíos concurrentes no pueden pasar los dos. Si el despacho falla
// la reserva se libera.
type Throttle struct {
	Store    cache.Client
	Channel  string
	Interval time.Duration
	Now      func() time.Time
}

func ThrottleKey(channel, target string) string {
	return "captcha:throttle:" + channel + ":" + target
}

// Reserve toma el turno de envío para target o devuelve *ThrottleError.
func (t *Throttle) Reserve(ctx context.Context, target string) error {
	if t == nil || t.Interval <= 0 {
		return nil
	}
	now := t.now()
	key := ThrottleKey(t.Channel, target)
	ok, err := t.Store.SetNX(ctx, key, strconv.FormatInt(now.UnixNano(), 10), t.Interval)
	if err != nil {
		return fmt.Errorf("%w: throttle: %w", ErrStorage, err)
	}
	if ok {
		return nil
	}

	retry := t.Interval
	if raw, err := t.Store.Get(ctx, key); err == nil {
		if ns, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			retry = t.Interval - now.Sub(time.Unix(0, ns))
		}
	}
	if retry < time.Second {
		retry = time.Second
	}
	return &ThrottleError{RetryAfter: retry}
}

// Release libera la reserva (despacho fallido).
func (t *Throttle) Release(ctx context.Context, target string) {
	if t == nil || t.Interval <= 0 {
		return
	}
	_ = t.Store.Delete(ctx, ThrottleKey(t.Channel, target))
}

func (t *Throttle) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}
