package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/hellogate/internal/cache"
	"github.com/google/uuid"
)

// ErrStorage: el almacén de sesiones falló.
var ErrStorage = errors.New("session: storage error")

// Options de la cookie y expiración.
type Options struct {
	CookieName string
	Domain     string
	Path       string
	SameSite   http.SameSite
	Secure     bool
	TTL        time.Duration // sliding: cada Save la renueva
}

// ParseSameSite traduce el valor de config ("lax", "strict", "none").
func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Store persiste sesiones en el almacén TTL.
type Store struct {
	cache cache.Client
	opts  Options
	now   func() time.Time
}

func NewStore(c cache.Client, opts Options) *Store {
	if opts.CookieName == "" {
		opts.CookieName = "hellogate_sid"
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	return &Store{cache: c, opts: opts, now: time.Now}
}

func (s *Store) CookieName() string { return s.opts.CookieName }

func storeKey(id string) string { return "session:" + id }

// Load devuelve la sesión del request. Sin cookie, o con una cookie que ya
// no existe en el store, devuelve una sesión nueva sin persistir.
func (s *Store) Load(ctx context.Context, r *http.Request) (*Session, error) {
	if c, err := r.Cookie(s.opts.CookieName); err == nil && c.Value != "" {
		raw, err := s.cache.Get(ctx, storeKey(c.Value))
		switch {
		case err == nil:
			var sess Session
			if jerr := json.Unmarshal([]byte(raw), &sess); jerr == nil && sess.ID == c.Value {
				return &sess, nil
			}
			// corrupta: se descarta
		case cache.IsNotFound(err):
		default:
			return nil, fmt.Errorf("%w: load: %w", ErrStorage, err)
		}
	}
	return s.New(), nil
}

// New crea una sesión vacía con id nuevo.
func (s *Store) New() *Session {
	return &Session{ID: uuid.NewString(), CreatedAt: s.now().UTC(), isNew: true}
}

// Save persiste la sesión y renueva la cookie.
func (s *Store) Save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, storeKey(sess.ID), string(b), s.opts.TTL); err != nil {
		return fmt.Errorf("%w: save: %w", ErrStorage, err)
	}
	sess.isNew = false
	http.SetCookie(w, s.cookie(sess.ID, s.opts.TTL))
	return nil
}

// Rotate cambia el id de la sesión conservando su contenido. Se llama al
// autenticar para que un id fijado antes del login no sirva después.
func (s *Store) Rotate(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	old := sess.ID
	sess.ID = uuid.NewString()
	if err := s.Save(ctx, w, sess); err != nil {
		sess.ID = old
		return err
	}
	if err := s.cache.Delete(ctx, storeKey(old)); err != nil {
		return fmt.Errorf("%w: rotate: %w", ErrStorage, err)
	}
	return nil
}

// Destroy borra la sesión y expira la cookie.
func (s *Store) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	http.SetCookie(w, s.cookie("", -1))
	if sess == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, storeKey(sess.ID)); err != nil {
		return fmt.Errorf("%w: destroy: %w", ErrStorage, err)
	}
	return nil
}

func (s *Store) cookie(value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    value,
		Path:     s.opts.Path,
		Domain:   s.opts.Domain,
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	}
	if ttl < 0 {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	} else {
		c.MaxAge = int(ttl / time.Second)
		c.Expires = s.now().Add(ttl)
	}
	return c
}
