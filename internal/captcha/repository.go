package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/hellogate/internal/cache"
)

// Repository guarda challenges por key dentro de un namespace (el canal).
// Get y Consume devuelven (nil, nil) si no hay entrada o ya venció.
type Repository interface {
	Save(ctx context.Context, key string, c *Challenge) error
	Get(ctx context.Context, key string) (*Challenge, error)
	Remove(ctx context.Context, key string) error
	// Consume obtiene y borra en una sola operación: dos validaciones
	// concurrentes nunca ven el mismo challenge.
	Consume(ctx context.Context, key string) (*Challenge, error)
}

// CacheRepository implementa Repository sobre cache.Client.
// Layout: "{namespace}:{key}" -> JSON, TTL = ExpireAt - now.
type CacheRepository struct {
	store     cache.Client
	namespace string
	now       func() time.Time
}

func NewRepository(store cache.Client, namespace string) *CacheRepository {
	return &CacheRepository{store: store, namespace: namespace, now: time.Now}
}

// WithClock reemplaza el reloj (tests).
func (r *CacheRepository) WithClock(now func() time.Time) *CacheRepository {
	r.now = now
	return r
}

// StoreKey arma la key física del challenge.
func StoreKey(namespace, key string) string {
	return namespace + ":" + key
}

func (r *CacheRepository) Save(ctx context.Context, key string, c *Challenge) error {
	ttl := c.ExpireAt.Sub(r.now())
	if ttl <= 0 {
		return ErrAlreadyExpired
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("captcha: encode challenge: %w", err)
	}
	if err := r.store.Set(ctx, StoreKey(r.namespace, key), string(b), ttl); err != nil {
		return fmt.Errorf("%w: save: %w", ErrStorage, err)
	}
	return nil
}

func (r *CacheRepository) Get(ctx context.Context, key string) (*Challenge, error) {
	raw, err := r.store.Get(ctx, StoreKey(r.namespace, key))
	return r.decode(raw, err, "get")
}

func (r *CacheRepository) Consume(ctx context.Context, key string) (*Challenge, error) {
	raw, err := r.store.GetDel(ctx, StoreKey(r.namespace, key))
	return r.decode(raw, err, "consume")
}

func (r *CacheRepository) Remove(ctx context.Context, key string) error {
	if err := r.store.Delete(ctx, StoreKey(r.namespace, key)); err != nil {
		return fmt.Errorf("%w: remove: %w", ErrStorage, err)
	}
	return nil
}

func (r *CacheRepository) decode(raw string, err error, op string) (*Challenge, error) {
	if cache.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
	}
	var c Challenge
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		// entrada corrupta: se trata como ausente
		return nil, nil
	}
	// el store ya expira por TTL; esto cubre el redondeo del backend
	if c.Expired(r.now()) {
		return nil, nil
	}
	return &c, nil
}
