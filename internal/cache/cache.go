// Package cache provee el almacén clave/valor con TTL que usan captcha,
// sesiones, throttling y vínculos sociales.
//
// Soporta:
//   - Memory (in-process, go-cache; desarrollo/testing o instancia única)
//   - Redis (distribuido, producción)
//
// Las operaciones condicionales (SetNX, GetDel) son atómicas en ambos
// backends: sobre ellas se apoyan el throttle de reenvío y el consumo de
// challenges de un solo uso.
package cache

import (
	"context"
	"errors"
	"time"
)

// Client define las operaciones del almacén.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor. Si ttl es 0, no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX guarda el valor solo si la key no existe. Retorna true si lo guardó.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// GetDel obtiene y elimina la key en una sola operación.
	// Retorna ErrNotFound si no existe.
	GetDel(ctx context.Context, key string) (string, error)

	// Delete elimina una key. No falla si no existe.
	Delete(ctx context.Context, key string) error

	// Exists verifica si una key existe.
	Exists(ctx context.Context, key string) (bool, error)

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close libera recursos.
	Close() error
}

// Config configuración para crear un cliente.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string // host:port (redis)
	Password   string
	DB         int
	Prefix     string        // prefijo para todas las keys
	DefaultTTL time.Duration // memory: TTL usado cuando ttl < 0
}

// ErrNotFound se retorna cuando la key no existe.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New crea un cliente según la configuración.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	default:
		return nil, errors.New("cache: unknown driver " + cfg.Driver)
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
