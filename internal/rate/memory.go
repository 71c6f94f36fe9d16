package rate

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter es el equivalente in-process de RedisLimiter.
// Solo sirve para una instancia; con varias réplicas usar Redis.
type MemoryLimiter struct {
	c      *gocache.Cache
	Max    int64
	Window time.Duration
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		c:      gocache.New(window, 2*window),
		Max:    int64(max),
		Window: window,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := time.Now().UTC().Truncate(l.Window)
	k := fmt.Sprintf("%s:%d", key, winStart.Unix())

	// Add es no-op si la ventana ya existe
	_ = l.c.Add(k, int64(0), l.Window)
	hits, err := l.c.IncrementInt64(k, 1)
	if err != nil {
		// la ventana expiró entre Add e Increment: arrancamos otra
		l.c.Set(k, int64(1), l.Window)
		hits = 1
	}

	var ttl time.Duration
	if _, exp, ok := l.c.GetWithExpiration(k); ok && !exp.IsZero() {
		ttl = time.Until(exp)
	}
	return buildResult(hits, l.Max, ttl, l.Window), nil
}
