package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client, "", 2, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "10.0.0.1|/captcha/sms")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := l.Allow(ctx, "10.0.0.1|/captcha/sms")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	// otra key no comparte ventana
	res, err = l.Allow(ctx, "10.0.0.2|/captcha/sms")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	l := NewMemoryLimiter(3, time.Hour)
	ctx := context.Background()

	var last Result
	for i := 0; i < 4; i++ {
		res, err := l.Allow(ctx, "ip")
		require.NoError(t, err)
		last = res
		if i < 3 {
			assert.True(t, res.Allowed, "hit %d", i+1)
		}
	}
	assert.False(t, last.Allowed)
	assert.Equal(t, int64(4), last.CurrentHits)
}
