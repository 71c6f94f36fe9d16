package password

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}

func TestArgon2RoundTrip(t *testing.T) {
	h, err := Hash(fast, "s3cret!")
	require.NoError(t, err)
	assert.True(t, Verify("s3cret!", h))
	assert.False(t, Verify("wrong", h))

	h2, err := Hash(fast, "s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, h, h2, "salt aleatorio")
}

func TestBcryptVerify(t *testing.T) {
	h, err := HashBcrypt("pw-123456", 4)
	require.NoError(t, err)
	assert.True(t, Verify("pw-123456", h))
	assert.False(t, Verify("pw-1234567", h))
}

func TestVerify_Malformed(t *testing.T) {
	assert.False(t, Verify("x", ""))
	assert.False(t, Verify("x", "plain-text"))
	assert.False(t, Verify("x", "$argon2id$v=19$m=abc$salt$dk"))
	assert.False(t, Verify("x", "$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$ZGs"))

	_, err := Hash(fast, "")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestPolicy(t *testing.T) {
	p := Policy{MinLength: 8, RequireDigit: true, RequireUpper: true}
	require.NoError(t, p.Validate("Abcdefg1"))

	err := p.Validate("abc")
	var pe *PolicyError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, []string{"too_short", "missing_upper", "missing_digit"}, pe.Reasons)
}
