package secretbox

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte { return bytes.Repeat([]byte{7}, 32) }

func TestSealOpen(t *testing.T) {
	box, err := New(testKey())
	require.NoError(t, err)

	sealed, err := box.Seal("client-secret")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "client-secret", plain)

	// otra clave no abre
	other, _ := New(bytes.Repeat([]byte{9}, 32))
	_, err = other.Open(sealed)
	assert.Error(t, err)

	_, err = box.Open("enc:nope")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseKey(t *testing.T) {
	k := testKey()
	for _, s := range []string{
		base64.StdEncoding.EncodeToString(k),
		base64.RawStdEncoding.EncodeToString(k),
		hex.EncodeToString(k),
	} {
		got, err := ParseKey(s)
		require.NoError(t, err, s)
		assert.Equal(t, k, got)
	}
	_, err := ParseKey("short")
	assert.Error(t, err)
}

func TestOpenAll(t *testing.T) {
	box, _ := New(testKey())
	sealed, _ := box.Seal("pg://secret")
	dsn, plain := sealed, "already-plain"

	calls := 0
	load := func() (*Box, error) { calls++; return box, nil }
	require.NoError(t, OpenAll(load, &dsn, &plain, nil))
	assert.Equal(t, "pg://secret", dsn)
	assert.Equal(t, "already-plain", plain)
	assert.Equal(t, 1, calls)

	// sin valores sellados no se pide la clave
	calls = 0
	require.NoError(t, OpenAll(func() (*Box, error) { calls++; return nil, ErrNoKey }, &plain))
	assert.Zero(t, calls)

	sealed2, _ := box.Seal("x")
	assert.ErrorIs(t, OpenAll(func() (*Box, error) { return nil, ErrNoKey }, &sealed2), ErrNoKey)
}
