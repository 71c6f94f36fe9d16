// Package secretbox cifra valores sensibles de la config (client secrets,
// DSN, API keys) con AES-256-GCM. Un valor cifrado se escribe como
//
//	enc:base64(nonce)|base64(ciphertext)
//
// y se descifra al cargar la config con la clave de SECRETBOX_MASTER_KEY.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	EnvVar = "SECRETBOX_MASTER_KEY"
	Prefix = "enc:"

	keyLen = 32  // AES-256
	sep    = "|" // nonce|ciphertext
)

var (
	ErrNoKey     = fmt.Errorf("secretbox: %s no seteada; genere una con: openssl rand -base64 32", EnvVar)
	ErrMalformed = errors.New("secretbox: formato inválido, esperado enc:base64(nonce)|base64(ciphertext)")
)

// Box sella y abre valores con una clave fija.
type Box struct {
	aead cipher.AEAD
}

// New arma un Box con una clave de 32 bytes.
func New(key []byte) (*Box, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("secretbox: clave de %d bytes (requiere %d)", len(key), keyLen)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// FromEnv lee la clave de SECRETBOX_MASTER_KEY. ErrNoKey si no está.
func FromEnv() (*Box, error) {
	raw := strings.TrimSpace(os.Getenv(EnvVar))
	if raw == "" {
		return nil, ErrNoKey
	}
	key, err := ParseKey(raw)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// ParseKey acepta base64 (con o sin padding) o hex.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil && len(b) == keyLen {
			return b, nil
		}
	}
	if len(s) == 2*keyLen {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("secretbox: %s no decodifica a %d bytes (base64 o hex)", EnvVar, keyLen)
}

// IsSealed indica si v tiene el prefijo enc:.
func IsSealed(v string) bool { return strings.HasPrefix(v, Prefix) }

// Seal cifra plain con nonce aleatorio.
func (b *Box) Seal(plain string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ct := b.aead.Seal(nil, nonce, []byte(plain), nil)
	return Prefix + base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Open descifra un valor sellado.
func (b *Box) Open(sealed string) (string, error) {
	body, ok := strings.CutPrefix(sealed, Prefix)
	if !ok {
		return "", ErrMalformed
	}
	n64, c64, ok := strings.Cut(body, sep)
	if !ok {
		return "", ErrMalformed
	}
	nonce, err := base64.StdEncoding.DecodeString(n64)
	if err != nil || len(nonce) != b.aead.NonceSize() {
		return "", ErrMalformed
	}
	ct, err := base64.StdEncoding.DecodeString(c64)
	if err != nil {
		return "", ErrMalformed
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("secretbox: gcm open: %w", err)
	}
	return string(pt), nil
}

// OpenAll reemplaza in-place los valores sellados. La clave se pide solo
// si hay algo que abrir.
func OpenAll(load func() (*Box, error), values ...*string) error {
	var box *Box
	for _, v := range values {
		if v == nil || !IsSealed(*v) {
			continue
		}
		if box == nil {
			var err error
			if box, err = load(); err != nil {
				return err
			}
		}
		pt, err := box.Open(*v)
		if err != nil {
			return err
		}
		*v = pt
	}
	return nil
}
