package captcha

import (
	"math/rand/v2"
	"sync"
	"time"
)

const (
	// DefaultCharset evita caracteres ambiguos (0/O, 1/I).
	DefaultCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	digits         = "0123456789"
)

// Generator produce un challenge nuevo con ExpireAt = now + expiry.
type Generator interface {
	Generate() (*Challenge, error)
}

// source serializa el acceso a un *rand.Rand inyectado; sin Rand usa el
// generador global (seguro para concurrencia). No es material secreto.
type source struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *source) IntN(n int) int {
	if s.r == nil {
		return rand.IntN(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

func randomCode(src *source, charset string, length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[src.IntN(len(charset))]
	}
	return string(b)
}

// NumericGenerator genera códigos solo numéricos (SMS, e-mail).
type NumericGenerator struct {
	Length int
	Expiry time.Duration
	Now    func() time.Time

	src source
}

// NewNumericGenerator; rnd puede ser nil.
func NewNumericGenerator(length int, expiry time.Duration, rnd *rand.Rand) *NumericGenerator {
	return &NumericGenerator{Length: length, Expiry: expiry, Now: time.Now, src: source{r: rnd}}
}

func (g *NumericGenerator) Generate() (*Challenge, error) {
	return &Challenge{
		Code:     randomCode(&g.src, digits, g.Length),
		ExpireAt: g.Now().Add(g.Expiry),
	}, nil
}
