package federation

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StateCodec firma y valida el parámetro state (JWT HS256). El state lleva
// el registrationId, así el callback detecta un state de otro proveedor.
type StateCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type stateClaims struct {
	RegistrationID string `json:"rid"`
	jwt.RegisteredClaims
}

func NewStateCodec(secret []byte, ttl time.Duration) *StateCodec {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateCodec{secret: secret, ttl: ttl, now: time.Now}
}

// TTL es la vida de un state emitido.
func (c *StateCodec) TTL() time.Duration { return c.ttl }

// Issue genera un state nuevo (único por request).
func (c *StateCodec) Issue(registrationID string) (string, error) {
	now := c.now()
	claims := stateClaims{
		RegistrationID: registrationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("federation: sign state: %w", err)
	}
	return s, nil
}

// Parse valida el state y devuelve el registrationId que lleva.
func (c *StateCodec) Parse(state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", errors.Join(ErrInvalidState, err)
	}
	if claims.RegistrationID == "" {
		return "", ErrInvalidState
	}
	return claims.RegistrationID, nil
}
