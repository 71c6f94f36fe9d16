// Package captcha implementa el gate de verificación: challenges de un solo
// uso con vencimiento (imagen, SMS, e-mail) generados, guardados, enviados y
// validados por canal.
//
// Flujo de un canal:
//
//	send:     reserve throttle -> Generate -> Repository.Save -> Sender.Send
//	validate: Repository.Consume -> compare
//
// Toda la información mutable compartida vive en el store con TTL
// (internal/cache); los servicios no guardan estado propio.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Canales soportados.
const (
	ChannelImage = "image"
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// Challenge es un código de verificación con vencimiento.
// Payload (la imagen renderizada) nunca se persiste.
type Challenge struct {
	Code     string    `json:"code"`
	Target   string    `json:"target,omitempty"`
	ExpireAt time.Time `json:"expire_at"`
	Payload  []byte    `json:"-"`
}

// Expired indica si el challenge ya no puede validar.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpireAt)
}

// ExpiresIn tiempo restante (0 si ya venció).
func (c *Challenge) ExpiresIn(now time.Time) time.Duration {
	d := c.ExpireAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// =================================================================================
// ERRORES
// =================================================================================

var (
	// ErrStorage: el store con TTL no está disponible. No se reintenta.
	ErrStorage = errors.New("captcha: storage unavailable")

	// ErrChallengeInvalid: código incorrecto, vencido o ausente.
	ErrChallengeInvalid = errors.New("captcha: challenge invalid")

	// ErrThrottleExceeded: reenvío al mismo destino antes del intervalo mínimo.
	ErrThrottleExceeded = errors.New("captcha: resend throttled")

	// ErrMissingTarget: el request de envío no trae destino (mobile/email).
	ErrMissingTarget = errors.New("captcha: missing target")

	// ErrAlreadyExpired: se intentó guardar un challenge vencido.
	ErrAlreadyExpired = errors.New("captcha: challenge already expired")
)

// SendError envuelve el fallo del colaborador de envío.
type SendError struct {
	Channel string
	Target  string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("captcha: send via %s failed: %v", e.Channel, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ThrottleError lleva cuánto falta para poder reenviar.
type ThrottleError struct {
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("captcha: resend throttled, retry after %s", e.RetryAfter)
}

func (e *ThrottleError) Is(target error) bool { return target == ErrThrottleExceeded }

// =================================================================================
// CONTEXTO
// =================================================================================

// Verified describe un challenge validado con éxito en este request.
type Verified struct {
	Channel string
	Key     string
	Target  string
}

type verifiedKey struct{}

// WithVerified guarda el resultado de la validación para los handlers siguientes.
func WithVerified(ctx context.Context, v Verified) context.Context {
	return context.WithValue(ctx, verifiedKey{}, v)
}

// VerifiedFrom recupera el challenge validado, si lo hay.
func VerifiedFrom(ctx context.Context) (Verified, bool) {
	v, ok := ctx.Value(verifiedKey{}).(Verified)
	return v, ok
}
