package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field alias para no importar zap en los callers.
type Field = zap.Field

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field { return zap.String("method", v) }
func Path(v string) zap.Field { return zap.String("path", v) }
func Status(v int) zap.Field { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - DOMINIO
// =================================================================================

// Channel identifica el canal de captcha (image, sms, email).
func Channel(v string) zap.Field { return zap.String("channel", v) }

// Target es el destinatario del challenge. Enmascarar antes de loguear en prod.
func Target(v string) zap.Field { return zap.String("target", Mask(v)) }

// RegistrationID identifica la registración OAuth2 (ej: "feishu-corp").
func RegistrationID(v string) zap.Field { return zap.String("registration_id", v) }

// Provider es el nombre lógico del vendor (ej: "feishu").
func Provider(v string) zap.Field { return zap.String("provider", v) }

// AccountID identifica la cuenta local.
func AccountID(v string) zap.Field { return zap.String("account_id", v) }

// SessionID se loguea truncado.
func SessionID(v string) zap.Field {
	if len(v) > 8 {
		v = v[:8]
	}
	return zap.String("session", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field { return zap.String("op", v) }
func Layer(v string) zap.Field { return zap.String("layer", v) }
func Err(err error) zap.Field { return zap.Error(err) }
func Key(v string) zap.Field { return zap.String("key", v) }

func String(key, v string) zap.Field { return zap.String(key, v) }
func Int(key string, v int) zap.Field { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field { return zap.Any(key, v) }

// Mask oculta todo salvo los últimos 4 caracteres.
func Mask(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	b := []byte(v)
	for i := 0; i < len(b)-4; i++ {
		b[i] = '*'
	}
	return string(b)
}
