package middlewares

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/hellogate/internal/captcha"
	"github.com/dropDatabas3/hellogate/internal/http/errors"
	"github.com/dropDatabas3/hellogate/internal/observability/logger"
)

// CaptchaResolver resuelve canal + acción para un request.
type CaptchaResolver interface {
	Resolve(r *http.Request) (captcha.ChannelService, captcha.Action)
}

// WithCaptcha es el gate de verificación. Va antes del routing normal:
//   - ningún canal aplica: pasa de largo
//   - URL de envío: genera, guarda y envía; corta la cadena
//   - URL de validación: consume el challenge; si no valida responde 401,
//     si valida sigue con captcha.Verified en el contexto
func WithCaptcha(reg CaptchaResolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			svc, action := reg.Resolve(r)
			switch action {
			case captcha.ActionSend:
				if err := svc.Send(r.Context(), w, r); err != nil {
					writeCaptchaError(w, r, svc.Channel(), err)
				}
				return

			case captcha.ActionValidate:
				v, err := svc.Validate(r.Context(), r)
				if err != nil {
					writeCaptchaError(w, r, svc.Channel(), err)
					return
				}
				next.ServeHTTP(w, r.WithContext(captcha.WithVerified(r.Context(), v)))

			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// CaptchaError traduce los errores del gate a AppError.
func CaptchaError(err error) *errors.AppError {
	var (
		te *captcha.ThrottleError
		se *captcha.SendError
	)
	switch {
	case stderrors.As(err, &te):
		return errors.ErrThrottleExceeded.
			WithHeader("Retry-After", strconv.Itoa(ceilSeconds(te.RetryAfter))).
			WithCause(err)
	case stderrors.Is(err, captcha.ErrThrottleExceeded):
		return errors.ErrThrottleExceeded.WithCause(err)
	case stderrors.Is(err, captcha.ErrChallengeInvalid):
		return errors.ErrChallengeInvalid.WithCause(err)
	case stderrors.Is(err, captcha.ErrMissingTarget):
		return errors.ErrMissingTarget.WithCause(err)
	case stderrors.As(err, &se):
		return errors.ErrSendFailed.WithDetail(se.Channel).WithCause(err)
	case stderrors.Is(err, captcha.ErrStorage):
		return errors.ErrServiceUnavailable.WithCause(err)
	default:
		return errors.ErrInternalServerError.WithCause(err)
	}
}

func writeCaptchaError(w http.ResponseWriter, r *http.Request, channel string, err error) {
	appErr := CaptchaError(err)
	if appErr.HTTPStatus >= 500 {
		logger.From(r.Context()).Error("captcha gate failed",
			logger.Component("captcha"), logger.Channel(channel), logger.Err(err))
	}
	errors.WriteError(w, appErr)
}
