package captcha

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/hellogate/internal/metrics"
	"github.com/dropDatabas3/hellogate/internal/observability/logger"
	"github.com/google/uuid"
)

const (
	// HeaderKey lleva la key de correlación (alternativa al parámetro).
	HeaderKey = "X-Captcha-Key"
	// HeaderCode lleva el código (alternativa al parámetro).
	HeaderCode = "X-Captcha-Code"

	maxKeyLen = 128
)

// Action es lo que el request pide al canal.
type Action int

const (
	ActionNone Action = iota
	ActionSend
	ActionValidate
)

func (a Action) String() string {
	switch a {
	case ActionSend:
		return "send"
	case ActionValidate:
		return "validate"
	default:
		return "none"
	}
}

// ChannelService es un canal completo: genera, guarda, envía y valida.
type ChannelService interface {
	Channel() string
	Send(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	Validate(ctx context.Context, r *http.Request) (Verified, error)
}

// Service implementa ChannelService combinando Generator, Repository y Sender.
type Service struct {
	Name       string
	Generator  Generator
	Repository Repository
	Sender     Sender
	Throttle   *Throttle

	// KeyParam nombre del parámetro con la key de correlación
	// (captcha_key para image, mobile para sms, email para email).
	KeyParam  string
	CodeParam string

	// KeyIsTarget: la key es el destino del mensaje (sms/email). Si es
	// false (image) la key se genera cuando falta y se devuelve en X-Captcha-Key.
	KeyIsTarget bool

	// CaseInsensitive: comparación sin distinguir mayúsculas (image).
	CaseInsensitive bool

	Now func() time.Time
}

func (s *Service) Channel() string { return s.Name }

// Send: reserve throttle -> generate -> save -> send. Si el envío falla se
// libera el throttle y se borra el challenge recién guardado. Un error al
// escribir la respuesta de un canal de mensaje no deshace el envío: el
// código ya llegó al destino.
func (s *Service) Send(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	log := logger.From(ctx).With(logger.Component("captcha"), logger.Channel(s.Name), logger.Op("send"))

	key := param(r, s.KeyParam, HeaderKey)
	if len(key) > maxKeyLen {
		key = ""
	}
	if key == "" {
		if s.KeyIsTarget {
			metrics.ChallengesSent.WithLabelValues(s.Name, "missing_target").Inc()
			return ErrMissingTarget
		}
		key = uuid.NewString()
	}
	target := ""
	if s.KeyIsTarget {
		target = key
	}

	if err := s.Throttle.Reserve(ctx, key); err != nil {
		metrics.ChallengesSent.WithLabelValues(s.Name, outcome(err)).Inc()
		return err
	}

	c, err := s.Generator.Generate()
	if err != nil {
		s.Throttle.Release(ctx, key)
		return err
	}
	c.Target = target

	if err := s.Repository.Save(ctx, key, c); err != nil {
		s.Throttle.Release(ctx, key)
		metrics.ChallengesSent.WithLabelValues(s.Name, outcome(err)).Inc()
		log.Error("challenge save failed", logger.Err(err))
		return err
	}

	if !s.KeyIsTarget {
		w.Header().Set(HeaderKey, key)
	}
	if err := s.Sender.Send(ctx, target, c, w); err != nil {
		s.Throttle.Release(ctx, key)
		_ = s.Repository.Remove(ctx, key)
		metrics.ChallengesSent.WithLabelValues(s.Name, outcome(err)).Inc()
		log.Warn("challenge send failed", logger.Target(target), logger.Err(err))
		return err
	}

	metrics.ChallengesSent.WithLabelValues(s.Name, "ok").Inc()
	log.Debug("challenge sent", logger.Target(target))

	if s.KeyIsTarget {
		if err := writeSent(w, key, c, s.now()); err != nil {
			log.Warn("send response write failed", logger.Target(target), logger.Err(err))
		}
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Validate consume el challenge (siempre se borra) y compara el código.
func (s *Service) Validate(ctx context.Context, r *http.Request) (Verified, error) {
	key := param(r, s.KeyParam, HeaderKey)
	code := param(r, s.CodeParam, HeaderCode)
	if key == "" || len(key) > maxKeyLen {
		metrics.ChallengeValidations.WithLabelValues(s.Name, "invalid").Inc()
		return Verified{}, ErrChallengeInvalid
	}

	stored, err := s.Repository.Consume(ctx, key)
	if err != nil {
		metrics.ChallengeValidations.WithLabelValues(s.Name, outcome(err)).Inc()
		logger.From(ctx).Error("challenge consume failed",
			logger.Component("captcha"), logger.Channel(s.Name), logger.Err(err))
		return Verified{}, err
	}
	if stored == nil || code == "" || !s.match(stored.Code, code) {
		metrics.ChallengeValidations.WithLabelValues(s.Name, "invalid").Inc()
		return Verified{}, ErrChallengeInvalid
	}

	metrics.ChallengeValidations.WithLabelValues(s.Name, "ok").Inc()
	return Verified{Channel: s.Name, Key: key, Target: stored.Target}, nil
}

func (s *Service) match(want, got string) bool {
	if s.CaseInsensitive {
		want, got = strings.ToUpper(want), strings.ToUpper(got)
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// param lee query/form y, si no está, el header.
func param(r *http.Request, name, header string) string {
	if name != "" {
		if v := strings.TrimSpace(r.FormValue(name)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(r.Header.Get(header))
}

func outcome(err error) string {
	var se *SendError
	switch {
	case errors.Is(err, ErrThrottleExceeded):
		return "throttled"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	case errors.As(err, &se):
		return "send_error"
	case errors.Is(err, ErrMissingTarget):
		return "missing_target"
	default:
		return "error"
	}
}
