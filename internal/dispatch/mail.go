package dispatch

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/dropDatabas3/hellogate/internal/observability/logger"
	mail "github.com/go-mail/mail"
)

// SMTPDialer es lo que usa Mail para entregar; *mail.Dialer lo cumple.
type SMTPDialer interface {
	DialAndSend(m ...*mail.Message) error
}

// Mail envía el challenge por e-mail usando SMTP.
type Mail struct {
	From      string
	Templates *Templates
	Dialer    SMTPDialer
}

// MailConfig parámetros SMTP.
type MailConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

func NewMail(cfg MailConfig, tpl *Templates) *Mail {
	if tpl == nil {
		tpl = DefaultTemplates()
	}
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify, // solo dev
	}
	switch cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	default:
		// "auto"/"starttls": go-mail negocia STARTTLS si corresponde
	}
	return &Mail{From: cfg.From, Templates: tpl, Dialer: d}
}

func (m *Mail) Send(ctx context.Context, target, templateID string, params map[string]string) error {
	msg, err := m.Templates.Render(templateID, params)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	mm := mail.NewMessage()
	mm.SetHeader("From", m.From)
	mm.SetHeader("To", target)
	mm.SetHeader("Subject", msg.Subject)
	mm.SetBody("text/plain", msg.Text)

	if err := m.Dialer.DialAndSend(mm); err != nil {
		logger.From(ctx).Error("smtp send failed", logger.Component("dispatch.mail"), logger.Err(err))
		return fmt.Errorf("%w: smtp: %v", ErrDispatch, err)
	}
	return nil
}
