package dispatch

import (
	"context"

	"github.com/dropDatabas3/hellogate/internal/observability/logger"
)

// Log es el dispatcher de desarrollo: renderiza la plantilla y la loguea.
// Incluye el código en claro, no usar en prod.
type Log struct {
	Channel   string
	Templates *Templates
}

func NewLog(channel string, tpl *Templates) *Log {
	if tpl == nil {
		tpl = DefaultTemplates()
	}
	return &Log{Channel: channel, Templates: tpl}
}

func (l *Log) Send(ctx context.Context, target, templateID string, params map[string]string) error {
	msg, err := l.Templates.Render(templateID, params)
	if err != nil {
		return err
	}
	logger.From(ctx).Warn("DEV dispatch (not delivered)",
		logger.Component("dispatch.log"),
		logger.Channel(l.Channel),
		logger.String("to", target),
		logger.String("subject", msg.Subject),
		logger.String("text", msg.Text),
	)
	return nil
}
