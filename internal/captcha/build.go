package captcha

import (
	"time"

	"github.com/dropDatabas3/hellogate/internal/cache"
	"github.com/dropDatabas3/hellogate/internal/dispatch"
)

// NewImageService arma el canal image: key elegida por el cliente (o
// generada), comparación sin mayúsculas, respuesta PNG.
func NewImageService(store cache.Client, gen Generator, keyParam, codeParam string, resend time.Duration) *Service {
	return &Service{
		Name:            ChannelImage,
		Generator:       gen,
		Repository:      NewRepository(store, ChannelImage),
		Sender:          ImageSender{},
		Throttle:        newThrottle(store, ChannelImage, resend),
		KeyParam:        keyParam,
		CodeParam:       codeParam,
		CaseInsensitive: true,
	}
}

// NewMessageService arma un canal de mensaje (sms, email): la key es el
// destino y el código se despacha con d.
func NewMessageService(channel string, store cache.Client, gen Generator, d dispatch.Dispatcher, templateID, targetParam, codeParam string, resend time.Duration) *Service {
	return &Service{
		Name:       channel,
		Generator:  gen,
		Repository: NewRepository(store, channel),
		Sender: &MessageSender{
			Channel:    channel,
			Dispatcher: d,
			TemplateID: templateID,
		},
		Throttle:    newThrottle(store, channel, resend),
		KeyParam:    targetParam,
		CodeParam:   codeParam,
		KeyIsTarget: true,
	}
}

func newThrottle(store cache.Client, channel string, interval time.Duration) *Throttle {
	if interval <= 0 {
		return nil
	}
	return &Throttle{Store: store, Channel: channel, Interval: interval}
}
