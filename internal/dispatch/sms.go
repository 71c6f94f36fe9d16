package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dropDatabas3/hellogate/internal/observability/logger"
)

const defaultSMSTimeout = 5 * time.Second

// HTTPSMS envía SMS a través de un gateway HTTP genérico (POST JSON).
//
//	{"to": "...", "sender": "...", "template": "...", "text": "...", "params": {...}}
//
// Cualquier respuesta no-2xx es un fallo; no se reintenta.
type HTTPSMS struct {
	Endpoint   string
	APIKey     string
	Sender     string
	Templates  *Templates
	HTTPClient *http.Client
}

func NewHTTPSMS(endpoint, apiKey, sender string, timeout time.Duration, tpl *Templates) *HTTPSMS {
	if timeout <= 0 {
		timeout = defaultSMSTimeout
	}
	if tpl == nil {
		tpl = DefaultTemplates()
	}
	return &HTTPSMS{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		Sender:     sender,
		Templates:  tpl,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type smsRequest struct {
	To       string            `json:"to"`
	Sender   string            `json:"sender,omitempty"`
	Template string            `json:"template"`
	Text     string            `json:"text"`
	Params   map[string]string `json:"params"`
}

// Send no loguea el código.
func (c *HTTPSMS) Send(ctx context.Context, target, templateID string, params map[string]string) error {
	msg, err := c.Templates.Render(templateID, params)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(smsRequest{
		To:       target,
		Sender:   c.Sender,
		Template: templateID,
		Text:     msg.Text,
		Params:   params,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sms gateway: %v", ErrDispatch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: sms gateway status=%d body=%s", ErrDispatch, resp.StatusCode, string(b))
	}

	logger.From(ctx).Debug("sms dispatched",
		logger.Component("dispatch.sms"),
		logger.Target(target),
		logger.String("template", templateID),
	)
	return nil
}
