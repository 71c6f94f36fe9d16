// Package dispatch contiene los colaboradores de envío de mensajes (SMS, e-mail)
// que usan los canales de captcha. Ninguna implementación reintenta: un fallo
// se devuelve envuelto en ErrDispatch y el caller decide.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
)

// ErrDispatch envuelve cualquier fallo del colaborador de envío.
var ErrDispatch = errors.New("dispatch: send failed")

// Dispatcher envía un mensaje renderizado a partir de una plantilla.
type Dispatcher interface {
	Send(ctx context.Context, target, templateID string, params map[string]string) error
}

// Func adapta una función a Dispatcher.
type Func func(ctx context.Context, target, templateID string, params map[string]string) error

func (f Func) Send(ctx context.Context, target, templateID string, params map[string]string) error {
	return f(ctx, target, templateID, params)
}

// Message es el resultado de renderizar una plantilla.
type Message struct {
	Subject string
	Text    string
}

// Templates resuelve templateID -> subject/texto. Las plantillas usan
// text/template con los params como datos (ej: {{.code}}).
type Templates struct {
	subject map[string]*template.Template
	text    map[string]*template.Template
}

// DefaultTemplates trae la plantilla "captcha".
func DefaultTemplates() *Templates {
	t := NewTemplates()
	_ = t.Add("captcha",
		"Tu código de verificación",
		"Tu código de verificación es {{.code}}. Vence en {{.expire_minutes}} minutos.")
	return t
}

func NewTemplates() *Templates {
	return &Templates{
		subject: map[string]*template.Template{},
		text:    map[string]*template.Template{},
	}
}

// Add registra (o reemplaza) una plantilla.
func (t *Templates) Add(id, subject, text string) error {
	st, err := template.New(id + ".subject").Option("missingkey=zero").Parse(subject)
	if err != nil {
		return fmt.Errorf("dispatch: template %s subject: %w", id, err)
	}
	tt, err := template.New(id + ".text").Option("missingkey=zero").Parse(text)
	if err != nil {
		return fmt.Errorf("dispatch: template %s text: %w", id, err)
	}
	t.subject[id] = st
	t.text[id] = tt
	return nil
}

// Render aplica los params a la plantilla.
func (t *Templates) Render(id string, params map[string]string) (Message, error) {
	tt, ok := t.text[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: unknown template %q", ErrDispatch, id)
	}
	var sb, tb bytes.Buffer
	if err := t.subject[id].Execute(&sb, params); err != nil {
		return Message{}, fmt.Errorf("%w: render %s: %v", ErrDispatch, id, err)
	}
	if err := tt.Execute(&tb, params); err != nil {
		return Message{}, fmt.Errorf("%w: render %s: %v", ErrDispatch, id, err)
	}
	return Message{Subject: sb.String(), Text: tb.String()}, nil
}
