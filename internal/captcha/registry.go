package captcha

import (
	"fmt"
	"net/http"

	"github.com/gobwas/glob"
)

// ServiceRegistry resuelve qué canal (y qué acción) aplica a un request
// comparando el path con las URLs de envío y validación de cada canal.
// Los patrones son globs con '/' como separador: "*" no cruza segmentos,
// "**" sí.
//
// Se arma una vez al arrancar; Resolve solo lee.
type ServiceRegistry struct {
	typeParam string
	entries   []registration
}

type registration struct {
	svc      ChannelService
	send     []glob.Glob
	validate []glob.Glob
}

// NewServiceRegistry; typeParam es el discriminador (ej: "captcha_type")
// que elige canal cuando varios matchean el mismo path.
func NewServiceRegistry(typeParam string) *ServiceRegistry {
	return &ServiceRegistry{typeParam: typeParam}
}

// Register agrega un canal. El orden de registro define la prioridad.
func (r *ServiceRegistry) Register(svc ChannelService, sendURLs, validateURLs []string) error {
	reg := registration{svc: svc}
	for _, p := range sendURLs {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return fmt.Errorf("captcha: %s send url %q: %w", svc.Channel(), p, err)
		}
		reg.send = append(reg.send, g)
	}
	for _, p := range validateURLs {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return fmt.Errorf("captcha: %s validate url %q: %w", svc.Channel(), p, err)
		}
		reg.validate = append(reg.validate, g)
	}
	r.entries = append(r.entries, reg)
	return nil
}

// Channels lista los canales registrados, en orden.
func (r *ServiceRegistry) Channels() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.svc.Channel())
	}
	return out
}

// Resolve devuelve (nil, ActionNone) si ningún canal aplica.
//
// Si varios canales matchean, el discriminador elige entre ellos; si nombra
// un canal que no matchea se ignora (no sirve para saltear el gate) y gana
// el primero registrado.
func (r *ServiceRegistry) Resolve(req *http.Request) (ChannelService, Action) {
	path := req.URL.Path

	var (
		first    ChannelService
		firstAct Action
		want     string
		wantRead bool
	)
	for _, e := range r.entries {
		act := e.match(path)
		if act == ActionNone {
			continue
		}
		if first == nil {
			first, firstAct = e.svc, act
			continue
		}
		if !wantRead {
			want, wantRead = param(req, r.typeParam, ""), true
		}
		if want != "" && e.svc.Channel() == want {
			return e.svc, act
		}
	}
	if first == nil {
		return nil, ActionNone
	}
	return first, firstAct
}

func (e registration) match(path string) Action {
	for _, g := range e.send {
		if g.Match(path) {
			return ActionSend
		}
	}
	for _, g := range e.validate {
		if g.Match(path) {
			return ActionValidate
		}
	}
	return ActionNone
}
