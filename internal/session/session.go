// Package session implementa las sesiones server-side del gateway: el
// estado vive en el almacén TTL (internal/cache) bajo session:{id} y el
// browser solo lleva el id en una cookie HttpOnly.
//
// La sesión guarda la cuenta autenticada y atributos arbitrarios (el
// authorization request pendiente de federation, el estado de binding).
package session

import (
	"context"
	"encoding/json"
	"time"
)

// Session es el estado server-side de un browser.
type Session struct {
	ID              string                     `json:"id"`
	AccountID       string                     `json:"account_id,omitempty"`
	AuthMethod      string                     `json:"auth_method,omitempty"`
	AuthenticatedAt time.Time                  `json:"authenticated_at,omitempty"`
	CreatedAt       time.Time                  `json:"created_at"`
	Attrs           map[string]json.RawMessage `json:"attrs,omitempty"`

	isNew bool
}

// Authenticated indica si hay una cuenta local asociada.
func (s *Session) Authenticated() bool {
	return s != nil && s.AccountID != ""
}

// IsNew es true si la sesión no existía en el store.
func (s *Session) IsNew() bool { return s.isNew }

// Put guarda un atributo serializado como JSON.
func (s *Session) Put(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if s.Attrs == nil {
		s.Attrs = map[string]json.RawMessage{}
	}
	s.Attrs[key] = b
	return nil
}

// Get decodifica un atributo en out. (false, nil) si no existe.
func (s *Session) Get(key string, out any) (bool, error) {
	b, ok := s.Attrs[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}

func (s *Session) Delete(key string) {
	delete(s.Attrs, key)
}

// SignIn marca la sesión como autenticada por accountID.
func (s *Session) SignIn(accountID, method string, at time.Time) {
	s.AccountID = accountID
	s.AuthMethod = method
	s.AuthenticatedAt = at
}

// ============================================================================
// Context
// ============================================================================

type ctxKey struct{}

func WithContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// From devuelve la sesión cargada por el middleware o nil.
func From(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
