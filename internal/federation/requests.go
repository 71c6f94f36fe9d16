package federation

import (
	"encoding/json"
	"fmt"
	"time"
)

// Attributes es la vista mínima de la sesión que usa federation.
type Attributes interface {
	Put(key string, v any) error
	Get(key string, out any) (bool, error)
	Delete(key string)
}

const (
	requestAttrPrefix = "oauth2:authz:"
	requestIndexAttr  = "oauth2:authz-index"

	// MaxPendingRequests: requests sin callback que guarda una sesión. Al
	// pasarse se descarta el más viejo.
	MaxPendingRequests = 5
)

type pendingRef struct {
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveAuthorizationRequest guarda el request bajo su state. Antes descarta
// los pendientes con más de maxAge (0 = sin límite de edad) y, si ya hay
// MaxPendingRequests, los más viejos.
func SaveAuthorizationRequest(s Attributes, req *AuthorizationRequest, maxAge time.Duration) error {
	idx := loadIndex(s)
	kept := make([]pendingRef, 0, len(idx)+1)
	for _, ref := range idx {
		if maxAge > 0 && req.CreatedAt.Sub(ref.CreatedAt) >= maxAge {
			s.Delete(requestAttrPrefix + ref.State)
			continue
		}
		kept = append(kept, ref)
	}
	for len(kept) >= MaxPendingRequests {
		s.Delete(requestAttrPrefix + kept[0].State)
		kept = kept[1:]
	}

	if err := s.Put(requestAttrPrefix+req.State, req); err != nil {
		return err
	}
	return s.Put(requestIndexAttr, append(kept, pendingRef{State: req.State, CreatedAt: req.CreatedAt}))
}

// loadIndex: un índice ilegible se trata como vacío.
func loadIndex(s Attributes) []pendingRef {
	var idx []pendingRef
	if ok, err := s.Get(requestIndexAttr, &idx); !ok || err != nil {
		return nil
	}
	return idx
}

// TakeAuthorizationRequest carga y borra el request guardado para state.
// Un state sin request guardado (reutilizado o de otra sesión) es
// ErrInvalidState.
func TakeAuthorizationRequest(s Attributes, state string) (*AuthorizationRequest, error) {
	if state == "" {
		return nil, fmt.Errorf("%w: missing state", ErrInvalidState)
	}
	var req AuthorizationRequest
	ok, err := s.Get(requestAttrPrefix+state, &req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: no pending request", ErrInvalidState)
	}
	s.Delete(requestAttrPrefix + state)

	idx := loadIndex(s)
	kept := idx[:0]
	for _, ref := range idx {
		if ref.State != state {
			kept = append(kept, ref)
		}
	}
	if len(kept) == 0 {
		s.Delete(requestIndexAttr)
	} else if err := s.Put(requestIndexAttr, kept); err != nil {
		return nil, err
	}
	return &req, nil
}

// MapAttributes es un Attributes en memoria (tests, callers sin sesión).
type MapAttributes map[string]json.RawMessage

func (m MapAttributes) Put(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m[key] = b
	return nil
}

func (m MapAttributes) Get(key string, out any) (bool, error) {
	b, ok := m[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}

func (m MapAttributes) Delete(key string) { delete(m, key) }
