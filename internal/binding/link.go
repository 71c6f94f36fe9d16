package binding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/hellogate/internal/cache"
)

var (
	// ErrLinkConflict: el subject ya está vinculado a otra cuenta.
	ErrLinkConflict = errors.New("binding: subject already linked to another account")
	ErrStorage      = errors.New("binding: storage error")
)

// Link es el vínculo persistido (registrationId, subjectId) -> cuenta local.
type Link struct {
	RegistrationID string    `json:"registration_id"`
	SubjectID      string    `json:"subject_id"`
	AccountID      string    `json:"account_id"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// LinkStore persiste vínculos. CreateLink es idempotente para la misma
// cuenta y devuelve ErrLinkConflict si el subject ya apunta a otra.
type LinkStore interface {
	FindLink(ctx context.Context, registrationID, subjectID string) (accountID string, found bool, err error)
	CreateLink(ctx context.Context, l Link) error
}

// CacheLinkStore guarda vínculos en el almacén TTL, sin expiración.
type CacheLinkStore struct {
	store cache.Client
}

func NewCacheLinkStore(c cache.Client) *CacheLinkStore {
	return &CacheLinkStore{store: c}
}

// LinkKey es link:{registrationId}:{subjectId}.
func LinkKey(registrationID, subjectID string) string {
	return "link:" + registrationID + ":" + subjectID
}

func (s *CacheLinkStore) FindLink(ctx context.Context, registrationID, subjectID string) (string, bool, error) {
	v, err := s.store.Get(ctx, LinkKey(registrationID, subjectID))
	if cache.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: find: %w", ErrStorage, err)
	}
	return v, true, nil
}

func (s *CacheLinkStore) CreateLink(ctx context.Context, l Link) error {
	key := LinkKey(l.RegistrationID, l.SubjectID)
	ok, err := s.store.SetNX(ctx, key, l.AccountID, 0)
	if err != nil {
		return fmt.Errorf("%w: create: %w", ErrStorage, err)
	}
	if ok {
		return nil
	}
	existing, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: create: %w", ErrStorage, err)
	}
	if existing != l.AccountID {
		return ErrLinkConflict
	}
	return nil
}
