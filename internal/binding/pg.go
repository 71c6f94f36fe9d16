package binding

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLinkStore persiste vínculos en la tabla social_binding.
type PGLinkStore struct {
	pool *pgxpool.Pool
}

func NewPGLinkStore(pool *pgxpool.Pool) *PGLinkStore {
	return &PGLinkStore{pool: pool}
}

func (s *PGLinkStore) FindLink(ctx context.Context, registrationID, subjectID string) (string, bool, error) {
	const q = `SELECT account_id FROM social_binding WHERE registration_id = $1 AND subject_id = $2`
	var accountID string
	err := s.pool.QueryRow(ctx, q, registrationID, subjectID).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: find: %w", ErrStorage, err)
	}
	return accountID, true, nil
}

// CreateLink inserta con ON CONFLICT DO NOTHING; si no insertó, compara
// con la cuenta ya vinculada.
func (s *PGLinkStore) CreateLink(ctx context.Context, l Link) error {
	const q = `
		INSERT INTO social_binding (registration_id, subject_id, account_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (registration_id, subject_id) DO NOTHING`
	tag, err := s.pool.Exec(ctx, q, l.RegistrationID, l.SubjectID, l.AccountID)
	if err != nil {
		return fmt.Errorf("%w: create: %w", ErrStorage, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	existing, found, err := s.FindLink(ctx, l.RegistrationID, l.SubjectID)
	if err != nil {
		return err
	}
	if found && existing != l.AccountID {
		return ErrLinkConflict
	}
	return nil
}
