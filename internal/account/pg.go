package account

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore lee cuentas de la tabla app_account.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const selectAccount = `
	SELECT id, username, password_hash, COALESCE(mobile, ''), COALESCE(email, ''), disabled, created_at
	FROM app_account
`

func (s *PGStore) FindByID(ctx context.Context, id string) (*Account, error) {
	return s.one(ctx, selectAccount+`WHERE id = $1`, id)
}

func (s *PGStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return s.one(ctx, selectAccount+`WHERE lower(username) = lower($1)`, username)
}

func (s *PGStore) FindByMobile(ctx context.Context, mobile string) (*Account, error) {
	return s.one(ctx, selectAccount+`WHERE mobile = $1`, mobile)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.one(ctx, selectAccount+`WHERE lower(email) = lower($1)`, email)
}

// Insert crea una cuenta (CLI / seed).
func (s *PGStore) Insert(ctx context.Context, a Account) error {
	const q = `
		INSERT INTO app_account (id, username, password_hash, mobile, email, disabled)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF(lower($5), ''), $6)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			mobile = EXCLUDED.mobile,
			email = EXCLUDED.email,
			disabled = EXCLUDED.disabled`
	_, err := s.pool.Exec(ctx, q, a.ID, a.Username, a.PasswordHash, a.Mobile, a.Email, a.Disabled)
	return err
}

func (s *PGStore) one(ctx context.Context, q string, arg any) (*Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx, q, arg).Scan(
		&a.ID, &a.Username, &a.PasswordHash, &a.Mobile, &a.Email, &a.Disabled, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
