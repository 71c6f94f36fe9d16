// Package account es el directorio de cuentas locales contra el que se
// autentica el login por contraseña y por móvil, y al que se vinculan las
// identidades federadas.
package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/hellogate/internal/observability/logger"
	"github.com/dropDatabas3/hellogate/internal/security/password"
)

var (
	ErrNotFound           = errors.New("account: not found")
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	ErrDisabled           = errors.New("account: disabled")
)

// Account es una cuenta local.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Mobile       string    `json:"mobile,omitempty"`
	Email        string    `json:"email,omitempty"`
	Disabled     bool      `json:"disabled,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store es el backend de cuentas. Los Find* devuelven ErrNotFound si no hay
// coincidencia.
type Store interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByMobile(ctx context.Context, mobile string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
}

// dummyHash se verifica cuando el usuario no existe, para que el tiempo de
// respuesta no delate qué usernames existen.
var dummyHash = func() string {
	h, _ := password.Hash(password.Default, "hellogate-dummy-password")
	return h
}()

// Service agrega la lógica de autenticación sobre un Store.
type Service struct {
	Store Store
}

func NewService(s Store) *Service { return &Service{Store: s} }

// Authenticate valida username + contraseña. Usuario inexistente y
// contraseña incorrecta devuelven el mismo ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, plain string) (*Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || plain == "" {
		return nil, ErrInvalidCredentials
	}
	acc, err := s.Store.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		password.Verify(plain, dummyHash)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !password.Verify(plain, acc.PasswordHash) {
		logger.From(ctx).Info("password mismatch", logger.Component("account"), logger.AccountID(acc.ID))
		return nil, ErrInvalidCredentials
	}
	if acc.Disabled {
		return nil, ErrDisabled
	}
	return acc, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*Account, error) {
	return s.Store.FindByID(ctx, id)
}

func (s *Service) FindByMobile(ctx context.Context, mobile string) (*Account, error) {
	return s.Store.FindByMobile(ctx, strings.TrimSpace(mobile))
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.Store.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}
