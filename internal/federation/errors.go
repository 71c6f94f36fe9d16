package federation

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRegistration: el registrationId no está configurado. Se
	// devuelve antes de contactar a ningún proveedor.
	ErrUnknownRegistration = errors.New("federation: unknown registration")

	ErrTokenExchangeFailed = errors.New("federation: token exchange failed")
	ErrUserInfoFetchFailed = errors.New("federation: user info fetch failed")

	// ErrInvalidState: state ausente, mal firmado, vencido o sin request guardado.
	ErrInvalidState = errors.New("federation: invalid state")
)

// TokenExchangeError conserva el error del proveedor para diagnóstico.
type TokenExchangeError struct {
	RegistrationID       string
	ProviderErrorCode    string
	ProviderErrorMessage string
	Status               int // HTTP status del proveedor, 0 si no hubo respuesta
	Err                  error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("federation: token exchange failed for %s: status=%d code=%q msg=%q",
		e.RegistrationID, e.Status, e.ProviderErrorCode, e.ProviderErrorMessage)
}

func (e *TokenExchangeError) Is(target error) bool { return target == ErrTokenExchangeFailed }
func (e *TokenExchangeError) Unwrap() error        { return e.Err }

// UserInfoError análogo a TokenExchangeError para el user-info.
type UserInfoError struct {
	RegistrationID       string
	ProviderErrorCode    string
	ProviderErrorMessage string
	Status               int
	Err                  error
}

func (e *UserInfoError) Error() string {
	return fmt.Sprintf("federation: user info fetch failed for %s: status=%d code=%q msg=%q",
		e.RegistrationID, e.Status, e.ProviderErrorCode, e.ProviderErrorMessage)
}

func (e *UserInfoError) Is(target error) bool { return target == ErrUserInfoFetchFailed }
func (e *UserInfoError) Unwrap() error        { return e.Err }
