// Package binding vincula identidades federadas con cuentas locales.
//
// Por sesión hay dos estados: Unbound y PendingBinding. Un login federado
// sin vínculo deja la identidad pendiente en la sesión; el siguiente login
// local exitoso de esa sesión persiste el vínculo y vuelve a Unbound.
// Transition es una función pura; Coordinator aplica sus efectos.
package binding

import "github.com/dropDatabas3/hellogate/internal/federation"

// State de binding de una sesión. Pending == nil es Unbound.
type State struct {
	Pending *federation.FederatedIdentity `json:"pending,omitempty"`
}

func (s State) Unbound() bool { return s.Pending == nil }

// Event es FederationResolved o LocalAuthenticationSuccess.
type Event interface{ isEvent() }

// FederationResolved: el user-info resolvió una identidad. LinkedAccountID
// es el vínculo existente para (registrationId, subjectId), vacío si no hay.
type FederationResolved struct {
	Identity        *federation.FederatedIdentity
	LinkedAccountID string
}

// LocalAuthenticationSuccess: login local (password o móvil) exitoso.
type LocalAuthenticationSuccess struct {
	AccountID string
}

func (FederationResolved) isEvent()         {}
func (LocalAuthenticationSuccess) isEvent() {}

// EffectKind enumera los efectos de una transición.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectSignIn
	EffectCreateLink
)

func (k EffectKind) String() string {
	switch k {
	case EffectSignIn:
		return "sign_in"
	case EffectCreateLink:
		return "create_link"
	}
	return "none"
}

// Effect lo ejecuta el Coordinator.
type Effect struct {
	Kind      EffectKind
	AccountID string // SignIn
	Link      Link   // CreateLink
}

// Transition calcula el nuevo estado y el efecto para un evento.
//
//	Unbound/Pending + FederationResolved(linked)   -> sin cambios, SignIn
//	Unbound/Pending + FederationResolved(unlinked) -> Pending(identity), None
//	Unbound + LocalAuthenticationSuccess           -> Unbound, None
//	Pending + LocalAuthenticationSuccess           -> Unbound, CreateLink
func Transition(s State, ev Event) (State, Effect) {
	switch e := ev.(type) {
	case FederationResolved:
		if e.Identity == nil {
			return s, Effect{}
		}
		if e.LinkedAccountID != "" {
			return s, Effect{Kind: EffectSignIn, AccountID: e.LinkedAccountID}
		}
		return State{Pending: e.Identity}, Effect{}

	case LocalAuthenticationSuccess:
		if s.Unbound() || e.AccountID == "" {
			return s, Effect{}
		}
		return State{}, Effect{
			Kind: EffectCreateLink,
			Link: Link{
				RegistrationID: s.Pending.RegistrationID,
				SubjectID:      s.Pending.SubjectID,
				AccountID:      e.AccountID,
			},
		}
	}
	return s, Effect{}
}
