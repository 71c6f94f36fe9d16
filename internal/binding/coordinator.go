package binding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/hellogate/internal/federation"
	"github.com/dropDatabas3/hellogate/internal/metrics"
	"github.com/dropDatabas3/hellogate/internal/observability/logger"
)

// StateAttr es el atributo de sesión donde vive el State.
const StateAttr = "binding:state"

// Outcome de un login federado.
type Outcome struct {
	// SignInAccountID != "" si ya existía vínculo: la sesión se autentica
	// con esa cuenta.
	SignInAccountID string
	// Pending es true si la identidad quedó esperando un login local.
	Pending bool
}

// Coordinator aplica Transition sobre el estado guardado en la sesión.
type Coordinator struct {
	Links LinkStore
	Now   func() time.Time
}

func NewCoordinator(links LinkStore) *Coordinator {
	return &Coordinator{Links: links, Now: time.Now}
}

// OnFederationResolved se llama en el callback tras el user-info.
func (c *Coordinator) OnFederationResolved(ctx context.Context, sess federation.Attributes, id *federation.FederatedIdentity) (Outcome, error) {
	if id == nil {
		return Outcome{}, errors.New("binding: nil identity")
	}
	linked, _, err := c.Links.FindLink(ctx, id.RegistrationID, id.SubjectID)
	if err != nil {
		return Outcome{}, err
	}

	cur, err := LoadState(sess)
	if err != nil {
		return Outcome{}, err
	}
	next, eff := Transition(cur, FederationResolved{Identity: id, LinkedAccountID: linked})

	if eff.Kind == EffectSignIn {
		logger.From(ctx).Info("federated identity already linked",
			logger.Component("binding"), logger.RegistrationID(id.RegistrationID), logger.AccountID(eff.AccountID))
		return Outcome{SignInAccountID: eff.AccountID}, nil
	}
	if err := saveState(sess, next); err != nil {
		return Outcome{}, err
	}
	logger.From(ctx).Info("federated identity pending binding",
		logger.Component("binding"), logger.RegistrationID(id.RegistrationID))
	return Outcome{Pending: !next.Unbound()}, nil
}

// OnLocalAuthenticationSuccess es el hook de los controllers de login
// local. Devuelve el vínculo creado o nil si no había nada pendiente.
// Un conflicto también limpia el pendiente.
func (c *Coordinator) OnLocalAuthenticationSuccess(ctx context.Context, sess federation.Attributes, accountID string) (*Link, error) {
	cur, err := LoadState(sess)
	if err != nil {
		return nil, err
	}
	next, eff := Transition(cur, LocalAuthenticationSuccess{AccountID: accountID})
	if eff.Kind != EffectCreateLink {
		return nil, nil
	}

	link := eff.Link
	link.CreatedAt = c.now().UTC()
	createErr := c.Links.CreateLink(ctx, link)
	if createErr != nil && !errors.Is(createErr, ErrLinkConflict) {
		// el pendiente se conserva: un error de storage es reintentable
		return nil, createErr
	}
	if err := saveState(sess, next); err != nil {
		return nil, err
	}
	if createErr != nil {
		logger.From(ctx).Warn("binding conflict",
			logger.Component("binding"), logger.RegistrationID(link.RegistrationID), logger.AccountID(accountID))
		return nil, createErr
	}

	metrics.BindingsCreated.Inc()
	logger.From(ctx).Info("federated identity linked",
		logger.Component("binding"), logger.RegistrationID(link.RegistrationID), logger.AccountID(accountID))
	return &link, nil
}

// LoadState lee el State de la sesión; sin atributo es Unbound.
func LoadState(sess federation.Attributes) (State, error) {
	var s State
	if _, err := sess.Get(StateAttr, &s); err != nil {
		return State{}, fmt.Errorf("binding: decode state: %w", err)
	}
	return s, nil
}

func saveState(sess federation.Attributes, s State) error {
	if s.Unbound() {
		sess.Delete(StateAttr)
		return nil
	}
	return sess.Put(StateAttr, s)
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
