// Package audit emite eventos de seguridad (logins, vínculos) como líneas
// estructuradas del logger con component=audit, para poder rutearlas a
// otro sink filtrando por ese campo.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/hellogate/internal/observability/logger"
)

// Eventos.
const (
	EventLocalLogin     = "login.local"
	EventFederatedLogin = "login.federated"
	EventBindingCreated = "binding.created"
	EventLogout         = "logout"
)

// Log escribe el evento con los campos dados. Hereda request_id del ctx.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	logger.From(ctx).With(logger.Component("audit")).Info(event, append([]zap.Field{zap.String("event", event)}, fields...)...)
}
