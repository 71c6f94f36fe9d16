package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/hellogate/internal/http/errors"
	"github.com/dropDatabas3/hellogate/internal/observability/logger"
	"github.com/dropDatabas3/hellogate/internal/session"
)

// WithSession carga la sesión del browser en el contexto. No la persiste:
// los handlers que la modifican llaman a Store.Save.
func WithSession(store *session.Store) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := store.Load(r.Context(), r)
			if err != nil {
				logger.From(r.Context()).Error("session load failed", logger.Layer("middleware"), logger.Err(err))
				errors.WriteError(w, errors.ErrServiceUnavailable.WithCause(err))
				return
			}
			if sess.Authenticated() {
				r = r.WithContext(logger.ToContext(r.Context(),
					logger.From(r.Context()).With(logger.AccountID(sess.AccountID))))
			}
			next.ServeHTTP(w, r.WithContext(session.WithContext(r.Context(), sess)))
		})
	}
}
