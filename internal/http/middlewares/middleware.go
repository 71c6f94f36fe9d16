// Package middlewares contiene los middlewares HTTP del gateway: recover,
// request id + logging, headers de seguridad, rate limit, sesión y el gate
// de captcha.
package middlewares

import "net/http"

// Middleware envuelve un http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain aplica los middlewares en orden: el primero queda más afuera.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
