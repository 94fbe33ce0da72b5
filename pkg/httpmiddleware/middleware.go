// Package httpmiddleware provides composable net/http middleware for request
// identification, logging, panic recovery and telemetry.
package httpmiddleware

import "net/http"

// Middleware wraps an http.Handler with additional behaviour.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h so that the first one listed is the
// outermost, i.e. sees the request first.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RouteFinder returns the route pattern that served r, e.g.
// "/catalogue/products/{id}". It is consulted after the handler has run.
type RouteFinder func(r *http.Request) string
