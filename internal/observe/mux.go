package observe

import (
	"net/http"
	"slices"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Multiplexer is the route-registration subset of http.ServeMux.
type Multiplexer interface {
	Handle(pattern string, handler http.Handler)
	http.Handler
}

// Mux wraps a Multiplexer so that every registered handler is traced,
// with spans tagged by the route's path.
type Mux struct {
	wrapped Multiplexer
}

func NewMux(wrapped Multiplexer) *Mux {
	return &Mux{wrapped: wrapped}
}

func (mux *Mux) Handle(pattern string, handler http.Handler) {
	mux.wrapped.Handle(pattern, otelhttp.NewHandler(handler, routeTag(pattern)))
}

func (mux *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux.wrapped.ServeHTTP(w, r)
}

// proxiedMethods are the methods the adapter routes; a pattern may carry
// one as a "METHOD /path" prefix.
var proxiedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
}

// routeTag derives the span tag from a ServeMux pattern, stripping a
// leading method so that "GET /healthcheck" and "/healthcheck" tag alike.
func routeTag(pattern string) string {
	method, path, found := strings.Cut(pattern, " ")
	if found && slices.Contains(proxiedMethods, method) {
		return path
	}
	return pattern
}
