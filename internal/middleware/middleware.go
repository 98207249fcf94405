package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Chain wraps the router with tracing, request IDs, request logging and
// HTTP metrics, outermost first
func Chain(handler http.Handler, logger *slog.Logger) http.Handler {
	return Tracing(middleware.RequestID(Logging(logger)(Metrics(handler))))
}

// inventoryName returns the inventory a request path addresses, if any
func inventoryName(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/v1/inventories/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}
