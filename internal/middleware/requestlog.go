package middleware

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ytpm/backend/internal/logging"
)

// RequestContextMiddleware adds request attributes to context early in the middleware chain.
// It must run after RealIPMiddleware and chi's RequestID so the logged IP and
// request id are the resolved ones. Auth middleware later adds the room and role.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attrs := &logging.RequestAttrs{
			RequestID: chimiddleware.GetReqID(r.Context()),
			Method:    r.Method,
			Path:      r.URL.Path,
			IP:        logging.ExtractClientIP(r),
		}
		ctx := logging.WithRequestAttrs(r.Context(), attrs)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
