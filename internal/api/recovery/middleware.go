// Package recovery converts handler panics into 500 responses so one bad
// request cannot take the process down.
package recovery

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Love-M-365/Clario/internal/api/respond"
)

func Middleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().
						Interface("panic", rec).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("handler panicked")
					respond.WriteInternalError(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
