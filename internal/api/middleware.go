package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/Love-M-365/Clario/internal/api/respond"
	"github.com/Love-M-365/Clario/internal/auth"
)

type contextKey string

const userIDKey contextKey = "userID"

// userIDFrom returns the authenticated user ID placed by requireAuth, or ""
// when the request was not authenticated.
func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// requireAuth verifies the bearer token and stores the subject in the request
// context. It fails closed with 401 before any handler side effect.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.verifyBearer(r)
		if err != nil {
			respond.WriteUnauthorized(w, err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

// optionalAuth attaches the subject when a valid token is present and lets
// the request through anonymously otherwise.
func (s *Server) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if userID, err := s.verifyBearer(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
		}
		next(w, r)
	}
}

func (s *Server) verifyBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", auth.ErrMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" || token == header {
		return "", auth.ErrInvalidToken
	}
	return s.verifier.Verify(r.Context(), token)
}

// cors sets the permissive origin headers on every response and answers
// preflight requests directly.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
