// Package api wires the HTTP surface of the companion service: routing,
// auth, CORS, and translation between transport and service errors.
package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Love-M-365/Clario/internal/api/recovery"
	"github.com/Love-M-365/Clario/internal/api/respond"
	"github.com/Love-M-365/Clario/internal/auth"
	"github.com/Love-M-365/Clario/internal/model"
	"github.com/Love-M-365/Clario/internal/services"
)

// HealthReporter is the slice of the health aggregate the API needs.
type HealthReporter interface {
	IsHealthy() bool
}

// Server aggregates the service layer behind HTTP handlers.
type Server struct {
	chat       *services.ChatService
	onboarding *services.OnboardingService
	relations  *services.RelationshipService
	moods      *services.MoodService
	sessions   *services.SessionService
	verifier   auth.Verifier
	checker    HealthReporter
	log        zerolog.Logger
}

func NewServer(
	chat *services.ChatService,
	onboarding *services.OnboardingService,
	relations *services.RelationshipService,
	moods *services.MoodService,
	sessions *services.SessionService,
	verifier auth.Verifier,
	checker HealthReporter,
	log zerolog.Logger,
) *Server {
	return &Server{
		chat:       chat,
		onboarding: onboarding,
		relations:  relations,
		moods:      moods,
		sessions:   sessions,
		verifier:   verifier,
		checker:    checker,
		log:        log.With().Str("component", "api").Logger(),
	}
}

// Router builds the full route table with middleware applied.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(recovery.Middleware(s.log))

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/chat", s.requireAuth(s.handleChat)).Methods(http.MethodPost)
	r.HandleFunc("/api/onboarding", s.requireAuth(s.handleOnboarding)).Methods(http.MethodPost)
	r.HandleFunc("/api/relations", s.requireAuth(s.handleRelations)).Methods(http.MethodGet)
	r.HandleFunc("/api/mood", s.optionalAuth(s.handleMood)).Methods(http.MethodPost)

	r.HandleFunc("/api/sessions", s.handleStartSession).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/analyze", s.handleAnalyzeSession).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/messages", s.handleSessionMessage).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/summaries", s.handleSessionSummaries).Methods(http.MethodPost)

	// cors answers OPTIONS preflight for every route before mux routing.
	return cors(r)
}

// writeServiceError maps service-layer sentinel errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		respond.WriteBadRequest(w, err.Error())
	case errors.Is(err, model.ErrNotFound):
		respond.WriteNotFound(w, err.Error())
	case errors.Is(err, model.ErrConflict):
		respond.WriteConflict(w, err.Error())
	default:
		s.log.Error().Stack().Err(err).Msg("request failed")
		respond.WriteInternalError(w)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.checker != nil && !s.checker.IsHealthy() {
		respond.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
