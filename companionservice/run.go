// Package companionservice boots the Clario companion backend: config,
// dependencies, health checking, HTTP server, and graceful shutdown.
package companionservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Love-M-365/Clario/internal/api"
	"github.com/Love-M-365/Clario/internal/auth"
	"github.com/Love-M-365/Clario/internal/config"
	emb "github.com/Love-M-365/Clario/internal/embeddings"
	"github.com/Love-M-365/Clario/internal/factory"
	"github.com/Love-M-365/Clario/internal/health"
	"github.com/Love-M-365/Clario/internal/llm"
	"github.com/Love-M-365/Clario/internal/logger"
	"github.com/Love-M-365/Clario/internal/services"
	"github.com/Love-M-365/Clario/internal/store"
)

// Run starts the companion service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("companion-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("text_model", cfg.TextModel).
		Str("embed_model", cfg.EmbedModel).
		Msg("Companion service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	st, gen, embProvider, verifier, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	// Start health checkers and bind service health
	svcHealth := startHealthCheckers(ctx, cfg, log, st, embProvider)

	router := buildRouter(st, gen, embProvider, verifier, svcHealth, cfg, log)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// initDependencies constructs required components and enforces fail-fast on missing deps.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, llm.Generator, emb.Provider, auth.Verifier, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, nil, nil, nil, err
	}

	gen, err := factory.NewGenerator(ctx, cfg)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Text generator unavailable")
		return nil, nil, nil, nil, err
	}

	embProvider, err := factory.NewEmbedder(ctx, cfg)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Embedding provider unavailable")
		return nil, nil, nil, nil, err
	}

	verifier, err := auth.NewJWTVerifier(cfg.JWTSecret)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Auth verifier unavailable")
		return nil, nil, nil, nil, err
	}
	return st, gen, embProvider, verifier, nil
}

// buildRouter wires the service layer into the HTTP surface.
func buildRouter(st store.Store, gen llm.Generator, embProvider emb.Provider, verifier auth.Verifier, svcHealth *health.ServiceHealthChecker, cfg *config.Config, log zerolog.Logger) http.Handler {
	onboarding := services.NewOnboardingService(st, log)
	relations := services.NewRelationshipService(st, gen, log)
	chat := services.NewChatService(st, gen, onboarding, relations, cfg.SummaryTrigger, cfg.MaxRecentTurns, log)
	moods := services.NewMoodService(st, gen, log)
	sessions := services.NewSessionService(st, gen, embProvider, log)

	srv := api.NewServer(chat, onboarding, relations, moods, sessions, verifier, svcHealth, log)
	return srv.Router()
}

// startHealthCheckers starts component checkers and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, embProvider emb.Provider) *health.ServiceHealthChecker {
	var checkers []health.HealthChecker
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := store.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers = append(checkers, storeChecker)

	embChecker := emb.NewProviderHealthChecker(embProvider, log, probeTimeout)
	go embChecker.Start(ctx, interval)
	checkers = append(checkers, embChecker)

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
