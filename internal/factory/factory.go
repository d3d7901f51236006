// Package factory builds concrete backends from configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Love-M-365/Clario/internal/config"
	"github.com/Love-M-365/Clario/internal/embeddings"
	embgemini "github.com/Love-M-365/Clario/internal/embeddings/gemini"
	"github.com/Love-M-365/Clario/internal/llm"
	llmgemini "github.com/Love-M-365/Clario/internal/llm/gemini"
	"github.com/Love-M-365/Clario/internal/store"
	"github.com/Love-M-365/Clario/internal/store/postgres"
	"github.com/Love-M-365/Clario/internal/store/sqlite"
)

// NewStore builds the store backend selected by cfg.DBDriver.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite store")
		return sqlite.Open(cfg.SQLitePath)
	case "postgres":
		log.Info().Msg("using postgres store")
		return postgres.Open(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
}

// NewGenerator builds the Gemini text generator.
func NewGenerator(ctx context.Context, cfg *config.Config) (llm.Generator, error) {
	return llmgemini.New(ctx, cfg.GenAIAPIKey, cfg.TextModel)
}

// NewEmbedder builds the Gemini embedding provider.
func NewEmbedder(ctx context.Context, cfg *config.Config) (embeddings.Provider, error) {
	return embgemini.New(ctx, cfg.GenAIAPIKey, cfg.EmbedModel)
}
