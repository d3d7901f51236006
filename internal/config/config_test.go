package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDefaults_LocalDerivesSqlite(t *testing.T) {
	cfg := &Config{BuildTarget: "local", DBDriver: "auto", SQLitePath: "x.db", SummaryTrigger: 10, MaxRecentTurns: 8}
	require.NoError(t, cfg.ResolveDefaults())
	assert.Equal(t, "sqlite", cfg.DBDriver)
}

func TestResolveDefaults_CloudRequiresDSN(t *testing.T) {
	cfg := &Config{BuildTarget: "cloud", DBDriver: "auto", SummaryTrigger: 10, MaxRecentTurns: 8}
	err := cfg.ResolveDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestResolveDefaults_UnknownTarget(t *testing.T) {
	cfg := &Config{BuildTarget: "edge", SummaryTrigger: 10, MaxRecentTurns: 8}
	require.Error(t, cfg.ResolveDefaults())
}

func TestResolveDefaults_ExplicitDriverOverride(t *testing.T) {
	cfg := &Config{BuildTarget: "cloud", DBDriver: "sqlite", SQLitePath: "x.db", SummaryTrigger: 10, MaxRecentTurns: 8}
	require.NoError(t, cfg.ResolveDefaults())
	assert.Equal(t, "sqlite", cfg.DBDriver)
}

func TestNewForTesting(t *testing.T) {
	cfg := NewForTesting()
	assert.True(t, cfg.IsTesting())
	assert.Equal(t, 10, cfg.SummaryTrigger)
	assert.Equal(t, 8, cfg.MaxRecentTurns)
	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
}
