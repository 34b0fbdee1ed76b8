package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("requires database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("CHAIN_RPC_URL", "https://mainnet.base.org")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")
	})

	t.Run("requires chain rpc url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/tokenscope")
		t.Setenv("CHAIN_RPC_URL", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CHAIN_RPC_URL")
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/tokenscope")
		t.Setenv("CHAIN_RPC_URL", "https://mainnet.base.org")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultLLMModel, cfg.LLMModel)
		assert.Equal(t, DefaultCacheTTLSeconds, cfg.CacheTTLSeconds)
		assert.Equal(t, HoldersModeFast, cfg.HoldersMode)
		assert.Equal(t, DefaultHoldersMinRows, cfg.HoldersMinRows)
		assert.False(t, cfg.HasLLM())
		assert.False(t, cfg.HasExplorer())
		assert.False(t, cfg.HasHolders())
	})

	t.Run("feature predicates follow credentials", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/tokenscope")
		t.Setenv("CHAIN_RPC_URL", "https://mainnet.base.org")
		t.Setenv("LLM_API_KEY", "sk-test")
		t.Setenv("EXPLORER_API_KEY", "key")
		t.Setenv("HOLDERS_API_TOKEN", "tok")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.HasLLM())
		assert.True(t, cfg.HasExplorer())
		assert.True(t, cfg.HasHolders())
	})

	t.Run("holders mode off disables holders", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/tokenscope")
		t.Setenv("CHAIN_RPC_URL", "https://mainnet.base.org")
		t.Setenv("HOLDERS_API_TOKEN", "tok")
		t.Setenv("HOLDERS_MODE", "off")

		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.HasHolders())
	})

	t.Run("invalid holders mode rejected", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/tokenscope")
		t.Setenv("CHAIN_RPC_URL", "https://mainnet.base.org")
		t.Setenv("HOLDERS_MODE", "turbo")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("invalid int tunable rejected", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/tokenscope")
		t.Setenv("CHAIN_RPC_URL", "https://mainnet.base.org")
		t.Setenv("SCAN_CACHE_TTL_SECONDS", "soon")

		_, err := Load()
		require.Error(t, err)
	})
}
