// Package config loads process configuration from the environment once at
// boot. Secrets are never logged; feature availability is derived from which
// credentials are present.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// HoldersMode selects how aggressively the holders provider probes archive dates.
type HoldersMode string

// Holders probe modes.
const (
	HoldersModeFast HoldersMode = "fast"
	HoldersModeFull HoldersMode = "full"
	HoldersModeOff  HoldersMode = "off"
)

// Defaults for tunables.
const (
	DefaultLLMModel         = "llama-3.3-70b"
	DefaultLLMFallbackModel = "llama-3.1-8b"
	DefaultCacheTTLSeconds  = 900
	DefaultRetentionDays    = 30
	DefaultHoldersMinRows   = 3
	DefaultHoldersProbeCap  = 6
	DefaultDexBaseURL       = "https://api.dexscreener.com"
	DefaultHoldersEndpoint  = "https://streaming.bitquery.io/eap"
	DefaultHoneypotBaseURL  = "https://api.honeypot.is"
	DefaultExplorerBaseURL  = "https://api.etherscan.io/v2/api"
)

// Network is the single network this deployment scans.
const (
	Network = "base"
	ChainID = 8453
)

// Config is the process-wide configuration read once at boot.
type Config struct {
	HTTPPort    string
	DatabaseURL string
	ChainRPCURL string

	// LLM (conditional feature)
	LLMAPIKey        string
	LLMBaseURL       string
	LLMModel         string
	LLMFallbackModel string

	// Block explorer (conditional feature)
	ExplorerAPIKey  string
	ExplorerBaseURL string

	// Indexed holders (conditional feature)
	HoldersToken    string
	HoldersEndpoint string
	HoldersMode     HoldersMode
	HoldersProbeCap int
	HoldersMinRows  int

	// Honeypot simulation
	HoneypotAPIKey  string
	HoneypotBaseURL string

	// DEX aggregator
	DexBaseURL string

	CacheTTLSeconds int

	// Terminal scans older than this are deleted; 0 disables the sweep.
	RetentionDays int
}

// Load reads configuration from the environment and validates required keys.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		ChainRPCURL:      os.Getenv("CHAIN_RPC_URL"),
		LLMAPIKey:        os.Getenv("LLM_API_KEY"),
		LLMBaseURL:       getEnv("LLM_BASE_URL", "https://api.groq.com/openai/v1"),
		LLMModel:         getEnv("LLM_MODEL", DefaultLLMModel),
		LLMFallbackModel: getEnv("LLM_FALLBACK_MODEL", DefaultLLMFallbackModel),
		ExplorerAPIKey:   os.Getenv("EXPLORER_API_KEY"),
		ExplorerBaseURL:  getEnv("EXPLORER_BASE_URL", DefaultExplorerBaseURL),
		HoldersToken:     os.Getenv("HOLDERS_API_TOKEN"),
		HoldersEndpoint:  getEnv("HOLDERS_ENDPOINT", DefaultHoldersEndpoint),
		HoneypotAPIKey:   os.Getenv("HONEYPOT_API_KEY"),
		HoneypotBaseURL:  getEnv("HONEYPOT_BASE_URL", DefaultHoneypotBaseURL),
		DexBaseURL:       getEnv("DEX_API_BASE_URL", DefaultDexBaseURL),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ChainRPCURL == "" {
		return nil, fmt.Errorf("CHAIN_RPC_URL is required")
	}

	var err error
	if cfg.CacheTTLSeconds, err = getEnvInt("SCAN_CACHE_TTL_SECONDS", DefaultCacheTTLSeconds); err != nil {
		return nil, err
	}
	if cfg.RetentionDays, err = getEnvInt("SCAN_RETENTION_DAYS", DefaultRetentionDays); err != nil {
		return nil, err
	}
	if cfg.HoldersMinRows, err = getEnvInt("HOLDERS_MIN_ROWS", DefaultHoldersMinRows); err != nil {
		return nil, err
	}
	if cfg.HoldersProbeCap, err = getEnvInt("HOLDERS_ARCHIVE_PROBE_CAP", DefaultHoldersProbeCap); err != nil {
		return nil, err
	}

	mode := HoldersMode(getEnv("HOLDERS_MODE", string(HoldersModeFast)))
	switch mode {
	case HoldersModeFast, HoldersModeFull, HoldersModeOff:
		cfg.HoldersMode = mode
	default:
		return nil, fmt.Errorf("invalid HOLDERS_MODE %q: must be fast, full, or off", mode)
	}

	return cfg, nil
}

// HasLLM reports whether LLM planning and assessment are available.
func (c *Config) HasLLM() bool { return c.LLMAPIKey != "" }

// HasExplorer reports whether block-explorer backed tools are available.
func (c *Config) HasExplorer() bool { return c.ExplorerAPIKey != "" }

// HasHolders reports whether the indexed-holders provider is available.
func (c *Config) HasHolders() bool {
	return c.HoldersToken != "" && c.HoldersMode != HoldersModeOff
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
