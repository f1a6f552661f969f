// Package config loads service configuration from defaults, an optional YAML
// file, and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"
)

// Config holds all service settings.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	RPCURL     string `yaml:"rpc_url"`
	Commitment string `yaml:"commitment"`
	Network    string `yaml:"network"`

	PaymentProgramID string `yaml:"payment_program_id"`
	TreasuryWallet   string `yaml:"treasury_wallet"`
	TokenDecimals    int32  `yaml:"token_decimals"`

	CacheTTL      time.Duration `yaml:"cache_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
	RateLimitMax    int           `yaml:"rate_limit_max"`

	AllowDemoMode       bool `yaml:"allow_demo_mode"`
	RequirePayloadNonce bool `yaml:"require_payload_nonce"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:       ":3000",
		LogLevel:         "info",
		RPCURL:           "https://api.devnet.solana.com",
		Commitment:       "confirmed",
		Network:          "solana",
		PaymentProgramID: "AYR12uFA9XcW2XHyqRYfJLD5nhKoNDqHPk8Yrp3uVMf8",
		TokenDecimals:    6,
		CacheTTL:         24 * time.Hour,
		SweepInterval:    time.Hour,
		RateLimitWindow:  15 * time.Minute,
		RateLimitMax:     100,
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside the
// service.
func (c Config) Validate() error {
	if c.PaymentProgramID == "" {
		return fmt.Errorf("payment program ID is required")
	}
	if _, err := solana.PublicKeyFromBase58(c.PaymentProgramID); err != nil {
		return fmt.Errorf("invalid payment program ID %q: %w", c.PaymentProgramID, err)
	}
	if c.TreasuryWallet != "" {
		if _, err := solana.PublicKeyFromBase58(c.TreasuryWallet); err != nil {
			return fmt.Errorf("invalid treasury wallet %q: %w", c.TreasuryWallet, err)
		}
	}
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL is required")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("PULSAR_LISTEN_ADDR", &cfg.ListenAddr)
	setString("PULSAR_LOG_LEVEL", &cfg.LogLevel)
	setString("SOLANA_RPC_URL", &cfg.RPCURL)
	setString("PULSAR_COMMITMENT", &cfg.Commitment)
	setString("PULSAR_NETWORK", &cfg.Network)
	setString("PAYMENT_PROGRAM_ID", &cfg.PaymentProgramID)
	setString("TREASURY_WALLET", &cfg.TreasuryWallet)
	setDuration("PULSAR_CACHE_TTL", &cfg.CacheTTL)
	setDuration("PULSAR_SWEEP_INTERVAL", &cfg.SweepInterval)
	setDuration("RATE_LIMIT_WINDOW", &cfg.RateLimitWindow)
	setBool("PULSAR_ALLOW_DEMO_MODE", &cfg.AllowDemoMode)
	setBool("PULSAR_REQUIRE_PAYLOAD_NONCE", &cfg.RequirePayloadNonce)

	if v := os.Getenv("RATE_LIMIT_MAX_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitMax = n
		}
	}
	if v := os.Getenv("PULSAR_TOKEN_DECIMALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.TokenDecimals = int32(n)
		}
	}
}
