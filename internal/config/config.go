package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds the overall configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Tzkt      ProviderConfig  `yaml:"tzkt"`
	Etherlink EtherlinkConfig `yaml:"etherlink"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
	Refresh   RefreshConfig   `yaml:"refresh"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
}

// StorageConfig holds the local persistence configuration.
type StorageConfig struct {
	DataDir string `yaml:"dataDir"`
}

// ProviderConfig holds one REST upstream's endpoint and pacing.
type ProviderConfig struct {
	BaseURL              string `yaml:"baseURL"`
	RequestTimeoutMillis int64  `yaml:"requestTimeoutMillis"`
	MinDelayMillis       int64  `yaml:"minDelayMillis"`
}

// EtherlinkConfig holds the Etherlink RPC and explorer endpoints.
type EtherlinkConfig struct {
	RPCURL               string `yaml:"rpcURL"`
	ExplorerURL          string `yaml:"explorerURL"`
	RequestTimeoutMillis int64  `yaml:"requestTimeoutMillis"`
	MinDelayMillis       int64  `yaml:"minDelayMillis"`
}

// PricingConfig holds the fiat spot-price provider configuration.
type PricingConfig struct {
	ProviderConfig  `yaml:",inline"`
	CacheTTLMinutes int `yaml:"cacheTTLMinutes"`
}

// CacheConfig holds the fetch-result cache caps.
type CacheConfig struct {
	SoftCap int `yaml:"softCap"`
	TrimTo  int `yaml:"trimTo"`
}

// LoggingConfig holds the configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // e.g., "debug", "info", "warn", "error"
}

// RefreshConfig holds the wallet refresh tuning knobs.
type RefreshConfig struct {
	TopTokens int `yaml:"topTokens"`
}

// Timeout returns the provider's request timeout as a duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.RequestTimeoutMillis) * time.Millisecond
}

// MinDelay returns the provider's minimum inter-call spacing.
func (p ProviderConfig) MinDelay() time.Duration {
	return time.Duration(p.MinDelayMillis) * time.Millisecond
}

// LoadConfig loads configuration from a YAML file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
	}

	cfg.applyDefaults()
	logrus.Info("Configuration loaded successfully.")
	return &cfg, nil
}

// Default returns a configuration with every default applied, used when no
// config file is present.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8090"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}

	if c.Tzkt.BaseURL == "" {
		c.Tzkt.BaseURL = "https://api.tzkt.io"
	}
	if c.Tzkt.RequestTimeoutMillis == 0 {
		c.Tzkt.RequestTimeoutMillis = 10_000
	}
	if c.Tzkt.MinDelayMillis == 0 {
		// Conservative single-request-per-second posture.
		c.Tzkt.MinDelayMillis = 1_000
	}

	if c.Etherlink.RPCURL == "" {
		c.Etherlink.RPCURL = "https://node.mainnet.etherlink.com"
	}
	if c.Etherlink.ExplorerURL == "" {
		c.Etherlink.ExplorerURL = "https://explorer.etherlink.com"
	}
	if c.Etherlink.RequestTimeoutMillis == 0 {
		c.Etherlink.RequestTimeoutMillis = 10_000
	}
	if c.Etherlink.MinDelayMillis == 0 {
		c.Etherlink.MinDelayMillis = 200
	}

	if c.Pricing.BaseURL == "" {
		c.Pricing.BaseURL = "https://api.coinbase.com"
	}
	if c.Pricing.RequestTimeoutMillis == 0 {
		c.Pricing.RequestTimeoutMillis = 10_000
	}
	if c.Pricing.MinDelayMillis == 0 {
		c.Pricing.MinDelayMillis = 500
	}
	if c.Pricing.CacheTTLMinutes == 0 {
		c.Pricing.CacheTTLMinutes = 1
	}

	if c.Cache.SoftCap == 0 {
		c.Cache.SoftCap = 100
	}
	if c.Cache.TrimTo == 0 {
		c.Cache.TrimTo = 80
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Refresh.TopTokens == 0 {
		c.Refresh.TopTokens = 5
	}
}
