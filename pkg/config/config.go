package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/w1nex5372/ernioCasino-sub000/pkg/logger"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Payment    PaymentConfig    `yaml:"payment"`
	Cache      CacheConfig      `yaml:"cache"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Logger     logger.Config    `yaml:"logger"`
	Packages   []PackageConfig  `yaml:"packages"`
	DevBackend DevBackendConfig `yaml:"dev_backend"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	Environment    string   `yaml:"environment"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// BackendConfig points at the purchase API that issues descriptors and credits tokens.
type BackendConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type PaymentConfig struct {
	CryptoSymbol        string        `yaml:"crypto_symbol"`
	MinFiatAmount       float64       `yaml:"min_fiat_amount"`
	TokensPerFiat       int64         `yaml:"tokens_per_fiat"`
	DefaultRate         float64       `yaml:"default_rate"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	RateRefreshInterval time.Duration `yaml:"rate_refresh_interval"`
	Countdown           time.Duration `yaml:"countdown"`
	HardTimeout         time.Duration `yaml:"hard_timeout"`
	RecalcIndicator     time.Duration `yaml:"recalc_indicator"`
	CacheMaxAge         time.Duration `yaml:"cache_max_age"`
	ReapInterval        time.Duration `yaml:"reap_interval"`
}

type CacheConfig struct {
	Path string `yaml:"path"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	CheckOrigin     bool          `yaml:"check_origin"`
	PingPeriod      time.Duration `yaml:"ping_period"`
}

// DevBackendConfig configures the in-memory purchase backend used for local runs.
// It shares the backend API key and the payment token ratio.
type DevBackendConfig struct {
	Addr        string  `yaml:"addr"`
	InitialRate float64 `yaml:"initial_rate"`
}

// PackageConfig is a fixed-price purchase whose fiat amount the user cannot edit.
type PackageConfig struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	FiatAmount  float64 `yaml:"fiat_amount"`
	TokenAmount int64   `yaml:"token_amount"`
}

// Load reads .env (if present), expands environment references in the YAML file at
// CONFIG_PATH (default ./config.yaml) and applies defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config.yaml"
	}

	configData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	return Parse(configData)
}

// Parse decodes YAML config data, expanding ${VAR} references from the environment.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}

	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:8090"
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 10 * time.Second
	}
	if c.Backend.MaxRetries < 0 {
		c.Backend.MaxRetries = 0
	}
	if c.Backend.RetryDelay <= 0 {
		c.Backend.RetryDelay = 500 * time.Millisecond
	}

	p := &c.Payment
	if p.CryptoSymbol == "" {
		p.CryptoSymbol = "SOL"
	}
	if p.MinFiatAmount <= 0 {
		p.MinFiatAmount = 1
	}
	if p.TokensPerFiat <= 0 {
		p.TokensPerFiat = 100
	}
	if p.DefaultRate <= 0 {
		p.DefaultRate = 180
	}
	if p.PollInterval <= 0 {
		p.PollInterval = 3 * time.Second
	}
	if p.RateRefreshInterval <= 0 {
		p.RateRefreshInterval = 3 * time.Minute
	}
	if p.Countdown <= 0 {
		p.Countdown = 20 * time.Minute
	}
	if p.HardTimeout <= 0 {
		p.HardTimeout = 5 * time.Minute
	}
	if p.RecalcIndicator <= 0 {
		p.RecalcIndicator = 500 * time.Millisecond
	}
	if p.CacheMaxAge <= 0 {
		p.CacheMaxAge = 24 * time.Hour
	}
	if p.ReapInterval <= 0 {
		p.ReapInterval = time.Minute
	}

	if c.Cache.Path == "" {
		c.Cache.Path = "paygate.db"
	}

	if c.WebSocket.ReadBufferSize <= 0 {
		c.WebSocket.ReadBufferSize = 1024
	}
	if c.WebSocket.WriteBufferSize <= 0 {
		c.WebSocket.WriteBufferSize = 1024
	}
	if c.WebSocket.PingPeriod <= 0 {
		c.WebSocket.PingPeriod = 30 * time.Second
	}

	if c.DevBackend.Addr == "" {
		c.DevBackend.Addr = ":8090"
	}
	if c.DevBackend.InitialRate <= 0 {
		c.DevBackend.InitialRate = p.DefaultRate
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.TimeFormat == "" {
		c.Logger.TimeFormat = time.RFC3339
	}
}

func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Packages))
	for _, pkg := range c.Packages {
		if pkg.ID == "" {
			return fmt.Errorf("package with empty id")
		}
		if seen[pkg.ID] {
			return fmt.Errorf("duplicate package id %q", pkg.ID)
		}
		seen[pkg.ID] = true
		if pkg.FiatAmount < c.Payment.MinFiatAmount {
			return fmt.Errorf("package %q: fiat amount %.2f below minimum %.2f", pkg.ID, pkg.FiatAmount, c.Payment.MinFiatAmount)
		}
		if pkg.TokenAmount <= 0 {
			return fmt.Errorf("package %q: token amount must be positive", pkg.ID)
		}
	}
	return nil
}
