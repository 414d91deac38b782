package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	SerpAPI   SerpAPIConfig   `yaml:"serpapi" mapstructure:"serpapi"`
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Google Gemini settings for the alternative judge.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// SerpAPIConfig holds SerpAPI Google search settings.
type SerpAPIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	GL      string `yaml:"gl" mapstructure:"gl"`
	HL      string `yaml:"hl" mapstructure:"hl"`
	Num     int    `yaml:"num" mapstructure:"num"`
}

// GoogleConfig holds Google Places credentials used by discovery.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// BrowserConfig configures the headless browser fetcher.
type BrowserConfig struct {
	Enabled               bool     `yaml:"enabled" mapstructure:"enabled"`
	Bin                   string   `yaml:"bin" mapstructure:"bin"`
	Headless              bool     `yaml:"headless" mapstructure:"headless"`
	NavigationTimeoutSecs int      `yaml:"navigation_timeout_secs" mapstructure:"navigation_timeout_secs"`
	DismissTimeoutMs      int      `yaml:"dismiss_timeout_ms" mapstructure:"dismiss_timeout_ms"`
	DismissSelectors      []string `yaml:"dismiss_selectors" mapstructure:"dismiss_selectors"`
}

// FetchConfig configures page retrieval.
type FetchConfig struct {
	Order       []string `yaml:"order" mapstructure:"order"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyKB   int      `yaml:"max_body_kb" mapstructure:"max_body_kb"`
}

// SearchConfig configures the web search capability.
type SearchConfig struct {
	Provider       string   `yaml:"provider" mapstructure:"provider"`
	BlockedDomains []string `yaml:"blocked_domains" mapstructure:"blocked_domains"`
	RatePerSec     float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs    int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// EnrichConfig configures source selection and judgment.
type EnrichConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	JudgeProvider       string  `yaml:"judge_provider" mapstructure:"judge_provider"`
	MaxTextChars        int     `yaml:"max_text_chars" mapstructure:"max_text_chars"`
	JudgeTimeoutSecs    int     `yaml:"judge_timeout_secs" mapstructure:"judge_timeout_secs"`
}

// AuthConfig holds bearer token settings for the API.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RetryConfig configures backoff for outbound HTTP calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// DefaultDismissSelectors lists the popup close controls tried in order.
var DefaultDismissSelectors = []string{
	`[aria-label="Close"][role="button"]`,
	`[aria-label="Dismiss"][role="button"]`,
	`[aria-label="Close"]`,
	`[aria-label="Dismiss"]`,
	`svg[aria-label="Close"]`,
}

// Load reads configuration from .env, config file, and environment.
func Load() (*Config, error) {
	// .env only seeds variables that are not already exported.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REPLYPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("serpapi.base_url", "https://serpapi.com")
	v.SetDefault("serpapi.gl", "ca")
	v.SetDefault("serpapi.hl", "en")
	v.SetDefault("serpapi.num", 10)
	v.SetDefault("google.base_url", "https://places.googleapis.com")
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout_secs", 30)
	v.SetDefault("browser.dismiss_timeout_ms", 3000)
	v.SetDefault("browser.dismiss_selectors", DefaultDismissSelectors)
	v.SetDefault("fetch.order", []string{"browser", "http", "jina"})
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.max_body_kb", 2048)
	v.SetDefault("search.provider", "serpapi")
	v.SetDefault("search.blocked_domains", []string{"google.com"})
	v.SetDefault("search.rate_per_sec", 2.0)
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("enrich.similarity_threshold", 0.6)
	v.SetDefault("enrich.judge_provider", "anthropic")
	v.SetDefault("enrich.max_text_chars", 6000)
	v.SetDefault("enrich.judge_timeout_secs", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 5000)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by a command mode:
// "enrich", "serve", "discover", or "store".
func (c *Config) Validate(mode string) error {
	var errs []string

	requireStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for postgres")
			}
		case "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
		}
	}

	requireEnrich := func() {
		switch c.Enrich.JudgeProvider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required")
			}
		case "gemini":
			if c.Gemini.Key == "" {
				errs = append(errs, "gemini.key is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("enrich.judge_provider %q is not supported", c.Enrich.JudgeProvider))
		}
		switch c.Search.Provider {
		case "serpapi":
			if c.SerpAPI.Key == "" {
				errs = append(errs, "serpapi.key is required")
			}
		case "jina":
			if c.Jina.Key == "" {
				errs = append(errs, "jina.key is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("search.provider %q is not supported", c.Search.Provider))
		}
		if c.Enrich.SimilarityThreshold <= 0 || c.Enrich.SimilarityThreshold > 1 {
			errs = append(errs, "enrich.similarity_threshold must be in (0, 1]")
		}
		if c.Enrich.MaxTextChars <= 0 {
			errs = append(errs, "enrich.max_text_chars must be > 0")
		}
	}

	switch mode {
	case "store":
		requireStore()
	case "enrich":
		requireStore()
		requireEnrich()
	case "discover":
		requireStore()
		if c.Google.Key == "" {
			errs = append(errs, "google.key is required")
		}
	case "serve":
		requireStore()
		requireEnrich()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "auth.jwt_secret is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
