package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Ranking  RankingConfig  `yaml:"ranking" mapstructure:"ranking"`
	Client   ClientConfig   `yaml:"client" mapstructure:"client"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LLMConfig selects and configures the streaming language model provider.
type LLMConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	AnthropicKey      string  `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicBaseURL  string  `yaml:"anthropic_base_url" mapstructure:"anthropic_base_url"`
	OpenRouterKey     string  `yaml:"openrouter_key" mapstructure:"openrouter_key"`
	OpenRouterBaseURL string  `yaml:"openrouter_base_url" mapstructure:"openrouter_base_url"`
}

// RegistryConfig configures the ClinicalTrials.gov client.
type RegistryConfig struct {
	BaseURL                 string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs             int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxResults              int     `yaml:"max_results" mapstructure:"max_results"`
	QueryPolicy             string  `yaml:"query_policy" mapstructure:"query_policy"`
	RatePerSecond           float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst               int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	BreakerFailureThreshold int     `yaml:"breaker_failure_threshold" mapstructure:"breaker_failure_threshold"`
	BreakerResetSecs        int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// RankingConfig configures trial ranking.
type RankingConfig struct {
	MaxResults int `yaml:"max_results" mapstructure:"max_results"`
}

// ClientConfig configures the terminal chat client.
type ClientConfig struct {
	ServerURL string `yaml:"server_url" mapstructure:"server_url"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRIALCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider credentials also come from their conventional variables.
	if err := v.BindEnv("llm.anthropic_key", "TRIALCHAT_LLM_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind anthropic key")
	}
	if err := v.BindEnv("llm.openrouter_key", "TRIALCHAT_LLM_OPENROUTER_KEY", "OPENROUTER_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind openrouter key")
	}

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.anthropic_base_url", "")
	v.SetDefault("llm.openrouter_base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("registry.base_url", "https://clinicaltrials.gov")
	v.SetDefault("registry.timeout_secs", 10)
	v.SetDefault("registry.max_results", 30)
	v.SetDefault("registry.query_policy", "first")
	v.SetDefault("registry.rate_per_second", 2.0)
	v.SetDefault("registry.rate_burst", 4)
	v.SetDefault("registry.breaker_failure_threshold", 5)
	v.SetDefault("registry.breaker_reset_secs", 30)
	v.SetDefault("ranking.max_results", 5)
	v.SetDefault("client.server_url", "http://localhost:8080")

	// Read config file (optional)
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

// Validate checks the settings a command mode depends on. Missing LLM
// credentials are not a validation error: the chat endpoint reports them
// per request.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		switch c.LLM.Provider {
		case "anthropic", "openrouter":
		default:
			errs = append(errs, fmt.Sprintf("llm.provider %q must be anthropic or openrouter", c.LLM.Provider))
		}
		if c.LLM.MaxTokens <= 0 {
			errs = append(errs, "llm.max_tokens must be > 0")
		}
		if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
			errs = append(errs, "llm.temperature must be between 0 and 2")
		}
		errs = append(errs, c.validateRegistry()...)
	case "search":
		errs = append(errs, c.validateRegistry()...)
	case "chat":
		if c.Client.ServerURL == "" {
			errs = append(errs, "client.server_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateRegistry() []string {
	var errs []string
	if c.Registry.BaseURL == "" {
		errs = append(errs, "registry.base_url is required")
	}
	if c.Registry.MaxResults < 1 || c.Registry.MaxResults > 50 {
		errs = append(errs, "registry.max_results must be between 1 and 50")
	}
	switch c.Registry.QueryPolicy {
	case "", "first", "any":
	default:
		errs = append(errs, fmt.Sprintf("registry.query_policy %q must be first or any", c.Registry.QueryPolicy))
	}
	if c.Ranking.MaxResults < 0 {
		errs = append(errs, "ranking.max_results must be >= 0")
	}
	return errs
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
