// Package config loads application configuration from environment variables,
// with an optional YAML overlay file for deployment-specific tuning.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`
	DBPath      string `envconfig:"DB_PATH" default:"ella.db"`

	// LLM provider (OpenAI-compatible chat endpoint)
	LLMEndpoint  string        `envconfig:"LLM_ENDPOINT" default:"https://openrouter.ai/api/v1/chat/completions"`
	LLMAPIKey    string        `envconfig:"LLM_API_KEY"`
	LLMModel     string        `envconfig:"LLM_MODEL" default:"deepseek/deepseek-chat"`
	LLMTimeout   time.Duration `envconfig:"LLM_TIMEOUT" default:"120s"`
	LLMMaxTokens int           `envconfig:"LLM_MAX_TOKENS" default:"16000"`

	// ReadyConfidence is the single implementation-readiness threshold,
	// applied at the initial check, the post-research check, and the
	// answers-received re-check.
	ReadyConfidence int `envconfig:"READY_CONFIDENCE" default:"90"`

	// Embeddings (optional — memory falls back to full-text search)
	EmbedEndpoint string `envconfig:"EMBED_ENDPOINT"`
	EmbedAPIKey   string `envconfig:"EMBED_API_KEY"`
	EmbedModel    string `envconfig:"EMBED_MODEL" default:"text-embedding-3-small"`

	// GitHub research tool (optional — static PAT, read-only search)
	GitHubToken string `envconfig:"GITHUB_TOKEN"`

	// Slack escalation (optional)
	SlackBotToken string `envconfig:"SLACK_BOT_TOKEN"`
	SlackChannel  string `envconfig:"SLACK_CHANNEL" default:"#ella-ops"`

	// WebSocket auth
	WSTokenSecret string        `envconfig:"WS_TOKEN_SECRET"`
	WSTokenTTL    time.Duration `envconfig:"WS_TOKEN_TTL" default:"12h"`

	// API
	APIKey         string `envconfig:"API_KEY"` // empty = auth disabled (development)
	CORSOrigins    string `envconfig:"CORS_ORIGINS"`
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"200"`
}

// Overlay is the subset of settings that may be overridden from a YAML file
// pointed at by ELLA_CONFIG_FILE. File values win over environment values.
type Overlay struct {
	LLMEndpoint     string `yaml:"llm_endpoint"`
	LLMModel        string `yaml:"llm_model"`
	ReadyConfidence *int   `yaml:"ready_confidence"`
	SlackChannel    string `yaml:"slack_channel"`
}

// Load reads configuration from the environment, then applies the optional
// YAML overlay file.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if path := os.Getenv("ELLA_CONFIG_FILE"); path != "" {
		if err := cfg.applyOverlay(path); err != nil {
			return nil, fmt.Errorf("failed to apply config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyOverlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var ov Overlay
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if ov.LLMEndpoint != "" {
		c.LLMEndpoint = ov.LLMEndpoint
	}
	if ov.LLMModel != "" {
		c.LLMModel = ov.LLMModel
	}
	if ov.ReadyConfidence != nil {
		c.ReadyConfidence = *ov.ReadyConfidence
	}
	if ov.SlackChannel != "" {
		c.SlackChannel = ov.SlackChannel
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.ReadyConfidence < 0 || c.ReadyConfidence > 100 {
		return fmt.Errorf("READY_CONFIDENCE must be in [0,100], got %d", c.ReadyConfidence)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT out of range: %d", c.HTTPPort)
	}
	return nil
}

// SlackEnabled returns true if a Slack bot token is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != ""
}

// EmbeddingsEnabled returns true if an embedding endpoint is configured.
func (c *Config) EmbeddingsEnabled() bool {
	return c.EmbedEndpoint != ""
}
