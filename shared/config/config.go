package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	YouTube    YouTubeConfig    `yaml:"youtube"`
	AI         AIConfig         `yaml:"ai"`
	Email      EmailConfig      `yaml:"email"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Schedule   string           `yaml:"schedule"`
	LogLevel   string           `yaml:"log_level"`
}

type YouTubeConfig struct {
	APIKey       string `yaml:"api_key" env:"YOUTUBE_API_KEY"`
	ClientID     string `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"GOOGLE_CLIENT_SECRET"`
	TokenFile    string `yaml:"token_file"`
}

// UsesOAuth reports whether OAuth client credentials are configured.
// OAuth takes precedence over the API key so unlisted videos resolve.
func (y YouTubeConfig) UsesOAuth() bool {
	return y.ClientID != "" && y.ClientSecret != ""
}

type AIConfig struct {
	GeminiAPIKey string `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	Model        string `yaml:"model"`
	ImageModel   string `yaml:"image_model"`
	KeyFile      string `yaml:"key_file"`
}

type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username" env:"EMAIL_USERNAME"`
	Password   string `yaml:"password" env:"EMAIL_PASSWORD"`
	FromEmail  string `yaml:"from_email"`
	ToEmail    string `yaml:"to_email"`
}

// Enabled reports whether enough is configured to send mail.
func (e EmailConfig) Enabled() bool {
	return e.SMTPServer != "" && e.ToEmail != ""
}

type ServerConfig struct {
	Addr               string `yaml:"addr"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int    `yaml:"rate_limit_burst"`
	APIKey             string `yaml:"api_key" env:"REVIVAL_API_KEY"`
}

type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	MaxAgeHours int    `yaml:"max_age_hours"`
}

type MonitoringConfig struct {
	HealthPort int `yaml:"health_port"`
}

// Load reads CONFIG_FILE (default config.yaml) and fills gaps from the
// environment. A missing config file is not an error: everything can come
// from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(configFile)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	case os.IsNotExist(err):
		// env-only configuration
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	fill := func(field *string, name string) {
		if *field == "" {
			*field = os.Getenv(name)
		}
	}
	fill(&c.YouTube.APIKey, "YOUTUBE_API_KEY")
	fill(&c.YouTube.ClientID, "GOOGLE_CLIENT_ID")
	fill(&c.YouTube.ClientSecret, "GOOGLE_CLIENT_SECRET")
	fill(&c.AI.GeminiAPIKey, "GEMINI_API_KEY")
	fill(&c.Email.Username, "EMAIL_USERNAME")
	fill(&c.Email.Password, "EMAIL_PASSWORD")
	fill(&c.Server.APIKey, "REVIVAL_API_KEY")
	fill(&c.LogLevel, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.YouTube.TokenFile == "" {
		c.YouTube.TokenFile = "youtube_token.json"
	}
	if c.AI.Model == "" {
		c.AI.Model = "gemini-2.5-flash"
	}
	if c.AI.ImageModel == "" {
		c.AI.ImageModel = "gemini-2.5-flash-image"
	}
	if c.AI.KeyFile == "" {
		c.AI.KeyFile = "data/gemini_key"
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RateLimitPerMinute == 0 {
		c.Server.RateLimitPerMinute = 10
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = 3
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.MaxAgeHours == 0 {
		c.Storage.MaxAgeHours = 30 * 24
	}
	if c.Schedule == "" {
		c.Schedule = "0 0 3 * * *" // Daily at 3 AM, seconds field first
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
}

// The Gemini key is intentionally not required here: the CLI can obtain one
// through the key manager at run time.
func (c *Config) validate() error {
	if (c.YouTube.ClientID == "") != (c.YouTube.ClientSecret == "") {
		return fmt.Errorf("YouTube OAuth needs both client ID and client secret (set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET)")
	}
	if c.Email.Enabled() {
		if c.Email.Username == "" {
			return fmt.Errorf("Email username is required when email is enabled (set EMAIL_USERNAME or email.username)")
		}
		if c.Email.Password == "" {
			return fmt.Errorf("Email password is required when email is enabled (set EMAIL_PASSWORD or email.password)")
		}
	}
	if c.Server.RateLimitPerMinute < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("server rate limits must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q (use debug, info, warn or error)", c.LogLevel)
	}
	return nil
}

// ValidateServer checks what the HTTP service needs beyond the base config.
func (c *Config) ValidateServer() error {
	if c.AI.GeminiAPIKey == "" {
		return fmt.Errorf("Gemini API key is required to serve (set GEMINI_API_KEY or ai.gemini_api_key)")
	}
	return nil
}
