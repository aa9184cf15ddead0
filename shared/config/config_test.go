package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"YOUTUBE_API_KEY", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GEMINI_API_KEY",
		"EMAIL_USERNAME", "EMAIL_PASSWORD", "REVIVAL_API_KEY", "LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AI.GeminiAPIKey != "env-key" {
		t.Errorf("GeminiAPIKey = %q, want env-key", cfg.AI.GeminiAPIKey)
	}
	if cfg.AI.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q, want gemini-2.5-flash", cfg.AI.Model)
	}
	if cfg.AI.ImageModel != "gemini-2.5-flash-image" {
		t.Errorf("ImageModel = %q", cfg.AI.ImageModel)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Storage.MaxAgeHours != 720 {
		t.Errorf("Storage.MaxAgeHours = %d, want 720", cfg.Storage.MaxAgeHours)
	}
	if cfg.Schedule != "0 0 3 * * *" {
		t.Errorf("Schedule = %q", cfg.Schedule)
	}
	if cfg.YouTube.UsesOAuth() {
		t.Error("UsesOAuth() = true without client credentials")
	}
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("ValidateServer() error = %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeConfig(t, `
youtube:
  api_key: yt-file-key
ai:
  gemini_api_key: file-key
  model: gemini-2.5-pro
server:
  addr: ":9090"
  rate_limit_per_minute: 60
log_level: DEBUG
`))
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.GeminiAPIKey != "file-key" {
		t.Errorf("file value should win over env: got %q", cfg.AI.GeminiAPIKey)
	}
	if cfg.AI.Model != "gemini-2.5-pro" {
		t.Errorf("Model = %q", cfg.AI.Model)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.RateLimitPerMinute != 60 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"half OAuth", "youtube:\n  client_id: only-id\n"},
		{"email without credentials", "email:\n  smtp_server: smtp.test.com\n  to_email: me@test.com\n"},
		{"bad log level", "log_level: verbose\n"},
		{"negative rate", "server:\n  rate_limit_burst: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("CONFIG_FILE", writeConfig(t, tt.body))
			if _, err := Load(); err == nil {
				t.Error("Load() expected validation error")
			}
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeConfig(t, "ai: [unterminated"))
	if _, err := Load(); err == nil {
		t.Error("Load() expected parse error")
	}
}

func TestValidateServerRequiresKey(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateServer(); err == nil {
		t.Error("ValidateServer() expected error without Gemini key")
	}
}
