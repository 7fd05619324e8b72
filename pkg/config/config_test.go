package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "bot": {"apology_message": "sorry!", "max_message_length": 1000},
	  "generation": {"provider": "openai", "model": "openai/gpt-5.2"},
	  "channels": {"telegram": {"enabled": true, "token": "file-token"}},
	  "users": {"backend": "static", "static": [{"address": "42", "name": "Ada"}]},
	  "game": {"enabled": true, "max_attempts": 3, "max_hints": 3, "cooldown_seconds": 60},
	  "gateway": {"host": "0.0.0.0", "port": 18790},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("RIDDLEBOT_CONFIG", path)
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_ALLOW_FROM", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging.level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if !cfg.Logging.AddSource {
		t.Fatal("logging.add_source = false, want true")
	}
	if got := cfg.Bot.Apology(); got != "sorry!" {
		t.Fatalf("apology = %q, want %q", got, "sorry!")
	}
	if len(cfg.Users.Static) != 1 || cfg.Users.Static[0].Name != "Ada" {
		t.Fatalf("users.static = %#v", cfg.Users.Static)
	}
	if cfg.Channels.Telegram.Token != "file-token" {
		t.Fatalf("telegram token = %q, want %q", cfg.Channels.Telegram.Token, "file-token")
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("RIDDLEBOT_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", " env-token ")
	t.Setenv("TELEGRAM_ALLOW_FROM", "1, 2,,3 ")

	cfg := &Config{}
	cfg.Channels.Telegram.Token = "file-token"
	applyEnvOverrides(cfg)

	if cfg.Channels.Telegram.Token != "env-token" {
		t.Fatalf("token = %q, want %q", cfg.Channels.Telegram.Token, "env-token")
	}
	if got := cfg.Channels.Telegram.AllowFrom; len(got) != 3 || got[0] != "1" || got[2] != "3" {
		t.Fatalf("allow_from = %#v", got)
	}
}

func TestApologyDefault(t *testing.T) {
	if got := (BotConfig{ApologyMessage: "  "}).Apology(); got != DefaultApologyMessage {
		t.Fatalf("apology = %q, want default", got)
	}
}
