package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	envConfigPath        = "RIDDLEBOT_CONFIG"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
)

// DefaultApologyMessage is sent to the sender whenever a dispatch cycle fails.
const DefaultApologyMessage = "An error occurred while processing your request."

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Bot        BotConfig        `json:"bot"`
	Generation GenerationConfig `json:"generation"`
	Providers  ProvidersConfig  `json:"providers"`
	Channels   ChannelsConfig   `json:"channels"`
	Users      UsersConfig      `json:"users"`
	Game       GameConfig       `json:"game"`
	Gateway    GatewayConfig    `json:"gateway"`
	Logging    LoggingConfig    `json:"logging,omitempty"`
}

// BotConfig holds dispatcher-level behavior.
type BotConfig struct {
	ApologyMessage   string `json:"apology_message"`
	MaxMessageLength int    `json:"max_message_length"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// GenerationConfig selects the fallback generation backend and its model settings.
type GenerationConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Persona     string  `json:"persona"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	MaxSessions int     `json:"max_sessions"`
}

// ProvidersConfig stores per-provider connection settings.
type ProvidersConfig struct {
	OpenCode OpenCodeProviderConfig `json:"opencode"`
	OpenAI   OpenAIProviderConfig   `json:"openai"`
}

// OpenCodeProviderConfig configures the OpenCode provider client.
type OpenCodeProviderConfig struct {
	BaseURL               string `json:"base_url"`
	Username              string `json:"username"`
	PasswordEnv           string `json:"password_env"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// OpenAIProviderConfig configures the OpenAI provider client.
type OpenAIProviderConfig struct {
	BaseURL               string `json:"base_url"`
	APIKeyEnv             string `json:"api_key_env"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// UsersConfig selects and tunes the user directory.
type UsersConfig struct {
	Backend         string      `json:"backend"`
	Path            string      `json:"path"`
	AutoRegister    bool        `json:"auto_register"`
	CacheSize       int         `json:"cache_size"`
	CacheTTLSeconds int         `json:"cache_ttl_seconds"`
	Static          []UserEntry `json:"static"`
}

// UserEntry is one statically configured user profile.
type UserEntry struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Wallet  string `json:"wallet"`
}

// GameConfig tunes the riddle game skills.
type GameConfig struct {
	Enabled         bool   `json:"enabled"`
	MaxAttempts     int    `json:"max_attempts"`
	MaxHints        int    `json:"max_hints"`
	CooldownSeconds int    `json:"cooldown_seconds"`
	MaxSessions     int    `json:"max_sessions"`
	CatalogPath     string `json:"catalog_path"`
}

// GatewayConfig configures HTTP gateway bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Apology returns the configured apology or the built-in default.
func (c BotConfig) Apology() string {
	if value := strings.TrimSpace(c.ApologyMessage); value != "" {
		return value
	}

	return DefaultApologyMessage
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFile(configPath)
}

// LoadFile reads one config file and applies environment overrides.
func LoadFile(configPath string) (*Config, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is RIDDLEBOT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
