// Package config loads aibo configuration from an optional YAML file with
// environment variable overrides. Required credentials are validated up
// front so a misconfigured bot fails at startup, not mid-conversation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aibo-bot/aibo/common/environment"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MatrixConfig configures the Matrix transport.
type MatrixConfig struct {
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token"`
	Rooms       []string `yaml:"rooms"`
}

// OpenAIConfig configures the AI completion client.
type OpenAIConfig struct {
	APIKey        string   `yaml:"api_key"`
	BaseURL       string   `yaml:"base_url"`
	Model         string   `yaml:"model"`
	Temperature   float32  `yaml:"temperature"`
	Timeout       Duration `yaml:"timeout"`
	MaxToolRounds int      `yaml:"max_tool_rounds"`
}

// LinkdingConfig configures the optional bookmark integration. Both fields
// must be set for the integration to activate.
type LinkdingConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Config is the full aibo configuration.
type Config struct {
	LogLevel     string         `yaml:"log_level"`
	LogFormat    string         `yaml:"log_format"`
	DatabasePath string         `yaml:"database_path"`
	LockTimeout  Duration       `yaml:"lock_timeout"`
	Matrix       MatrixConfig   `yaml:"matrix"`
	OpenAI       OpenAIConfig   `yaml:"openai"`
	Linkding     LinkdingConfig `yaml:"linkding"`
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{
		LogLevel:     "info",
		LogFormat:    "text",
		DatabasePath: "./aibo.db",
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables on top of the file values.
func (c *Config) applyEnv() {
	c.LogLevel = environment.StringOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = environment.StringOr("LOG_FORMAT", c.LogFormat)
	c.DatabasePath = environment.StringOr("DATABASE_PATH", c.DatabasePath)
	c.LockTimeout = Duration(environment.DurationOr("CHAT_LOCK_TIMEOUT", time.Duration(c.LockTimeout)))

	c.Matrix.Homeserver = environment.StringOr("MATRIX_HOMESERVER", c.Matrix.Homeserver)
	c.Matrix.UserID = environment.StringOr("MATRIX_USER_ID", c.Matrix.UserID)
	c.Matrix.AccessToken = environment.StringOr("MATRIX_ACCESS_TOKEN", c.Matrix.AccessToken)
	c.Matrix.Rooms = environment.StringSliceOr("MATRIX_ROOMS", c.Matrix.Rooms)

	c.OpenAI.APIKey = environment.StringOr("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = environment.StringOr("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.Model = environment.StringOr("OPENAI_MODEL", c.OpenAI.Model)
	c.OpenAI.Timeout = Duration(environment.DurationOr("OPENAI_TIMEOUT", time.Duration(c.OpenAI.Timeout)))
	c.OpenAI.MaxToolRounds = environment.IntOr("OPENAI_MAX_TOOL_ROUNDS", c.OpenAI.MaxToolRounds)

	c.Linkding.URL = environment.StringOr("LINKDING_URL", c.Linkding.URL)
	c.Linkding.Token = environment.StringOr("LINKDING_TOKEN", c.Linkding.Token)
}

// Validate checks that every required credential is present.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver (MATRIX_HOMESERVER) is required")
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id (MATRIX_USER_ID) is required")
	}
	if c.Matrix.AccessToken == "" {
		return fmt.Errorf("matrix.access_token (MATRIX_ACCESS_TOKEN) is required")
	}
	if len(c.Matrix.Rooms) == 0 {
		return fmt.Errorf("matrix.rooms (MATRIX_ROOMS) is required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key (OPENAI_API_KEY) is required")
	}
	if (c.Linkding.URL == "") != (c.Linkding.Token == "") {
		return fmt.Errorf("linkding.url and linkding.token must both be set or both be empty")
	}
	return nil
}

// LinkdingEnabled reports whether the bookmark integration is configured.
func (c *Config) LinkdingEnabled() bool {
	return c.Linkding.URL != "" && c.Linkding.Token != ""
}
