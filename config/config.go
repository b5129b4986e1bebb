// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// PairingMode selects how the bot acquires credentials on first boot.
type PairingMode string

const (
	// PairToken registers a fresh account with a registration pairing
	// code entered by the operator.
	PairToken PairingMode = "token"
	// PairPassword logs into an existing account with a password.
	PairPassword PairingMode = "password"
)

// Config is the master configuration for the bot process.
type Config struct {
	// Bot configures identity and command parsing.
	Bot BotConfig `yaml:"bot"`

	// Homeserver configures the messaging network connection.
	Homeserver HomeserverConfig `yaml:"homeserver"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// OpenAI configures the language-model backend for the ai and
	// image commands. Optional: when absent those commands report
	// themselves unavailable.
	OpenAI OpenAIConfig `yaml:"openai"`
}

// BotConfig configures identity and command parsing.
type BotConfig struct {
	// Name is the display name the bot announces.
	Name string `yaml:"name"`

	// Prefix is the command sigil. Default: "."
	Prefix string `yaml:"prefix"`

	// Owner is the fully-qualified user ID allowed to run owner-only
	// commands.
	Owner string `yaml:"owner"`
}

// HomeserverConfig configures the messaging network connection.
type HomeserverConfig struct {
	// URL is the homeserver base URL, e.g. "https://matrix.example.org".
	URL string `yaml:"url"`

	// Username is the account localpart used for pairing or login.
	Username string `yaml:"username"`

	// Pairing selects token registration or password login for first
	// boot. Default: token.
	Pairing PairingMode `yaml:"pairing"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for bot data.
	Root string `yaml:"root"`

	// State holds the identity keypair and sealed credentials.
	State string `yaml:"state"`

	// Data holds the profile, settings, and score stores.
	Data string `yaml:"data"`
}

// OpenAIConfig configures the language-model backend.
type OpenAIConfig struct {
	// BaseURL is the API root. Default: https://api.openai.com/v1
	BaseURL string `yaml:"base_url"`

	// ChatModel is the model for the ai command.
	ChatModel string `yaml:"chat_model"`

	// ImageModel is the model for the image command.
	ImageModel string `yaml:"image_model"`

	// APIKeyFile is the path to a file holding the API key, or "-"
	// to read it from stdin at startup. The key itself never appears
	// in this file's values.
	APIKeyFile string `yaml:"api_key_file"`
}

// Default returns the default configuration. These defaults are the
// base before loading the config file; the file itself is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "davinto")

	return &Config{
		Bot: BotConfig{
			Name:   "davinto",
			Prefix: ".",
		},
		Homeserver: HomeserverConfig{
			Pairing: PairToken,
		},
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: filepath.Join(defaultRoot, "state"),
			Data:  filepath.Join(defaultRoot, "data"),
		},
		OpenAI: OpenAIConfig{
			BaseURL:   "https://api.openai.com/v1",
			ChatModel: "gpt-4o-mini",
		},
	}
}

// Load loads configuration from the DAVINTO_CONFIG environment
// variable. There are no fallbacks: if DAVINTO_CONFIG is not set,
// this fails. Deterministic, auditable configuration with no hidden
// overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("DAVINTO_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("DAVINTO_CONFIG environment variable not set; " +
			"set it to the path of your davinto.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override values. The only expansion performed is ${HOME} and
// similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"DAVINTO_ROOT": c.Paths.Root,
		"HOME":         os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["DAVINTO_ROOT"] = c.Paths.Root

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Data = expandVars(c.Paths.Data, vars)
	c.OpenAI.APIKeyFile = expandVars(c.OpenAI.APIKeyFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Homeserver.URL == "" {
		errs = append(errs, fmt.Errorf("homeserver.url is required"))
	}
	if c.Homeserver.Username == "" {
		errs = append(errs, fmt.Errorf("homeserver.username is required"))
	}
	if c.Homeserver.Pairing != PairToken && c.Homeserver.Pairing != PairPassword {
		errs = append(errs, fmt.Errorf("homeserver.pairing must be %q or %q", PairToken, PairPassword))
	}
	if c.Bot.Owner == "" {
		errs = append(errs, fmt.Errorf("bot.owner is required"))
	}
	if c.Bot.Prefix == "" {
		errs = append(errs, fmt.Errorf("bot.prefix must not be empty"))
	}
	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.OpenAI.APIKeyFile != "" && c.OpenAI.ChatModel == "" {
		errs = append(errs, fmt.Errorf("openai.chat_model is required when openai.api_key_file is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// AIEnabled reports whether the language-model commands have a
// configured backend.
func (c *Config) AIEnabled() bool {
	return c.OpenAI.APIKeyFile != ""
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.State, c.Paths.Data} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
