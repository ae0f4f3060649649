// Package config loads kubechat preferences: provider credentials and model
// selection from a TOML file, with environment variable fallbacks for API
// keys.
//
// File location precedence:
//   - the KUBECHAT_CONFIG environment variable
//   - ~/.kubechat/config.toml
//   - built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"kubechat/chat"
	"kubechat/provider"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel    = "gpt-4o"
	defaultMaxTokens      = 4096
)

// ProviderConfig holds per-provider credentials and model selection.
type ProviderConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int64  `toml:"max_tokens"`
}

// Config is the complete kubechat configuration.
type Config struct {
	DefaultProvider string                    `toml:"default_provider"`
	Kubeconfig      string                    `toml:"kubeconfig"`
	HTTPAddr        string                    `toml:"http_addr"`
	Providers       map[string]ProviderConfig `toml:"providers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultProvider: string(provider.Anthropic),
		HTTPAddr:        "127.0.0.1:8844",
		Providers: map[string]ProviderConfig{
			string(provider.Anthropic): {Model: defaultAnthropicModel, MaxTokens: defaultMaxTokens},
			string(provider.OpenAI):    {Model: defaultOpenAIModel, MaxTokens: defaultMaxTokens},
		},
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kubechat", "config.toml")
}

// Load reads the config file at path (or the default locations when path is
// empty), merges it over the defaults, and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("KUBECHAT_CONFIG")
	}
	if path == "" {
		path = DefaultPath()
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for id, model := range map[string]string{
		string(provider.Anthropic): defaultAnthropicModel,
		string(provider.OpenAI):    defaultOpenAIModel,
	} {
		pc := c.Providers[id]
		if pc.Model == "" {
			pc.Model = model
		}
		if pc.MaxTokens <= 0 {
			pc.MaxTokens = defaultMaxTokens
		}
		c.Providers[id] = pc
	}
	if c.DefaultProvider == "" {
		c.DefaultProvider = string(provider.Anthropic)
	}
}

// applyEnv fills missing API keys from the conventional environment
// variables.
func (c *Config) applyEnv() {
	for id, envVar := range map[string]string{
		string(provider.Anthropic): "ANTHROPIC_API_KEY",
		string(provider.OpenAI):    "OPENAI_API_KEY",
	} {
		pc := c.Providers[id]
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv(envVar)
		}
		c.Providers[id] = pc
	}
}

// Credential implements chat.CredentialSource.
func (c *Config) Credential(id provider.ID) (chat.Credential, bool) {
	pc, ok := c.Providers[string(id)]
	if !ok || pc.APIKey == "" {
		return chat.Credential{}, false
	}
	return chat.Credential{
		APIKey:    pc.APIKey,
		Model:     pc.Model,
		MaxTokens: pc.MaxTokens,
	}, true
}
