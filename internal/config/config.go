package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dyluth/parley/internal/agent"
	"github.com/dyluth/parley/internal/logging"
	"github.com/dyluth/parley/pkg/negotiation"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Config represents a parley.yml (or parley.toml) session configuration
type Config struct {
	Role           string       `yaml:"role" toml:"role"`                       // Negotiation role, validated by the protocol at startup
	DefaultChannel string       `yaml:"default_channel" toml:"default_channel"` // Channel for initial broadcasts
	Init           string       `yaml:"init,omitempty" toml:"init"`             // Initial envelope JSON, or @path to a file holding it
	Redis          RedisConfig  `yaml:"redis" toml:"redis"`
	Agent          AgentConfig  `yaml:"agent" toml:"agent"`
	Health         HealthConfig `yaml:"health" toml:"health"`
	Log            LogConfig    `yaml:"log" toml:"log"`
}

// RedisConfig locates the pub/sub broker
type RedisConfig struct {
	URL string `yaml:"url" toml:"url"`
}

// AgentConfig selects the decision agent
type AgentConfig struct {
	Kind         string  `yaml:"kind" toml:"kind"`                             // http, claude, openai or scripted
	URL          string  `yaml:"url,omitempty" toml:"url"`                     // http: agent endpoint
	Timeout      string  `yaml:"timeout,omitempty" toml:"timeout"`             // http: Go duration, empty for none
	Policy       string  `yaml:"policy,omitempty" toml:"policy"`               // scripted: policy file
	Model        string  `yaml:"model,omitempty" toml:"model"`                 // claude, openai
	APIKeyEnv    string  `yaml:"api_key_env,omitempty" toml:"api_key_env"`     // claude, openai: env var holding the key
	BaseURL      string  `yaml:"base_url,omitempty" toml:"base_url"`           // claude, openai: provider override
	SystemPrompt string  `yaml:"system_prompt,omitempty" toml:"system_prompt"` // claude, openai
	MaxTokens    int64   `yaml:"max_tokens,omitempty" toml:"max_tokens"`       // claude, openai
	Temperature  float64 `yaml:"temperature,omitempty" toml:"temperature"`     // claude, openai
}

// HealthConfig enables the health endpoint
type HealthConfig struct {
	Port int `yaml:"port" toml:"port"` // 0 disables the endpoint
}

// LogConfig selects log verbosity and format
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // console or json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DefaultChannel: negotiation.DefaultChannel,
		Redis:          RedisConfig{URL: "redis://localhost:6379"},
		Agent:          AgentConfig{Kind: string(agent.KindHTTP)},
		Log:            LogConfig{Level: "info", Format: "console"},
	}
}

// Read builds a configuration from defaults, the file at path (if any) and environment
// overrides, without validating it. Callers that apply further overrides, such as
// command-line flags, call Validate afterwards.
// The file format is chosen by extension: .yml, .yaml or .toml.
func Read(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yml", ".yaml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML: %w", err)
			}
		case ".toml":
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse TOML: %w", err)
			}
		default:
			return nil, fmt.Errorf("unsupported config format %q (use .yml, .yaml or .toml)", filepath.Ext(path))
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and validates a configuration.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PARLEY_* variables and REDIS_URL.
func (c *Config) ApplyEnv() error {
	setString := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	setString("PARLEY_ROLE", &c.Role)
	setString("PARLEY_DEFAULT_CHANNEL", &c.DefaultChannel)
	setString("PARLEY_INIT", &c.Init)
	setString("REDIS_URL", &c.Redis.URL)
	setString("PARLEY_AGENT_KIND", &c.Agent.Kind)
	setString("PARLEY_AGENT_URL", &c.Agent.URL)
	setString("PARLEY_AGENT_POLICY", &c.Agent.Policy)

	if v, ok := os.LookupEnv("PARLEY_HEALTH_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PARLEY_HEALTH_PORT must be an integer, got %q", v)
		}
		c.Health.Port = port
	}

	return nil
}

// Validate performs fail-fast validation. Role membership is not checked here: the
// protocol decides which roles exist when the session starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Role) == "" {
		return fmt.Errorf("role is required")
	}

	if strings.TrimSpace(c.DefaultChannel) == "" {
		return fmt.Errorf("default_channel cannot be empty")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if _, err := redis.ParseURL(c.Redis.URL); err != nil {
		return fmt.Errorf("invalid redis.url: %w", err)
	}

	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("invalid agent: %w", err)
	}

	if c.Health.Port < 0 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 0 and 65535, got %d", c.Health.Port)
	}

	if c.Log.Level != "" {
		if _, ok := logging.ParseLevel(c.Log.Level); !ok {
			return fmt.Errorf("invalid log.level %q", c.Log.Level)
		}
	}
	switch c.Log.Format {
	case "", logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("log.format must be 'console' or 'json', got %q", c.Log.Format)
	}

	return nil
}

// Validate checks the agent kind and the fields that kind requires.
func (a *AgentConfig) Validate() error {
	kind := agent.Kind(a.Kind)
	if err := kind.Validate(); err != nil {
		return err
	}

	switch kind {
	case agent.KindHTTP:
		if a.URL == "" {
			return fmt.Errorf("url is required for kind 'http'")
		}
	case agent.KindScripted:
		if a.Policy == "" {
			return fmt.Errorf("policy is required for kind 'scripted'")
		}
	}

	if a.Timeout != "" {
		d, err := time.ParseDuration(a.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", a.Timeout, err)
		}
		if d < 0 {
			return fmt.Errorf("timeout cannot be negative")
		}
	}

	if a.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative")
	}

	return nil
}

// AgentOptions converts the agent section into an agent.Config for role.
// The API key is read from the variable named by api_key_env, when set.
func (c *Config) AgentOptions() (agent.Config, error) {
	var timeout time.Duration
	if c.Agent.Timeout != "" {
		d, err := time.ParseDuration(c.Agent.Timeout)
		if err != nil {
			return agent.Config{}, fmt.Errorf("invalid agent timeout: %w", err)
		}
		timeout = d
	}

	var apiKey string
	if c.Agent.APIKeyEnv != "" {
		apiKey = os.Getenv(c.Agent.APIKeyEnv)
		if apiKey == "" {
			return agent.Config{}, fmt.Errorf("%s environment variable is empty", c.Agent.APIKeyEnv)
		}
	}

	return agent.Config{
		Kind:    agent.Kind(c.Agent.Kind),
		URL:     c.Agent.URL,
		Timeout: timeout,
		Policy:  c.Agent.Policy,
		LLM: agent.LLMOptions{
			Model:        c.Agent.Model,
			APIKey:       apiKey,
			BaseURL:      c.Agent.BaseURL,
			Role:         c.Role,
			SystemPrompt: c.Agent.SystemPrompt,
			MaxTokens:    c.Agent.MaxTokens,
			Temperature:  c.Agent.Temperature,
		},
	}, nil
}

// InitEnvelope returns the raw initial envelope, or nil when none is configured.
// A value starting with '@' names a file to read it from.
func (c *Config) InitEnvelope() ([]byte, error) {
	init := strings.TrimSpace(c.Init)
	if init == "" {
		return nil, nil
	}

	if path, ok := strings.CutPrefix(init, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read init envelope: %w", err)
		}
		return data, nil
	}

	return []byte(init), nil
}
