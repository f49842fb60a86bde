package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Search  SearchConfig
	Maps    MapsConfig
	App     AppConfig
	Chat    ChatConfig
	Storage StorageConfig
	Log     LogConfig
	Admin   AdminConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// LLMConfig points at an OpenAI-compatible chat-completions API.
type LLMConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type SearchConfig struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
}

type MapsConfig struct {
	APIKey string
}

type AppConfig struct {
	Env   string
	Debug bool
}

type ChatConfig struct {
	// ProxyURL is the base URL of a running hdr server. Clients (the CLI
	// ask command) use it as the first response tier.
	ProxyURL  string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level  string
	Format string
}

type AdminConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.mistral.ai/v1",
			Model:   "mistral-small-latest",
		},
		Search: SearchConfig{
			BaseURL:  "https://api.tavily.com",
			CacheTTL: 5 * time.Minute,
		},
		App: AppConfig{
			Env: "production",
		},
		Chat: ChatConfig{
			Timeout:   30 * time.Second,
			RateLimit: 2,
			RateBurst: 10,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Load reads configuration from the TOML config file, a .env file in the
// working directory, environment variables, and the secrets file.
//
// The config file lives at $XDG_CONFIG_HOME/hdr/config.toml. Secrets (API
// keys, admin token) are never read from it; they come from environment
// variables or from $XDG_DATA_HOME/hdr/secrets.json.
//
// Missing API keys are not an error: the service runs in degraded mode and
// answers from its built-in guidance.
func Load() (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not read .env: %v\n", err)
	}
	return loadWith(newFileBackend(configFilePath()), fileSecrets{path: secretsFilePath()})
}

// loadFromPath loads config from an explicit TOML file.
func loadFromPath(path string, s secretStore) (Config, error) {
	return loadWith(newFileBackend(path), s)
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(account string) (string, error)
	Set(account, value string) error
}

func loadWith(b ConfigBackend, s secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, spec := range specs {
		if !spec.secret || spec.extract(cfg) != "" {
			continue
		}
		if v, err := s.Get(spec.key); err == nil && v != "" {
			spec.apply(&cfg, strings.TrimSpace(v))
		}
	}

	return cfg, nil
}

// Missing lists the env vars of secrets that are not configured. The
// service still starts; callers log these as degraded capabilities.
func Missing(cfg Config) []string {
	var out []string
	for _, s := range specs {
		if s.secret && !s.generated && s.extract(cfg) == "" {
			out = append(out, s.env)
		}
	}
	return out
}
