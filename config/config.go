// Package config loads the bankcopilot configuration from defaults, an
// optional YAML file, a .env file and environment variables, in that order
// of increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendCosmos = "cosmos"
)

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Model     ModelConfig     `yaml:"model"`
	Store     StoreConfig     `yaml:"store"`
	GroupChat GroupChatConfig `yaml:"groupchat"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// ModelConfig selects and configures the language model.
type ModelConfig struct {
	Provider       string  `yaml:"provider"`
	Name           string  `yaml:"name"`
	EmbeddingModel string  `yaml:"embedding_model"`
	Temperature    float64 `yaml:"temperature"`
	APIKey         string  `yaml:"api_key"`
	Endpoint       string  `yaml:"endpoint"`
	APIVersion     string  `yaml:"api_version"`
	Host           string  `yaml:"host"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string       `yaml:"backend"`
	Path    string       `yaml:"path"`
	Cosmos  CosmosConfig `yaml:"cosmos"`
}

// CosmosConfig configures the Cosmos DB backend. An empty key selects the
// default Azure credential chain.
type CosmosConfig struct {
	Endpoint string `yaml:"endpoint"`
	Key      string `yaml:"key"`
	Database string `yaml:"database"`
}

// GroupChatConfig tunes the turn-taking protocol.
type GroupChatConfig struct {
	MaxIterations      int `yaml:"max_iterations"`
	SelectionHistory   int `yaml:"selection_history"`
	TerminationHistory int `yaml:"termination_history"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Model: ModelConfig{
			Provider:    ProviderMock,
			Temperature: 0.2,
			APIVersion:  "2024-10-21",
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			Path:    "bankcopilot.db",
			Cosmos:  CosmosConfig{Database: "MultiAgentBanking"},
		},
		GroupChat: GroupChatConfig{
			MaxIterations:      5,
			SelectionHistory:   5,
			TerminationHistory: 10,
		},
	}
}

// Load builds the configuration. path may be empty. A missing .env file is
// not an error; a missing YAML file named by path is.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.decode(raw); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML on top of the current values. Unknown keys are rejected.
func (c *Config) decode(raw []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Server.Addr, "BANKCOPILOT_ADDR")
	if v, ok := lookup("BANKCOPILOT_ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitCSV(v)
	}
	str(&c.Log.Level, "BANKCOPILOT_LOG_LEVEL")
	str(&c.Log.Format, "BANKCOPILOT_LOG_FORMAT")
	str(&c.Model.Provider, "BANKCOPILOT_MODEL_PROVIDER")
	str(&c.Model.Name, "BANKCOPILOT_MODEL", "AZURE_OPENAI_COMPLETIONSDEPLOYMENTID")
	str(&c.Model.EmbeddingModel, "BANKCOPILOT_EMBEDDING_MODEL", "AZURE_OPENAI_EMBEDDINGDEPLOYMENTID")
	str(&c.Model.Endpoint, "AZURE_OPENAI_ENDPOINT")
	str(&c.Model.APIVersion, "AZURE_OPENAI_API_VERSION")
	str(&c.Model.Host, "OLLAMA_HOST")
	str(&c.Store.Backend, "BANKCOPILOT_STORE")
	str(&c.Store.Path, "BANKCOPILOT_SQLITE_PATH")
	str(&c.Store.Cosmos.Endpoint, "COSMOSDB_ENDPOINT")
	str(&c.Store.Cosmos.Key, "COSMOSDB_KEY")
	str(&c.Store.Cosmos.Database, "COSMOSDB_DATABASE")

	switch c.Model.Provider {
	case ProviderAzure:
		str(&c.Model.APIKey, "AZURE_OPENAI_KEY", "AZURE_OPENAI_API_KEY")
	case ProviderOpenAI:
		str(&c.Model.APIKey, "OPENAI_API_KEY")
	case ProviderAnthropic:
		str(&c.Model.APIKey, "ANTHROPIC_API_KEY")
	}

	if v, ok := lookup("BANKCOPILOT_MAX_ITERATIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BANKCOPILOT_MAX_ITERATIONS: %w", err)
		}
		c.GroupChat.MaxIterations = n
	}
	return nil
}

// Validate checks provider, backend and the settings they require.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderMock:
	case ProviderAzure:
		if c.Model.Endpoint == "" {
			return errors.New("config: azure provider requires model.endpoint (AZURE_OPENAI_ENDPOINT)")
		}
	default:
		return fmt.Errorf("config: unknown model provider %q", c.Model.Provider)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.Path == "" {
			return errors.New("config: sqlite backend requires store.path")
		}
	case BackendCosmos:
		if c.Store.Cosmos.Endpoint == "" {
			return errors.New("config: cosmos backend requires store.cosmos.endpoint (COSMOSDB_ENDPOINT)")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}

	if c.GroupChat.MaxIterations <= 0 {
		return fmt.Errorf("config: groupchat.max_iterations must be positive, got %d", c.GroupChat.MaxIterations)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("config: log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
