package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	kberrors "apikb/internal/errors"
)

// Config represents the complete apikb configuration (v2 schema)
type Config struct {
	Version     int    `json:"version" mapstructure:"version"`
	ProjectRoot string `json:"projectRoot" mapstructure:"projectRoot"`

	Scan    ScanConfig    `json:"scan" mapstructure:"scan"`
	Sync    SyncConfig    `json:"sync" mapstructure:"sync"`
	Vector  VectorConfig  `json:"vector" mapstructure:"vector"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ScanConfig controls source file discovery
type ScanConfig struct {
	Include          []string `json:"include" mapstructure:"include"`
	Exclude          []string `json:"exclude" mapstructure:"exclude"`
	MaxFileSizeBytes int64    `json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	Workers          int      `json:"workers" mapstructure:"workers"`
}

// SyncConfig controls incremental re-extraction and watch mode
type SyncConfig struct {
	DebounceMs int `json:"debounceMs" mapstructure:"debounceMs"`
}

// VectorConfig controls embedding generation and retrieval
type VectorConfig struct {
	// Provider selects the embedding backend: "ollama" or "genai"
	Provider       string `json:"provider" mapstructure:"provider"`
	OllamaEndpoint string `json:"ollamaEndpoint" mapstructure:"ollamaEndpoint"`
	OllamaModel    string `json:"ollamaModel" mapstructure:"ollamaModel"`
	GenAIAPIKey    string `json:"genaiApiKey" mapstructure:"genaiApiKey"`
	GenAIModel     string `json:"genaiModel" mapstructure:"genaiModel"`

	// MaxChunkTokens bounds the estimated token count of a single chunk so a
	// chunk never exceeds the embedding model's input limit
	MaxChunkTokens int `json:"maxChunkTokens" mapstructure:"maxChunkTokens"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// StateDirName is the per-project state directory holding the manifest,
// the vector index, and the config file.
const StateDirName = ".apikb"

const currentConfigVersion = 2

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:     currentConfigVersion,
		ProjectRoot: ".",
		Scan: ScanConfig{
			Include:          []string{},
			Exclude:          []string{},
			MaxFileSizeBytes: 1_000_000,
			Workers:          0, // 0 = derive from GOMAXPROCS
		},
		Sync: SyncConfig{
			DebounceMs: 500,
		},
		Vector: VectorConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			MaxChunkTokens: 512,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// Load loads configuration from <projectRoot>/.apikb/config.json.
// A missing config file is not an error; defaults are returned.
func Load(projectRoot string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("version", defaults.Version)
	v.SetDefault("projectRoot", defaults.ProjectRoot)
	v.SetDefault("scan.maxFileSizeBytes", defaults.Scan.MaxFileSizeBytes)
	v.SetDefault("scan.workers", defaults.Scan.Workers)
	v.SetDefault("sync.debounceMs", defaults.Sync.DebounceMs)
	v.SetDefault("vector.provider", defaults.Vector.Provider)
	v.SetDefault("vector.ollamaEndpoint", defaults.Vector.OllamaEndpoint)
	v.SetDefault("vector.ollamaModel", defaults.Vector.OllamaModel)
	v.SetDefault("vector.genaiModel", defaults.Vector.GenAIModel)
	v.SetDefault("vector.maxChunkTokens", defaults.Vector.MaxChunkTokens)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.level", defaults.Logging.Level)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(projectRoot, StateDirName))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cfg := DefaultConfig()
			cfg.ProjectRoot = projectRoot
			return cfg, nil
		}
		return nil, kberrors.New(kberrors.ConfigInvalid, "failed to read config file", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, kberrors.New(kberrors.ConfigInvalid, "failed to parse config file", err)
	}
	if cfg.ProjectRoot == "" || cfg.ProjectRoot == "." {
		cfg.ProjectRoot = projectRoot
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to <projectRoot>/.apikb/config.json
func (c *Config) Save(projectRoot string) error {
	dir := filepath.Join(projectRoot, StateDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != currentConfigVersion {
		return kberrors.New(kberrors.ConfigInvalid, "unsupported config version", nil).
			WithDetails(map[string]int{"version": c.Version, "supported": currentConfigVersion})
	}
	if c.Vector.MaxChunkTokens <= 0 {
		return kberrors.New(kberrors.ConfigInvalid, "vector.maxChunkTokens must be positive", nil)
	}
	if c.Sync.DebounceMs < 0 {
		return kberrors.New(kberrors.ConfigInvalid, "sync.debounceMs must not be negative", nil)
	}
	switch c.Vector.Provider {
	case "ollama", "genai", "none":
	default:
		return kberrors.New(kberrors.ConfigInvalid, "vector.provider must be one of ollama, genai, none", nil)
	}
	return nil
}
