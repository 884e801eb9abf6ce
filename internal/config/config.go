// Package config provides configuration loading and structs for the shashin server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variables that override config values.
const EnvPrefix = "SHASHIN_"

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Library   LibraryConfig   `yaml:"library"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects and locates the embedding store.
type StorageConfig struct {
	// Type is "sqlite" (default) or "memory".
	Type         string `yaml:"type"`
	DatabasePath string `yaml:"database_path"`
	// SnapshotPath is where the memory store persists itself on shutdown. Empty disables it.
	SnapshotPath string `yaml:"snapshot_path"`
}

// TokenizerConfig holds the BPE vocabulary settings.
type TokenizerConfig struct {
	MergesPath    string `yaml:"merges_path"`
	ContextLength int    `yaml:"context_length"`
	// MaxMerges caps how many merge lines are read. Negative means all lines.
	MaxMerges int `yaml:"max_merges"`
	CacheSize int `yaml:"cache_size"`
	// KeepEndOfText forces the last id of a truncated sequence to be end-of-text.
	KeepEndOfText bool `yaml:"keep_end_of_text"`
}

// EmbeddingConfig holds CLIP ONNX embedder settings.
type EmbeddingConfig struct {
	TextModelPath   string `yaml:"text_model_path"`
	ImageModelPath  string `yaml:"image_model_path"`
	SharedLibrary   string `yaml:"shared_library"`
	Dimensions      int    `yaml:"dimensions"`
	ImageSize       int    `yaml:"image_size"`
	TextInputName   string `yaml:"text_input_name"`
	TextOutputName  string `yaml:"text_output_name"`
	ImageInputName  string `yaml:"image_input_name"`
	ImageOutputName string `yaml:"image_output_name"`
	CacheSize       int    `yaml:"cache_size"`
	// AllowMock falls back to a deterministic mock embedder when the models cannot be loaded.
	AllowMock bool `yaml:"allow_mock"`
}

// SearchConfig holds ranking defaults.
type SearchConfig struct {
	DefaultLimit     int      `yaml:"default_limit"`
	MaxLimit         int      `yaml:"max_limit"`
	DefaultThreshold *float64 `yaml:"default_threshold"`
}

// Threshold returns the configured default threshold, or 0.2 when unset.
func (s *SearchConfig) Threshold() float64 {
	if s.DefaultThreshold != nil {
		return *s.DefaultThreshold
	}
	return 0.2
}

// LibraryConfig holds the media roots to scan.
type LibraryConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	Watch       bool     `yaml:"watch"`
}

// RecursiveOrDefault returns whether to scan recursively; defaults to true when unset.
func (l *LibraryConfig) RecursiveOrDefault() bool {
	if l.Recursive != nil {
		return *l.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, applies defaults and
// SHASHIN_* environment overrides. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.SnapshotPath = expandPath(cfg.Storage.SnapshotPath, configDir)
	cfg.Tokenizer.MergesPath = expandPath(cfg.Tokenizer.MergesPath, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	cfg.Embedding.ImageModelPath = expandPath(cfg.Embedding.ImageModelPath, configDir)
	for i := range cfg.Library.Directories {
		cfg.Library.Directories[i] = expandPath(cfg.Library.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting library directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg fields from SHASHIN_* variables found through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("SERVER_HOST", &cfg.Server.Host)
	str("DATABASE_PATH", &cfg.Storage.DatabasePath)
	str("STORAGE_TYPE", &cfg.Storage.Type)
	str("MERGES_PATH", &cfg.Tokenizer.MergesPath)
	str("TEXT_MODEL_PATH", &cfg.Embedding.TextModelPath)
	str("IMAGE_MODEL_PATH", &cfg.Embedding.ImageModelPath)
	str("ONNX_LIBRARY", &cfg.Embedding.SharedLibrary)

	if v, ok := lookup(EnvPrefix + "SERVER_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sSERVER_PORT %q: %w", EnvPrefix, v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup(EnvPrefix + "DEBUG"); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sDEBUG %q: %w", EnvPrefix, v, err)
		}
		cfg.Debug = debug
	}
	if v, ok := lookup(EnvPrefix + "LIBRARY_DIRS"); ok && v != "" {
		cfg.Library.Directories = filepath.SplitList(v)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
