package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// PathEnv points at an explicit config file.
const PathEnv = "INBOX_CONFIG"

const (
	DefaultListen    = ":5000"
	DefaultSampleDir = "sample-data"
	DefaultLogLevel  = "info"
)

// Config represents the global ~/.inbox/config.toml.
type Config struct {
	DefaultInstance string         `toml:"default_instance"`
	Server          ServerConfig   `toml:"server"`
	Ingest          IngestConfig   `toml:"ingest"`
	NATS            NATSConfig     `toml:"nats"`
	Redis           RedisConfig    `toml:"redis"`
	Business        BusinessConfig `toml:"business"`
	Log             LogConfig      `toml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen string `toml:"listen"`
}

// IngestConfig configures batch ingestion.
type IngestConfig struct {
	SampleDir string `toml:"sample_dir"`
}

// NATSConfig enables the cross-process event relay when URL is set.
type NATSConfig struct {
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// RedisConfig enables the Redis pub/sub relay when URL is set. NATS and Redis are
// mutually exclusive.
type RedisConfig struct {
	URL           string `toml:"url"`
	ChannelPrefix string `toml:"channel_prefix"`
}

// BusinessConfig describes the owning business line.
type BusinessConfig struct {
	// DisplayPhoneNumber is used only when a payload carries no metadata of its own.
	DisplayPhoneNumber string `toml:"display_phone_number"`
}

// LogConfig sets the minimum log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// Path returns $INBOX_CONFIG, or config.toml under baseDir.
func Path(baseDir string) string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return filepath.Join(baseDir, "config.toml")
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Ingest.SampleDir == "" {
		c.Ingest.SampleDir = DefaultSampleDir
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Load reads config from the given path. Returns nil config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
