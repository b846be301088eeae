package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides, applied on top of the config file.
const (
	EnvPort           = "PORT"
	EnvListen         = "INBOX_LISTEN"
	EnvSampleDir      = "INBOX_SAMPLE_DIR"
	EnvNATSURL        = "INBOX_NATS_URL"
	EnvRedisURL       = "INBOX_REDIS_URL"
	EnvBusinessNumber = "INBOX_BUSINESS_NUMBER"
	EnvLogLevel       = "INBOX_LOG_LEVEL"
)

// LoadEnvFiles loads KEY=value files into the process environment. Variables that are
// already set win. Missing files are skipped; other read or syntax errors are returned.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		existing = append(existing, p)
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides c with the INBOX_* variables that are set. PORT sets the listen
// port on all interfaces and loses to INBOX_LISTEN.
func (c *Config) ApplyEnv() {
	if port := strings.TrimSpace(os.Getenv(EnvPort)); port != "" {
		c.Server.Listen = ":" + port
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Server.Listen, EnvListen)
	set(&c.Ingest.SampleDir, EnvSampleDir)
	set(&c.NATS.URL, EnvNATSURL)
	set(&c.Redis.URL, EnvRedisURL)
	set(&c.Business.DisplayPhoneNumber, EnvBusinessNumber)
	set(&c.Log.Level, EnvLogLevel)
}
