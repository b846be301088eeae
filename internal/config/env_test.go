package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvPort, "8081")
	t.Setenv(EnvRedisURL, "redis://127.0.0.1:6379/0")
	t.Setenv(EnvLogLevel, " debug ")

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Server.Listen != ":8081" {
		t.Errorf("Listen = %q, want :8081 from PORT", cfg.Server.Listen)
	}
	if cfg.Redis.URL != "redis://127.0.0.1:6379/0" || cfg.Log.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Ingest.SampleDir != DefaultSampleDir {
		t.Errorf("unset variable changed SampleDir to %q", cfg.Ingest.SampleDir)
	}

	t.Setenv(EnvListen, "127.0.0.1:9000")
	cfg.ApplyEnv()
	if cfg.Server.Listen != "127.0.0.1:9000" {
		t.Errorf("INBOX_LISTEN should win over PORT, got %q", cfg.Server.Listen)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "INBOX_SAMPLE_DIR=/data/samples\nINBOX_BUSINESS_NUMBER=918329446654\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	// An already set variable is not overwritten by the file.
	t.Setenv(EnvBusinessNumber, "15550000000")
	t.Setenv(EnvSampleDir, "")
	os.Unsetenv(EnvSampleDir)

	if err := LoadEnvFiles(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv(EnvSampleDir) })

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Ingest.SampleDir != "/data/samples" {
		t.Errorf("SampleDir = %q", cfg.Ingest.SampleDir)
	}
	if cfg.Business.DisplayPhoneNumber != "15550000000" {
		t.Errorf("DisplayPhoneNumber = %q, environment should win", cfg.Business.DisplayPhoneNumber)
	}

	if err := LoadEnvFiles(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing file should be skipped, got %v", err)
	}
}
