package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Worker.MaxParallelBatches != 3 {
		t.Errorf("max parallel batches = %d", cfg.Worker.MaxParallelBatches)
	}
	if cfg.Worker.SweepCron == "" {
		t.Error("sweep cron should have a default")
	}
	if cfg.API.TimeoutSecs != 60 {
		t.Errorf("timeout = %d", cfg.API.TimeoutSecs)
	}
	if !strings.HasSuffix(cfg.General.DatabasePath, "batches.db") {
		t.Errorf("database path = %q", cfg.General.DatabasePath)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("port = %d", cfg.Web.Port)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
endpoint = "http://localhost:9000/api"

[worker]
max_parallel_batches = 8

[notifications]
webhook_url = "http://localhost:9001/hook"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Endpoint != "http://localhost:9000/api" {
		t.Errorf("endpoint = %q", cfg.API.Endpoint)
	}
	if cfg.Worker.MaxParallelBatches != 8 {
		t.Errorf("max parallel batches = %d", cfg.Worker.MaxParallelBatches)
	}
	if cfg.Notifications.WebhookURL != "http://localhost:9001/hook" {
		t.Errorf("webhook url = %q", cfg.Notifications.WebhookURL)
	}
	// Untouched sections keep their defaults
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("host = %q", cfg.Web.Host)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not toml {{{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed config should fail")
	}
}
