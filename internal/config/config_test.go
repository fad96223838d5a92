package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServer_AllVarsSet(t *testing.T) {
	t.Setenv("URLQUEUE_LISTEN_ADDR", ":9090")
	t.Setenv("URLQUEUE_DB_PATH", "/tmp/test.db")
	t.Setenv("URLQUEUE_DOWNLOADER", "/usr/local/bin/yt-dlp")
	t.Setenv("URLQUEUE_DOWNLOADER_ARGS", "-x, --newline")
	t.Setenv("URLQUEUE_CONCURRENCY", "4")
	t.Setenv("URLQUEUE_QUEUE_SIZE", "500")
	t.Setenv("URLQUEUE_JOB_TIMEOUT", "10m")
	t.Setenv("URLQUEUE_RATE_LIMIT", "3")
	t.Setenv("URLQUEUE_CORS_ORIGINS", "https://a.test,https://b.test")
	t.Setenv("URLQUEUE_NATS_URL", "nats://localhost:4222")
	t.Setenv("URLQUEUE_NATS_SUBJECT", "jobs.status")
	t.Setenv("URLQUEUE_WEBHOOK_URL", "https://hooks.test/urlqueue")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.DownloaderPath != "/usr/local/bin/yt-dlp" {
		t.Errorf("DownloaderPath = %q", cfg.DownloaderPath)
	}
	if len(cfg.DownloaderArgs) != 2 || cfg.DownloaderArgs[0] != "-x" || cfg.DownloaderArgs[1] != "--newline" {
		t.Errorf("DownloaderArgs = %v, want [-x --newline]", cfg.DownloaderArgs)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.QueueSize != 500 {
		t.Errorf("QueueSize = %d, want 500", cfg.QueueSize)
	}
	if cfg.JobTimeout != 10*time.Minute {
		t.Errorf("JobTimeout = %v, want 10m", cfg.JobTimeout)
	}
	if cfg.RateLimit != 3 {
		t.Errorf("RateLimit = %d, want 3", cfg.RateLimit)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.NATSURL != "nats://localhost:4222" || cfg.NATSSubject != "jobs.status" {
		t.Errorf("NATS = %q %q", cfg.NATSURL, cfg.NATSSubject)
	}
	if cfg.WebhookURL != "https://hooks.test/urlqueue" {
		t.Errorf("WebhookURL = %q", cfg.WebhookURL)
	}
}

func TestLoadServer_Defaults(t *testing.T) {
	for _, k := range []string{
		"URLQUEUE_LISTEN_ADDR", "URLQUEUE_DB_PATH", "URLQUEUE_DOWNLOADER", "URLQUEUE_DOWNLOADER_ARGS",
		"URLQUEUE_CONCURRENCY", "URLQUEUE_QUEUE_SIZE", "URLQUEUE_JOB_TIMEOUT", "URLQUEUE_RATE_LIMIT",
		"URLQUEUE_CORS_ORIGINS", "URLQUEUE_NATS_URL", "URLQUEUE_NATS_SUBJECT", "URLQUEUE_WEBHOOK_URL",
	} {
		t.Setenv(k, "")
	}

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", cfg.Concurrency)
	}
	if cfg.RateLimit != 0 {
		t.Errorf("RateLimit = %d, want 0", cfg.RateLimit)
	}
	if cfg.NATSURL != "" || cfg.WebhookURL != "" {
		t.Error("event sinks should be disabled by default")
	}
	if cfg.CORSOrigins != nil {
		t.Errorf("CORSOrigins = %v, want nil", cfg.CORSOrigins)
	}
}

func TestLoadServer_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"URLQUEUE_CONCURRENCY", "abc"},
		{"URLQUEUE_CONCURRENCY", "0"},
		{"URLQUEUE_QUEUE_SIZE", "-1"},
		{"URLQUEUE_RATE_LIMIT", "-2"},
		{"URLQUEUE_JOB_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadServer(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func clearClientEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"URLQUEUE_SERVER", "URLQUEUE_POLL_INTERVAL", "URLQUEUE_TIMEOUT",
		"URLQUEUE_CLIENT_RATE_LIMIT", "URLQUEUE_PAGE_SIZE",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "urlqueue.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadClient_Defaults(t *testing.T) {
	clearClientEnv(t)

	cfg, err := LoadClient("")
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Server != "http://localhost:8080" {
		t.Errorf("Server = %q", cfg.Server)
	}
	if time.Duration(cfg.PollInterval) != time.Second {
		t.Errorf("PollInterval = %v, want 1s", time.Duration(cfg.PollInterval))
	}
	if cfg.PageSize != 10 {
		t.Errorf("PageSize = %d, want 10", cfg.PageSize)
	}
}

func TestLoadClient_FileThenEnv(t *testing.T) {
	clearClientEnv(t)
	path := writeFile(t, `
server = "http://queue.internal:9000"
poll_interval = "250ms"
page_size = 25
rate_limit = 2.5
`)
	t.Setenv("URLQUEUE_PAGE_SIZE", "50")

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Server != "http://queue.internal:9000" {
		t.Errorf("Server = %q", cfg.Server)
	}
	if time.Duration(cfg.PollInterval) != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", time.Duration(cfg.PollInterval))
	}
	if cfg.RateLimit != 2.5 {
		t.Errorf("RateLimit = %v, want 2.5", cfg.RateLimit)
	}
	if cfg.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50 from the environment", cfg.PageSize)
	}
}

func TestLoadClient_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad toml", `server = `},
		{"bad duration", `poll_interval = "fast"`},
		{"bad url", `server = "not a url"`},
		{"page size too large", `page_size = 500`},
		{"negative rate", `rate_limit = -1.0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearClientEnv(t)
			if _, err := LoadClient(writeFile(t, tt.content)); err == nil {
				t.Errorf("expected error for %q", tt.content)
			}
		})
	}
}

func TestLoadClient_MissingFile(t *testing.T) {
	clearClientEnv(t)
	if _, err := LoadClient(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for explicit missing file")
	}
}
