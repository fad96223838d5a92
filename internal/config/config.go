package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server configures the reference backend, urlqueued.
type Server struct {
	ListenAddr     string
	DBPath         string
	DownloaderPath string
	DownloaderArgs []string
	Concurrency    int
	QueueSize      int
	JobTimeout     time.Duration
	// RateLimit is the per-IP rate of job submissions per second. 0 disables it.
	RateLimit   int
	CORSOrigins []string
	NATSURL     string
	NATSSubject string
	WebhookURL  string
}

func LoadServer() (*Server, error) {
	cfg := &Server{
		ListenAddr:     getEnv("URLQUEUE_LISTEN_ADDR", ":8080"),
		DBPath:         getEnv("URLQUEUE_DB_PATH", "urlqueue.db"),
		DownloaderPath: getEnv("URLQUEUE_DOWNLOADER", "yt-dlp"),
		DownloaderArgs: splitList(getEnv("URLQUEUE_DOWNLOADER_ARGS", "--newline,--no-simulate,--print,after_move:filepath")),
		CORSOrigins:    splitList(getEnv("URLQUEUE_CORS_ORIGINS", "")),
		NATSURL:        getEnv("URLQUEUE_NATS_URL", ""),
		NATSSubject:    getEnv("URLQUEUE_NATS_SUBJECT", "urlqueue.jobs"),
		WebhookURL:     getEnv("URLQUEUE_WEBHOOK_URL", ""),
	}

	var err error
	cfg.Concurrency, err = getEnvInt("URLQUEUE_CONCURRENCY", 1)
	if err != nil {
		return nil, fmt.Errorf("URLQUEUE_CONCURRENCY: %w", err)
	}
	if cfg.Concurrency < 1 {
		return nil, errors.New("URLQUEUE_CONCURRENCY must be > 0")
	}

	cfg.QueueSize, err = getEnvInt("URLQUEUE_QUEUE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("URLQUEUE_QUEUE_SIZE: %w", err)
	}
	if cfg.QueueSize < 1 {
		return nil, errors.New("URLQUEUE_QUEUE_SIZE must be > 0")
	}

	cfg.RateLimit, err = getEnvInt("URLQUEUE_RATE_LIMIT", 0)
	if err != nil {
		return nil, fmt.Errorf("URLQUEUE_RATE_LIMIT: %w", err)
	}
	if cfg.RateLimit < 0 {
		return nil, errors.New("URLQUEUE_RATE_LIMIT must be >= 0")
	}

	cfg.JobTimeout, err = getEnvDuration("URLQUEUE_JOB_TIMEOUT", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("URLQUEUE_JOB_TIMEOUT: %w", err)
	}

	if cfg.DownloaderPath == "" {
		return nil, errors.New("URLQUEUE_DOWNLOADER must not be empty")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", v)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
