package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration written as a string ("1s", "500ms") in TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q", b)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Client configures the urlqueue command line client.
type Client struct {
	Server       string   `toml:"server" validate:"required,url"`
	PollInterval Duration `toml:"poll_interval" validate:"gte=1000000"`
	Timeout      Duration `toml:"timeout" validate:"gte=0"`
	// RateLimit caps requests per second sent by the client. 0 disables it.
	RateLimit float64 `toml:"rate_limit" validate:"gte=0"`
	Burst     int     `toml:"burst" validate:"gte=1"`
	PageSize  int     `toml:"page_size" validate:"gte=0,lte=100"`
}

func defaultClient() *Client {
	return &Client{
		Server:       "http://localhost:8080",
		PollInterval: Duration(time.Second),
		Timeout:      Duration(30 * time.Second),
		RateLimit:    10,
		Burst:        5,
		PageSize:     10,
	}
}

// LoadClient builds the client configuration from defaults, then the TOML file
// at path if it is set, then URLQUEUE_* environment variables. A missing file
// is an error only when path was given explicitly.
func LoadClient(path string) (*Client, error) {
	cfg := defaultClient()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyClientEnv(cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("invalid client config: %s fails %q", verrs[0].Field(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	return cfg, nil
}

func applyClientEnv(cfg *Client) error {
	cfg.Server = getEnv("URLQUEUE_SERVER", cfg.Server)

	interval, err := getEnvDuration("URLQUEUE_POLL_INTERVAL", time.Duration(cfg.PollInterval))
	if err != nil {
		return fmt.Errorf("URLQUEUE_POLL_INTERVAL: %w", err)
	}
	cfg.PollInterval = Duration(interval)

	timeout, err := getEnvDuration("URLQUEUE_TIMEOUT", time.Duration(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("URLQUEUE_TIMEOUT: %w", err)
	}
	cfg.Timeout = Duration(timeout)

	if cfg.RateLimit, err = getEnvFloat("URLQUEUE_CLIENT_RATE_LIMIT", cfg.RateLimit); err != nil {
		return fmt.Errorf("URLQUEUE_CLIENT_RATE_LIMIT: %w", err)
	}
	if cfg.PageSize, err = getEnvInt("URLQUEUE_PAGE_SIZE", cfg.PageSize); err != nil {
		return fmt.Errorf("URLQUEUE_PAGE_SIZE: %w", err)
	}
	return nil
}
