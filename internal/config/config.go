// Package config содержит логику чтения конфигурации сервиса educart.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса educart.
type Config struct {
	RunAddress           string `env:"RUN_ADDRESS"`
	DatabaseURI          string `env:"DATABASE_URI"`
	PaymentSystemAddress string `env:"PAYMENT_SYSTEM_ADDRESS"`
	BaseURL              string `env:"BASE_URL"`
	SnapshotStoreAddress string `env:"SNAPSHOT_STORE_ADDRESS"`
	FilesDir             string `env:"FILES_DIR"`
	DevFallback          bool   `env:"DEV_FALLBACK"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPaymentAddress := cfg.PaymentSystemAddress
	envBaseURL := cfg.BaseURL
	envSnapshotAddress := cfg.SnapshotStoreAddress
	envFilesDir := cfg.FilesDir
	envDevFallback := cfg.DevFallback

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PaymentSystemAddress, "p", "", "payment system address")
	flag.StringVar(&cfg.BaseURL, "b", "", "public base URL of the service")
	flag.StringVar(&cfg.SnapshotStoreAddress, "s", "", "redis address for cart/marker snapshots")
	flag.StringVar(&cfg.FilesDir, "f", "files", "directory with digital product files")
	flag.BoolVar(&cfg.DevFallback, "dev", false, "simulate completed payment when the provider fails")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPaymentAddress != "" {
		cfg.PaymentSystemAddress = envPaymentAddress
	}
	if envBaseURL != "" {
		cfg.BaseURL = envBaseURL
	}
	if envSnapshotAddress != "" {
		cfg.SnapshotStoreAddress = envSnapshotAddress
	}
	if envFilesDir != "" {
		cfg.FilesDir = envFilesDir
	}
	if envDevFallback {
		cfg.DevFallback = true
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://" + cfg.RunAddress
	}

	return cfg, nil
}
