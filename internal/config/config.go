// Package config содержит логику чтения конфигурации сервиса аренды номеров.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса аренды номеров.
type Config struct {
	RunAddress      string `env:"RUN_ADDRESS"`
	DatabaseURI     string `env:"DATABASE_URI"`
	StoreFile       string `env:"STORE_FILE"`
	ProviderAddress string `env:"PROVIDER_ADDRESS"`
	ProviderToken   string `env:"PROVIDER_TOKEN"`
	Country         string `env:"PROVIDER_COUNTRY"`
	Operator        string `env:"PROVIDER_OPERATOR"`
	Service         string `env:"PROVIDER_SERVICE"`
	AdminToken      string `env:"ADMIN_TOKEN"`
	AuthSecret      string `env:"AUTH_SECRET"`

	// Тарифы и тайминги мониторинга заказов. Резерв, плата за приём SMS и
	// возврат используют одну и ту же сумму.
	OrderCost        int64         `env:"ORDER_COST" envDefault:"10"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	OrderDeadline    time.Duration `env:"ORDER_DEADLINE" envDefault:"300s"`
	SnapshotInterval time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"1s"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envStoreFile := cfg.StoreFile
	envProviderAddress := cfg.ProviderAddress
	envProviderToken := cfg.ProviderToken
	envCountry := cfg.Country
	envOperator := cfg.Operator
	envService := cfg.Service
	envAdminToken := cfg.AdminToken
	envAuthSecret := cfg.AuthSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI (optional, file store is used when empty)")
	flag.StringVar(&cfg.StoreFile, "f", "accounts.db", "path to account store file")
	flag.StringVar(&cfg.ProviderAddress, "p", "https://5sim.net", "SMS rental provider address")
	flag.StringVar(&cfg.ProviderToken, "t", "", "SMS rental provider API token")
	flag.StringVar(&cfg.Country, "country", "indonesia", "default country for number purchase")
	flag.StringVar(&cfg.Operator, "operator", "any", "default operator for number purchase")
	flag.StringVar(&cfg.Service, "service", "facebook", "default service for number purchase")
	flag.StringVar(&cfg.AdminToken, "admin-token", "", "token for admin API access")
	flag.StringVar(&cfg.AuthSecret, "secret", "", "secret key for auth cookies")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envStoreFile != "" {
		cfg.StoreFile = envStoreFile
	}
	if envProviderAddress != "" {
		cfg.ProviderAddress = envProviderAddress
	}
	if envProviderToken != "" {
		cfg.ProviderToken = envProviderToken
	}
	if envCountry != "" {
		cfg.Country = envCountry
	}
	if envOperator != "" {
		cfg.Operator = envOperator
	}
	if envService != "" {
		cfg.Service = envService
	}
	if envAdminToken != "" {
		cfg.AdminToken = envAdminToken
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.OrderCost <= 0 {
		return nil, fmt.Errorf("order cost must be positive, got %d", cfg.OrderCost)
	}

	return cfg, nil
}
