package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	AllowedOrigin string
	Env           string

	DatabaseURL   string
	RunMigrations bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthSecret            string
	AccessTokenTTLMinutes int

	TaxRate          string
	Timezone         string
	TicketRetries    int
	IdempotencyTTL   time.Duration
	ReportCacheTTL   time.Duration
	LowStockFallback int

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables, then an optional
// config.toml, then built-in defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		Port:                  v.GetString("port"),
		AllowedOrigin:         v.GetString("allowed_origin"),
		Env:                   v.GetString("app_env"),
		DatabaseURL:           strings.TrimSpace(v.GetString("database_url")),
		RunMigrations:         v.GetBool("run_migrations"),
		RedisAddr:             strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:         v.GetString("redis_password"),
		RedisDB:               v.GetInt("redis_db"),
		AuthSecret:            strings.TrimSpace(v.GetString("auth_secret")),
		AccessTokenTTLMinutes: v.GetInt("access_token_ttl_minutes"),
		TaxRate:               strings.TrimSpace(v.GetString("tax_rate")),
		Timezone:              strings.TrimSpace(v.GetString("store_timezone")),
		TicketRetries:         v.GetInt("ticket_retries"),
		IdempotencyTTL:        v.GetDuration("idempotency_ttl"),
		ReportCacheTTL:        v.GetDuration("report_cache_ttl"),
		LowStockFallback:      v.GetInt("low_stock_fallback"),
		LogLevel:              v.GetString("log_level"),
		LogFormat:             v.GetString("log_format"),
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("allowed_origin", "http://127.0.0.1:3000")
	v.SetDefault("app_env", "development")
	v.SetDefault("run_migrations", true)
	v.SetDefault("redis_db", 0)
	v.SetDefault("access_token_ttl_minutes", 480)
	v.SetDefault("tax_rate", "0.16")
	v.SetDefault("store_timezone", "America/Mexico_City")
	v.SetDefault("ticket_retries", 3)
	v.SetDefault("idempotency_ttl", "24h")
	v.SetDefault("report_cache_ttl", "30s")
	v.SetDefault("low_stock_fallback", 5)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// applyDefaults repairs non-positive numeric values coming from the
// environment.
func applyDefaults(cfg *Config) {
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.TicketRetries < 1 {
		cfg.TicketRetries = 3
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.ReportCacheTTL < 0 {
		cfg.ReportCacheTTL = 0
	}
	if cfg.LowStockFallback < 0 {
		cfg.LowStockFallback = 0
	}
}

func (c Config) Validate() error {
	rate, err := c.TaxRateDecimal()
	if err != nil {
		return err
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("tax_rate must be in [0, 1), got %s", c.TaxRate)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func (c Config) TaxRateDecimal() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid tax_rate %q: %w", c.TaxRate, err)
	}
	return rate, nil
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid store_timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}
