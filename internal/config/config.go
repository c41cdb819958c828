package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"rentdesk/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Backup        BackupConfig        `yaml:"backup"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	API           APIConfig           `yaml:"api"`
	Booking       BookingConfig       `yaml:"booking"`
	Payment       PaymentConfig       `yaml:"payment"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Resources     []models.Resource   `yaml:"resources"`
}

type BookingConfig struct {
	MaxBookingDays          int           `yaml:"max_booking_days"`
	MaxRentalDays           int           `yaml:"max_rental_days"`
	PaymentTimeout          time.Duration `yaml:"payment_timeout"`
	CompletionSweepInterval time.Duration `yaml:"completion_sweep_interval"`
	CompletionBatchSize     int           `yaml:"completion_batch_size"`
	LockTTL                 time.Duration `yaml:"lock_ttl"`
}

type PaymentConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	PollAttempts int           `yaml:"poll_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type NotificationsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled       bool           `yaml:"enabled"`
	HeaderAPIKey  string         `yaml:"header_api_key"`
	HeaderActorID string         `yaml:"header_actor_id"`
	APIKeys       []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS            float64       `yaml:"rps"`
	Burst          int           `yaml:"burst"`
	PerActorLimit  int           `yaml:"per_actor_limit"`
	PerActorWindow time.Duration `yaml:"per_actor_window"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// Load reads the YAML config at configPath, expanding ${ENV} references.
// A .env file in the working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Booking.PaymentTimeout <= 0 {
		return errors.New("booking.payment_timeout must be positive")
	}
	if c.Booking.MaxBookingDays < 0 || c.Booking.MaxRentalDays < 0 {
		return errors.New("booking.max_booking_days and booking.max_rental_days must not be negative")
	}
	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth is enabled but no api_keys are configured")
	}
	for i, k := range c.API.Auth.APIKeys {
		if k.Key == "" {
			return fmt.Errorf("api.auth.api_keys[%d] (%s) has an empty key", i, k.Name)
		}
	}

	return ValidateResources(c.Resources)
}

func ValidateResources(resources []models.Resource) error {
	ids := make(map[int64]bool)
	for _, r := range resources {
		if r.ID == 0 {
			return fmt.Errorf("resource '%s' has invalid ID 0", r.Name)
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate resource ID found: %d", r.ID)
		}
		if r.OwnerID == 0 {
			return fmt.Errorf("resource %d has no owner", r.ID)
		}
		if r.PricePerDay < 0 {
			return fmt.Errorf("resource %d has negative price", r.ID)
		}
		ids[r.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderActorID == "" {
		c.API.Auth.HeaderActorID = "x-actor-id"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.API.RateLimit.PerActorLimit > 0 && c.API.RateLimit.PerActorWindow == 0 {
		c.API.RateLimit.PerActorWindow = time.Minute
	}

	if c.Booking.MaxBookingDays == 0 {
		c.Booking.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if c.Booking.MaxRentalDays == 0 {
		c.Booking.MaxRentalDays = models.DefaultMaxRentalDays
	}
	if c.Booking.PaymentTimeout == 0 {
		c.Booking.PaymentTimeout = 10 * time.Second
	}
	if c.Booking.CompletionSweepInterval == 0 {
		c.Booking.CompletionSweepInterval = 5 * time.Minute
	}
	if c.Booking.CompletionBatchSize == 0 {
		c.Booking.CompletionBatchSize = 100
	}
	if c.Booking.LockTTL == 0 {
		c.Booking.LockTTL = 10 * time.Second
	}

	if c.Payment.Timeout == 0 {
		c.Payment.Timeout = 5 * time.Second
	}
	if c.Payment.PollAttempts == 0 {
		c.Payment.PollAttempts = 3
	}
	if c.Payment.PollInterval == 0 {
		c.Payment.PollInterval = 500 * time.Millisecond
	}

	if c.Notifications.MaxRetries == 0 {
		c.Notifications.MaxRetries = 5
	}
	if c.Notifications.PollInterval == 0 {
		c.Notifications.PollInterval = 2 * time.Second
	}
}
