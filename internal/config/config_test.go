package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"rentdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("RENTDESK_DB_PATH", "data/rentdesk.db")

	yamlContent := `
database:
  path: "${RENTDESK_DB_PATH}"
booking:
  payment_timeout: 3s
  completion_sweep_interval: 1m
resources:
  - id: 1
    owner_id: 42
    name: "Tuxedo"
    price_per_day: 5000
    is_available: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "data/rentdesk.db", cfg.Database.Path)
	assert.Equal(t, 3*time.Second, cfg.Booking.PaymentTimeout)
	assert.Equal(t, time.Minute, cfg.Booking.CompletionSweepInterval)
	require.Len(t, cfg.Resources, 1)
	assert.Equal(t, models.Money(5000), cfg.Resources[0].PricePerDay)
	assert.Equal(t, int64(42), cfg.Resources[0].OwnerID)

	// defaults
	assert.Equal(t, models.DefaultMaxBookingDays, cfg.Booking.MaxBookingDays)
	assert.Equal(t, models.DefaultMaxRentalDays, cfg.Booking.MaxRentalDays)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-actor-id", cfg.API.Auth.HeaderActorID)
	assert.Equal(t, 5, cfg.Notifications.MaxRetries)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		return Config{
			Database: DatabaseConfig{Path: "path"},
			Booking:  BookingConfig{PaymentTimeout: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {
			c.Resources = []models.Resource{{ID: 1, OwnerID: 2, Name: "Gown"}}
		}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "zero payment timeout", mutate: func(c *Config) { c.Booking.PaymentTimeout = 0 }, wantErr: true},
		{name: "negative rental limit", mutate: func(c *Config) { c.Booking.MaxRentalDays = -1 }, wantErr: true},
		{name: "auth without keys", mutate: func(c *Config) { c.API.Auth.Enabled = true }, wantErr: true},
		{name: "empty api key", mutate: func(c *Config) {
			c.API.Auth.APIKeys = []APIClientKey{{Name: "frontend"}}
		}, wantErr: true},
		{name: "duplicate resource id", mutate: func(c *Config) {
			c.Resources = []models.Resource{{ID: 1, OwnerID: 2}, {ID: 1, OwnerID: 3}}
		}, wantErr: true},
		{name: "resource without owner", mutate: func(c *Config) {
			c.Resources = []models.Resource{{ID: 1}}
		}, wantErr: true},
		{name: "resource id zero", mutate: func(c *Config) {
			c.Resources = []models.Resource{{ID: 0, OwnerID: 1}}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
