package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	App       AppConfig       `envPrefix:"APP_"`
	Store     StoreConfig     `envPrefix:"STORE_"`
	Broadcast BroadcastConfig `envPrefix:"BROADCAST_"`
	Backup    BackupConfig    `envPrefix:"BACKUP_"`
}

// AppConfig represents the application configuration.
type AppConfig struct {
	Name         string `env:"NAME" envDefault:"redleaf-exchange"`
	Environment  string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	AdminPartyID string `env:"ADMIN_PARTY_ID" envDefault:"admin"`
}

// StoreConfig configures the durable journal store.
type StoreConfig struct {
	Dir           string `env:"DIR" envDefault:"./exchange_data"`
	QueueCapacity int    `env:"QUEUE_CAPACITY" envDefault:"65536"`
	MaxRetries    int    `env:"MAX_RETRIES" envDefault:"3"`
}

// BroadcastConfig configures the Kafka event broadcast.
type BroadcastConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"false"`
	Brokers []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"exchange-events"`
}

// BackupConfig configures the append-only text backup.
type BackupConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Dir     string `env:"DIR" envDefault:"./text_backup"`
}

// Load loads the configuration from the environment.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}
