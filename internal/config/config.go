package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env if present; real deployments use the environment directly.
	_ = godotenv.Load()
}

// Config holds everything a worker process needs, supplied once at startup.
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	Redis RedisConfig

	GoogleAPIKey string `envconfig:"GOOGLE_API_KEY" required:"true"`

	FoursquareClientID          string `envconfig:"FOURSQUARE_CLIENT_ID" required:"true"`
	FoursquareClientSecret      string `envconfig:"FOURSQUARE_CLIENT_SECRET" required:"true"`
	SecondaryFoursquareClientID string `envconfig:"SECONDARY_FOURSQUARE_CLIENT_ID"`
	SecondaryFoursquareSecret   string `envconfig:"SECONDARY_FOURSQUARE_SECRET"`

	// PollBackoff is how long a worker sleeps when its inbound queue is
	// empty. A stage that declares its own interval in the registry wins.
	PollBackoff    time.Duration `envconfig:"POLL_BACKOFF" default:"5s"`
	ReceiveTimeout time.Duration `envconfig:"RECEIVE_TIMEOUT" default:"2s"`

	// RetryAttempts bounds in-process retries of transport failures before the
	// worker gives up and exits, leaving the message for redelivery.
	RetryAttempts int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryBackoff  time.Duration `envconfig:"RETRY_BACKOFF" default:"2s"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`

	Debug bool `envconfig:"APP_DEBUG" default:"false"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// FromEnv reads configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// FoursquareCredentials returns the configured credential pairs in rotation
// order. The secondary pair leads when present, matching how quota was spread
// across the two buckets historically.
func (c Config) FoursquareCredentials() [][2]string {
	var pairs [][2]string
	if c.SecondaryFoursquareClientID != "" && c.SecondaryFoursquareSecret != "" {
		pairs = append(pairs, [2]string{c.SecondaryFoursquareClientID, c.SecondaryFoursquareSecret})
	}
	pairs = append(pairs, [2]string{c.FoursquareClientID, c.FoursquareClientSecret})
	return pairs
}
