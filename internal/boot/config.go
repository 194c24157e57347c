package boot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env           string        `env:"ENV,default=dev"`
	DataDir       string        `env:"DATA_DIR,default=./data"`
	BaseURL       string        `env:"BASE_URL,default=http://localhost:8080"`
	RealtimeURL   string        `env:"REALTIME_URL,default=ws://localhost:8080/realtime"`
	ModerationURL string        `env:"MODERATION_URL"`
	SendTimeout   time.Duration `env:"SEND_TIMEOUT,default=10s"`
	Server        struct {
		Port           string        `env:"SERVER_PORT,default=8080"`
		MetricsPort    string        `env:"METRICS_PORT,default=8081"`
		Origins        []string      `env:"ALLOWED_ORIGINS,default=*"`
		SessionTTL     time.Duration `env:"SESSION_TTL,default=24h"`
		WordList       string        `env:"MODERATION_WORDLIST"`
		DatabaseMemory bool          `env:"DATABASE_MEMORY,default=false"`
	}
	Client struct {
		UserID     string        `env:"USER_ID"`
		Username   string        `env:"USERNAME"`
		Password   string        `env:"PASSWORD"`
		AuthToken  string        `env:"AUTH_TOKEN"`
		MinBackoff time.Duration `env:"RECONNECT_MIN_BACKOFF,default=500ms"`
		MaxBackoff time.Duration `env:"RECONNECT_MAX_BACKOFF,default=30s"`
	}
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return LoadWith(envconfig.OsLookuper())
}

func LoadWith(lookuper envconfig.Lookuper) (*Config, error) {
	config := &Config{}
	if err := envconfig.ProcessWith(context.Background(), config, lookuper); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	if config.Client.MinBackoff > config.Client.MaxBackoff {
		return nil, fmt.Errorf("parsing env vars: RECONNECT_MIN_BACKOFF %s exceeds RECONNECT_MAX_BACKOFF %s", config.Client.MinBackoff, config.Client.MaxBackoff)
	}
	return config, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod"
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "dev"
}

func (c *Config) DataDirectory() string {
	return c.DataDir
}
