package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

// Config is read from the environment (and an optional .env file).
// Compatible with "github.com/caarlos0/env"
type Config struct {
	Detector           string        `env:"FACECROP_DETECTOR" envDefault:"insightface"`
	CtxID              int           `env:"FACECROP_CTX_ID" envDefault:"-1"`
	DetectionThreshold float64       `env:"FACECROP_DET_THRESH" envDefault:"0.5"`
	Python             string        `env:"FACECROP_PYTHON" envDefault:"python3"`
	WorkerScript       string        `env:"FACECROP_WORKER_SCRIPT" envDefault:"python/worker.py"`
	WorkerTimeout      time.Duration `env:"FACECROP_WORKER_TIMEOUT" envDefault:"60s"`
	ModelsDir          string        `env:"FACECROP_MODELS_DIR" envDefault:"./models"`
	AWSRegion          string        `env:"AWS_REGION" envDefault:"us-east-1"`

	PostgresHost     string `env:"POSTGRES_HOST"`
	PostgresPort     string `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"facecrop"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("cannot parse environment into config: %w", err)
	}
	return cfg, nil
}

// PostgresURL builds a connection string from the POSTGRES_* variables.
// It returns "" when no host is set, which leaves run history disabled.
func (c *Config) PostgresURL() string {
	if c.PostgresHost == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB)
}
