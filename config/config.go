package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	AppName     = "landadmin"
	EnvFileName = "config.env"

	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config is the console's runtime configuration, read from LANDADMIN_*
// environment variables.
type Config struct {
	BaseURL        string        `env:"API_BASE_URL"`
	Storage        string        `env:"STORAGE" envDefault:"sqlite"`
	DBPath         string        `env:"DB_PATH" envDefault:"credentials.db"`
	TokenKey       string        `env:"TOKEN_KEY"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix    string        `env:"REDIS_PREFIX" envDefault:"landadmin:"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	Username       string        `env:"USERNAME"`
	Password       string        `env:"PASSWORD"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "LANDADMIN_"})
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage {
	case StorageSQLite:
		if c.TokenKey == "" {
			return errors.New("LANDADMIN_TOKEN_KEY is required for sqlite storage")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return errors.New("LANDADMIN_REDIS_ADDR is required for redis storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown LANDADMIN_STORAGE %q (want sqlite, redis or memory)", c.Storage)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("LANDADMIN_REQUEST_TIMEOUT must be positive")
	}
	return nil
}

// Dir returns the application's config directory, creating it if needed.
func Dir() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	configDir := filepath.Join(configBase, AppName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// FilePath returns the full path to the env file.
func FilePath() (string, error) {
	configDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, EnvFileName), nil
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
// Variables already set in the environment win.
func LoadEnvFile() {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	configPath := filepath.Join(configBase, AppName, EnvFileName)
	_ = godotenv.Load(configPath)
}

// WriteEnvFile merges values into the env file and returns its path. The file
// is written with 0600 permissions since it holds secrets.
func WriteEnvFile(values map[string]string) (string, error) {
	configPath, err := FilePath()
	if err != nil {
		return "", err
	}

	existing, err := godotenv.Read(configPath)
	if err != nil {
		existing = map[string]string{}
	}
	for k, v := range values {
		existing[k] = v
	}

	if err := godotenv.Write(existing, configPath); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Chmod(configPath, 0600); err != nil {
		return "", fmt.Errorf("failed to restrict config file permissions: %w", err)
	}
	return configPath, nil
}
