package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Env        string `env:"ENV" env-default:"local"`
	HTTP       HTTPConfig
	Database   DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	MarketData MarketDataConfig
	Logging    LoggingConfig
}

type HTTPConfig struct {
	Port            uint16        `env:"HTTP_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"30s"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
}

type DBConfig struct {
	Driver     string `env:"DB_DRIVER" env-default:"postgres"`
	Host       string `env:"DB_HOST" env-default:"localhost"`
	Port       uint16 `env:"DB_PORT" env-default:"5432"`
	User       string `env:"DB_USER" env-default:"postgres"`
	Password   string `env:"DB_PASSWORD" env-default:"postgres"`
	Name       string `env:"DB_NAME" env-default:"coinyaps"`
	SSLMode    string `env:"DB_SSLMODE" env-default:"disable"`
	SQLitePath string `env:"SQLITE_PATH" env-default:"coinyaps.db"`
}

// DSN returns the postgres connection string
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

type RedisConfig struct {
	Addr               string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password           string `env:"REDIS_PASSWORD"`
	DB                 int    `env:"REDIS_DB" env-default:"0"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" env-default:"30"`
}

type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET" env-required:"true"`
	JWTIssuer string `env:"JWT_ISSUER"`
}

type MarketDataConfig struct {
	BaseURL    string        `env:"DEXSCREENER_BASE_URL" env-default:"https://api.dexscreener.com/latest/dex"`
	Timeout    time.Duration `env:"DEXSCREENER_TIMEOUT" env-default:"10s"`
	MaxRetries int           `env:"DEXSCREENER_MAX_RETRIES" env-default:"2"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
	File   string `env:"LOG_FILE"`
}

// Load reads an optional .env file and then the process environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, reading from environment variables")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad is Load for process start-up: it exits on failure
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		logrus.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Redis.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if c.MarketData.MaxRetries < 0 {
		return fmt.Errorf("DEXSCREENER_MAX_RETRIES must not be negative")
	}
	return nil
}
