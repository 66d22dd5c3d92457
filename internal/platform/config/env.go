// Package config loads fridgeshare settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every FRIDGESHARE_* setting.
type Config struct {
	HTTPAddr        string        `env:"FRIDGESHARE_HTTP_ADDR"        envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"FRIDGESHARE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"FRIDGESHARE_LOG_LEVEL"        envDefault:"info"`

	StorageDriver string `env:"FRIDGESHARE_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"FRIDGESHARE_SQLITE_PATH"    envDefault:"fridgeshare.db"`
	PostgresDSN   string `env:"FRIDGESHARE_POSTGRES_DSN"`

	BlobDriver        string `env:"FRIDGESHARE_BLOB_DRIVER"  envDefault:"fs"`
	BlobFSRoot        string `env:"FRIDGESHARE_BLOB_FS_ROOT" envDefault:"data/blobs"`
	S3Bucket          string `env:"FRIDGESHARE_S3_BUCKET"`
	S3Region          string `env:"FRIDGESHARE_S3_REGION"    envDefault:"us-east-1"`
	S3Endpoint        string `env:"FRIDGESHARE_S3_ENDPOINT"`
	S3PathStyle       bool   `env:"FRIDGESHARE_S3_PATH_STYLE"`
	S3AccessKeyID     string `env:"FRIDGESHARE_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"FRIDGESHARE_S3_SECRET_ACCESS_KEY"`

	RedisAddr            string        `env:"FRIDGESHARE_REDIS_ADDR"`
	RelationshipCacheTTL time.Duration `env:"FRIDGESHARE_RELATIONSHIP_CACHE_TTL" envDefault:"5m"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the given .env files into the process environment, then parses
// and validates Config. With no files it tries ./.env and ignores its absence.
// Variables already set in the environment win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("load %s: %w", strings.Join(files, ","), err)
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("FRIDGESHARE_POSTGRES_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.StorageDriver))
	}
	switch c.BlobDriver {
	case "memory", "fs":
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("FRIDGESHARE_S3_BUCKET is required for the s3 blob driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.BlobDriver))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel returns the configured log level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
