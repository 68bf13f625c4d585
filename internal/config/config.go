package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the mission control service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool
	CORSOrigins    []string

	// WSWriteTimeout bounds each realtime push to a single subscriber.
	WSWriteTimeout time.Duration
	WSReadLimit    int

	DatabaseURL string
	SeedDemo    bool
}

// LoadEnvFile copies KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error. An empty path means APP_ENV_FILE, or ".env" when that is unset.
func LoadEnvFile(path string) error {
	if path == "" {
		path = envOrDefault("APP_ENV_FILE", ".env")
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "missioncontrol"),
		AllowAnyOrigin:   false,
		CORSOrigins:      listFromEnv("APP_CORS_ORIGINS", []string{"*"}),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:  15 * time.Second,
		WSWriteTimeout:   10 * time.Second,
		WSReadLimit:      4096,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.WSWriteTimeout, err = durationFromEnv("APP_WS_WRITE_TIMEOUT", cfg.WSWriteTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.WSReadLimit, err = intFromEnv("APP_WS_READ_LIMIT", cfg.WSReadLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SeedDemo, err = boolFromEnv("APP_SEED_DEMO", cfg.SeedDemo)
	if err != nil {
		return Config{}, err
	}

	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.WSWriteTimeout < 100*time.Millisecond {
		return Config{}, fmt.Errorf("APP_WS_WRITE_TIMEOUT must be at least 100ms")
	}
	if cfg.WSReadLimit <= 0 {
		return Config{}, fmt.Errorf("APP_WS_READ_LIMIT must be positive")
	}
	if strings.ContainsAny(cfg.MetricsNamespace, " -.") {
		return Config{}, fmt.Errorf("APP_METRICS_NAMESPACE must be a valid metric prefix")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
