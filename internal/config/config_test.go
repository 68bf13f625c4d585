package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.MetricsNamespace != "missioncontrol" {
		t.Fatalf("MetricsNamespace = %q, want missioncontrol", cfg.MetricsNamespace)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 15s", cfg.ShutdownTimeout)
	}
	if cfg.WSWriteTimeout != 10*time.Second {
		t.Fatalf("WSWriteTimeout = %v, want 10s", cfg.WSWriteTimeout)
	}
	if cfg.WSReadLimit != 4096 {
		t.Fatalf("WSReadLimit = %d, want 4096", cfg.WSReadLimit)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
	if cfg.AllowAnyOrigin || cfg.SeedDemo {
		t.Fatalf("AllowAnyOrigin/SeedDemo = %v/%v, want false/false", cfg.AllowAnyOrigin, cfg.SeedDemo)
	}
	if strings.Join(cfg.CORSOrigins, ",") != "*" {
		t.Fatalf("CORSOrigins = %v, want [*]", cfg.CORSOrigins)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("APP_WS_WRITE_TIMEOUT", "250ms")
	t.Setenv("APP_WS_READ_LIMIT", "1024")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")
	t.Setenv("APP_SEED_DEMO", "1")
	t.Setenv("APP_CORS_ORIGINS", " http://localhost:5173 , ,https://mc.example.com ")
	t.Setenv("DATABASE_URL", "  postgres://mc:mc@localhost:5432/mc  ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.ShutdownTimeout != 3*time.Second || cfg.WSWriteTimeout != 250*time.Millisecond {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.WSReadLimit != 1024 {
		t.Fatalf("WSReadLimit = %d, want 1024", cfg.WSReadLimit)
	}
	if !cfg.AllowAnyOrigin || !cfg.SeedDemo {
		t.Fatalf("AllowAnyOrigin/SeedDemo = %v/%v, want true/true", cfg.AllowAnyOrigin, cfg.SeedDemo)
	}
	if got := strings.Join(cfg.CORSOrigins, "|"); got != "http://localhost:5173|https://mc.example.com" {
		t.Fatalf("CORSOrigins = %q", got)
	}
	if cfg.DatabaseURL != "postgres://mc:mc@localhost:5432/mc" {
		t.Fatalf("DatabaseURL = %q, want trimmed value", cfg.DatabaseURL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"APP_SHUTDOWN_TIMEOUT":  "soon",
		"APP_WS_WRITE_TIMEOUT":  "1ms",
		"APP_WS_READ_LIMIT":     "0",
		"APP_ALLOW_ANY_ORIGIN":  "maybe",
		"APP_SEED_DEMO":         "sure",
		"APP_METRICS_NAMESPACE": "mission-control",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q error = nil, want error", key, value)
			}
		})
	}
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "mc.env")
	content := "APP_BIND_ADDR=:7070\nDATABASE_URL=sqlite://./data/mc.db\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	// An empty value counts as set for godotenv, so unset it to let the file win.
	os.Unsetenv("DATABASE_URL")
	t.Setenv("APP_BIND_ADDR", ":9999")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("DATABASE_URL") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9999" {
		t.Fatalf("BindAddr = %q, want process value :9999", cfg.BindAddr)
	}
	if cfg.DatabaseURL != "sqlite://./data/mc.db" {
		t.Fatalf("DatabaseURL = %q, want value from env file", cfg.DatabaseURL)
	}
}

func TestLoadEnvFileMissingIsIgnored(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadEnvFile(missing) error = %v, want nil", err)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_CORS_ORIGINS",
		"APP_WS_WRITE_TIMEOUT",
		"APP_WS_READ_LIMIT",
		"APP_SEED_DEMO",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
