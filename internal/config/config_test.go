package config

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	cfg, err := parse(nil, io.Discard)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.Port != 8097 || cfg.Hostname != "localhost" || cfg.LoggingLevel != "INFO" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.EnvPath != filepath.Join("/home/tester", ".panehub") {
		t.Fatalf("EnvPath = %q", cfg.EnvPath)
	}
	if cfg.SnapshotBackend != BackendFile || cfg.CookieTTL != 30*24*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Addr() != ":8097" {
		t.Fatalf("Addr() = %q", cfg.Addr())
	}
}

func TestParseFlags(t *testing.T) {
	cfg, err := parse([]string{
		"--port", "9000",
		"--bind_local",
		"--readonly",
		"--base_url", "viz/",
		"--env_path", "/data/envs",
		"--eager_data_loading",
		"--use_frontend_client_polling",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9000" {
		t.Fatalf("Addr() = %q", cfg.Addr())
	}
	if !cfg.Readonly || !cfg.EagerDataLoading || !cfg.UseFrontendClientPolling {
		t.Fatalf("bool flags not set: %+v", cfg)
	}
	if cfg.BaseURL != "/viz" || cfg.EnvPath != "/data/envs" {
		t.Fatalf("BaseURL = %q, EnvPath = %q", cfg.BaseURL, cfg.EnvPath)
	}
}

func TestParseEnvironmentFallbacks(t *testing.T) {
	t.Setenv("PANEHUB_PORT", "7000")
	t.Setenv("PANEHUB_REDIS_URL", "redis://cache:6379/0")
	cfg, err := parse(nil, io.Discard)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.Port != 7000 || cfg.RedisURL != "redis://cache:6379/0" {
		t.Fatalf("env fallbacks ignored: %+v", cfg)
	}

	cfg, err = parse([]string{"--port", "7001"}, io.Discard)
	if err != nil || cfg.Port != 7001 {
		t.Fatalf("flag did not override env: %d, %v", cfg.Port, err)
	}
}

func TestEnableLoginNeedsCredentials(t *testing.T) {
	t.Setenv("VISDOM_USERNAME", "")
	t.Setenv("VISDOM_PASSWORD", "")
	if _, err := parse([]string{"--enable_login"}, io.Discard); !errors.Is(err, ErrAuthEnv) {
		t.Fatalf("expected ErrAuthEnv, got %v", err)
	}

	t.Setenv("VISDOM_USERNAME", "admin")
	t.Setenv("VISDOM_PASSWORD", "secret")
	cfg, err := parse([]string{"--enable_login"}, io.Discard)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.Username != "admin" || cfg.Password != "secret" {
		t.Fatalf("credentials = %q/%q", cfg.Username, cfg.Password)
	}
}

func TestParseRejectsBadBackend(t *testing.T) {
	cases := map[string][]string{
		"unknown":          {"--snapshot_backend", "bolt"},
		"postgres, no url": {"--snapshot_backend", "postgres"},
		"s3, no endpoint":  {"--snapshot_backend", "s3"},
		"unknown flag":     {"--nope"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("PANEHUB_DATABASE_URL", "")
			t.Setenv("PANEHUB_S3_ENDPOINT", "")
			if _, err := parse(args, io.Discard); err == nil {
				t.Fatalf("parse(%s) succeeded", strings.Join(args, " "))
			}
		})
	}
}
