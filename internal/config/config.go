// Package config reads the server settings from the command line, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// ErrAuthEnv is returned when login is enabled without usable credentials
// in the environment.
var ErrAuthEnv = errors.New("--enable_login needs VISDOM_USERNAME and VISDOM_PASSWORD in the environment")

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

type Config struct {
	Port                     int
	Hostname                 string
	BaseURL                  string
	EnvPath                  string
	Readonly                 bool
	EnableLogin              bool
	ForceNewCookie           bool
	UseFrontendClientPolling bool
	BindLocal                bool
	EagerDataLoading         bool
	LoggingLevel             string
	Debug                    bool

	SnapshotBackend string
	DatabaseURL     string
	S3Endpoint      string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3UseSSL        bool
	EnvHistory      bool

	RedisURL  string
	MeiliURL  string
	MeiliKey  string
	CookieTTL time.Duration

	Username string
	Password string
}

// Addr is the listen address.
func (c Config) Addr() string {
	host := ""
	if c.BindLocal {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

// Parse loads .env from the working directory (a missing file is fine),
// then parses args. Environment variables provide flag defaults.
func Parse(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return parse(args, io.Discard)
}

func parse(args []string, usage io.Writer) (Config, error) {
	var cfg Config
	fs := pflag.NewFlagSet("panehub", pflag.ContinueOnError)
	fs.SetOutput(usage)

	fs.IntVar(&cfg.Port, "port", getenvInt("PANEHUB_PORT", 8097), "port to run the server on")
	fs.StringVar(&cfg.Hostname, "hostname", getenv("PANEHUB_HOSTNAME", "localhost"), "host name shown in page links")
	fs.StringVar(&cfg.BaseURL, "base_url", getenv("PANEHUB_BASE_URL", ""), "path prefix the server is mounted under")
	fs.StringVar(&cfg.EnvPath, "env_path", getenv("PANEHUB_ENV_PATH", "~/.panehub"), "directory for env snapshots")
	fs.BoolVar(&cfg.Readonly, "readonly", false, "ignore state changing commands from browsers")
	fs.BoolVar(&cfg.EnableLogin, "enable_login", false, "require a login cookie")
	fs.BoolVar(&cfg.ForceNewCookie, "force_new_cookie", false, "regenerate COOKIE_SECRET, invalidating all sessions")
	fs.BoolVar(&cfg.UseFrontendClientPolling, "use_frontend_client_polling", false, "tell browsers to poll instead of opening a websocket")
	fs.BoolVar(&cfg.BindLocal, "bind_local", false, "listen on 127.0.0.1 only")
	fs.BoolVar(&cfg.EagerDataLoading, "eager_data_loading", false, "load every env at startup")
	fs.StringVar(&cfg.LoggingLevel, "logging_level", getenv("PANEHUB_LOGGING_LEVEL", "INFO"), "DEBUG, INFO, WARNING, ERROR, CRITICAL or 10..50")
	fs.BoolVar(&cfg.Debug, "debug", false, "show error details on error pages")

	fs.StringVar(&cfg.SnapshotBackend, "snapshot_backend", getenv("PANEHUB_SNAPSHOT_BACKEND", BackendFile), "file, postgres or s3")
	fs.StringVar(&cfg.DatabaseURL, "database_url", getenv("PANEHUB_DATABASE_URL", ""), "postgres url for the postgres backend")
	fs.StringVar(&cfg.S3Endpoint, "s3_endpoint", getenv("PANEHUB_S3_ENDPOINT", ""), "s3 endpoint host:port")
	fs.StringVar(&cfg.S3Bucket, "s3_bucket", getenv("PANEHUB_S3_BUCKET", "panehub"), "s3 bucket")
	fs.StringVar(&cfg.S3AccessKey, "s3_access_key", getenv("PANEHUB_S3_ACCESS_KEY", ""), "s3 access key")
	fs.StringVar(&cfg.S3SecretKey, "s3_secret_key", getenv("PANEHUB_S3_SECRET_KEY", ""), "s3 secret key")
	fs.BoolVar(&cfg.S3UseSSL, "s3_use_ssl", getenvBool("PANEHUB_S3_USE_SSL", false), "use https for s3")
	fs.BoolVar(&cfg.EnvHistory, "env_history", false, "commit every saved env to a git repository under env_path")

	fs.StringVar(&cfg.RedisURL, "redis_url", getenv("PANEHUB_REDIS_URL", ""), "redis url for login sessions")
	fs.StringVar(&cfg.MeiliURL, "meili_url", getenv("PANEHUB_MEILI_URL", ""), "meilisearch url for pane search")
	fs.StringVar(&cfg.MeiliKey, "meili_key", getenv("PANEHUB_MEILI_KEY", ""), "meilisearch api key")
	fs.DurationVar(&cfg.CookieTTL, "cookie_ttl", time.Duration(getenvInt("PANEHUB_COOKIE_TTL_SECONDS", 30*24*3600))*time.Second, "lifetime of a login session")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.BaseURL = normalizeBaseURL(cfg.BaseURL)
	envPath, err := expandHome(cfg.EnvPath)
	if err != nil {
		return Config{}, err
	}
	cfg.EnvPath = envPath

	switch cfg.SnapshotBackend {
	case BackendFile, BackendPostgres, BackendS3:
	default:
		return Config{}, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}
	if cfg.SnapshotBackend == BackendPostgres && cfg.DatabaseURL == "" {
		return Config{}, errors.New("--snapshot_backend=postgres needs --database_url")
	}
	if cfg.SnapshotBackend == BackendS3 && cfg.S3Endpoint == "" {
		return Config{}, errors.New("--snapshot_backend=s3 needs --s3_endpoint")
	}

	if cfg.EnableLogin {
		cfg.Username = os.Getenv("VISDOM_USERNAME")
		cfg.Password = os.Getenv("VISDOM_PASSWORD")
		if cfg.Username == "" || cfg.Password == "" {
			return Config{}, ErrAuthEnv
		}
	}
	return cfg, nil
}

// normalizeBaseURL returns "" or a path with a leading and no trailing
// slash.
func normalizeBaseURL(raw string) string {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
