package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Storage backends understood by the prefs binary.
const (
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

const (
	envPrefix       = "PREFS_"
	keychainService = "prefs"
	keychainAccount = "jwt_secret"
)

type Config struct {
	App       AppConfig       `envPrefix:"APP_"`
	Storage   StorageConfig   `envPrefix:"STORAGE_"`
	Dynamo    DynamoConfig    `envPrefix:"DYNAMO_"`
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	Telemetry TelemetryConfig `envPrefix:"TELEMETRY_"`
}

// AppConfig identifies the application whose preferences are managed. The
// ID doubles as the store namespace.
type AppConfig struct {
	ID string `env:"ID"`
}

type StorageConfig struct {
	Backend string `env:"BACKEND"`
	DataDir string `env:"DATA_DIR"`
}

type DynamoConfig struct {
	Region   string `env:"REGION"`
	Endpoint string `env:"ENDPOINT"`
	Table    string `env:"TABLE"`
}

type ServerConfig struct {
	Port int `env:"PORT"`
}

type AuthConfig struct {
	Issuer    string `env:"ISSUER"`
	JWTSecret string `env:"JWT_SECRET"`
}

type LogConfig struct {
	Level string `env:"LEVEL"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `env:"OTLP_ENDPOINT"`
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", c.Level)
	}
	return l, nil
}

func defaults() Config {
	return Config{
		App: AppConfig{
			ID: "default",
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			DataDir: defaultDataDir(),
		},
		Dynamo: DynamoConfig{
			Region: "us-east-1",
			Table:  "preferences",
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Auth: AuthConfig{
			Issuer: "prefs",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.kalambet.prefs) and the
// JWT secret falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/prefs/config.json
// and the secret falls back to $XDG_DATA_HOME/prefs/secrets.json.
//
// Environment variables (PREFS_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.Auth.JWTSecret == "" {
		if s, err := kc.Get(keychainService, keychainAccount); err == nil && s != "" {
			cfg.Auth.JWTSecret = s
		}
	}

	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if err := checkAppID(c.App.ID); err != nil {
		return err
	}
	if err := checkBackend(c.Storage.Backend); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir must be set for the sqlite backend")
		}
	case BackendDynamoDB:
		if c.Dynamo.Table == "" {
			return fmt.Errorf("dynamo.table must be set for the dynamodb backend")
		}
	}
	if err := checkPort(c.Server.Port); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func checkAppID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("app.id must not be empty")
	}
	return nil
}

func checkBackend(name string) error {
	switch name {
	case BackendSQLite, BackendDynamoDB, BackendMemory:
		return nil
	}
	return fmt.Errorf("unknown storage.backend %q (want %s, %s or %s)",
		name, BackendSQLite, BackendDynamoDB, BackendMemory)
}

func checkPort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("server.port %d out of range", port)
	}
	return nil
}

// RequireJWTSecret fails with a hint when no signing secret is configured.
func (c Config) RequireJWTSecret() error {
	if c.Auth.JWTSecret != "" {
		return nil
	}
	return fmt.Errorf("missing required config: JWT secret. "+
		"Set it via environment variable %sAUTH_JWT_SECRET%s", envPrefix, secretHint())
}

// StoreJWTSecret saves the signing secret in the platform secret store.
func StoreJWTSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("empty JWT secret")
	}
	return keychainReader{}.Set(keychainService, keychainAccount, secret)
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainReader) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
