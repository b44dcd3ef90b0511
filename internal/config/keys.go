package config

import (
	"fmt"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
	// check, when set, rejects values SetKey must not persist.
	check func(v any) error
}

// env derives the variable name from the key: "storage.data_dir" is read
// from PREFS_STORAGE_DATA_DIR.
func (s keySpec) env() string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(s.key, ".", "_"))
}

var specs = []keySpec{
	{
		key: "app.id", typ: kString,
		check:   func(v any) error { return checkAppID(v.(string)) },
		apply:   func(cfg *Config, v any) { cfg.App.ID = v.(string) },
		extract: func(cfg Config) any { return cfg.App.ID },
	},
	{
		key: "storage.backend", typ: kString,
		check:   func(v any) error { return checkBackend(v.(string)) },
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString,
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "dynamo.region", typ: kString,
		apply:   func(cfg *Config, v any) { cfg.Dynamo.Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Dynamo.Region },
	},
	{
		key: "dynamo.endpoint", typ: kString,
		apply:   func(cfg *Config, v any) { cfg.Dynamo.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Dynamo.Endpoint },
	},
	{
		key: "dynamo.table", typ: kString,
		apply:   func(cfg *Config, v any) { cfg.Dynamo.Table = v.(string) },
		extract: func(cfg Config) any { return cfg.Dynamo.Table },
	},
	{
		key: "server.port", typ: kInt,
		check:   func(v any) error { return checkPort(v.(int)) },
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "auth.issuer", typ: kString,
		apply:   func(cfg *Config, v any) { cfg.Auth.Issuer = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.Issuer },
	},
	{
		key: "auth.jwt_secret", typ: kString, secret: true,
		apply:   func(cfg *Config, v any) { cfg.Auth.JWTSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.JWTSecret },
	},
	{
		key: "log.level", typ: kString,
		check: func(v any) error {
			_, err := LogConfig{Level: v.(string)}.SlogLevel()
			return err
		},
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "telemetry.otlp_endpoint", typ: kString,
		apply:   func(cfg *Config, v any) { cfg.Telemetry.OTLPEndpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Telemetry.OTLPEndpoint },
	},
}

// applyBackend copies every non-secret key present in b into cfg. Secrets
// never live in the plain config backend.
func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}
