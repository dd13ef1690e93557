package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "backend.base_url", typ: kString, env: "EMCONSOLE_BACKEND_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Backend.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.BaseURL },
	},
	{
		key: "backend.stream_path", typ: kString, env: "EMCONSOLE_BACKEND_STREAM_PATH",
		apply:   func(cfg *Config, v any) { cfg.Backend.StreamPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.StreamPath },
	},
	{
		key: "backend.timeout", typ: kDuration, env: "EMCONSOLE_BACKEND_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Backend.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.Timeout },
	},
	{
		key: "sync.poll_interval", typ: kDuration, env: "EMCONSOLE_SYNC_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Sync.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Sync.PollInterval },
	},
	{
		key: "sync.reconnect_delay", typ: kDuration, env: "EMCONSOLE_SYNC_RECONNECT_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Sync.ReconnectDelay = v.(string) },
		extract: func(cfg Config) any { return cfg.Sync.ReconnectDelay },
	},
	{
		key: "sync.prune_missing", typ: kBool, env: "EMCONSOLE_SYNC_PRUNE_MISSING",
		apply:   func(cfg *Config, v any) { cfg.Sync.PruneMissing = v.(bool) },
		extract: func(cfg Config) any { return cfg.Sync.PruneMissing },
	},
	{
		key: "server.port", typ: kInt, env: "EMCONSOLE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "EMCONSOLE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.journal_retention", typ: kDuration, env: "EMCONSOLE_STORAGE_JOURNAL_RETENTION",
		apply:   func(cfg *Config, v any) { cfg.Storage.JournalRetention = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.JournalRetention },
	},
	{
		key: "log.level", typ: kString, env: "EMCONSOLE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString, kDuration:
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
		case kBool:
			v, ok, err := b.GetBool(s.key)
			if err != nil {
				slog.Warn("could not parse bool from config key, using default", "key", s.key, "error", err)
				continue
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString, kDuration:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				slog.Warn("could not parse integer from env var, using default", "env", s.env, "value", raw, "error", err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				slog.Warn("could not parse bool from env var, using default", "env", s.env, "value", raw, "error", err)
			}
		}
	}
}

// normalize checks value against the key's type and returns the form to store.
func (s keySpec) normalize(value string) (string, error) {
	switch s.typ {
	case kInt:
		if _, err := strconv.Atoi(value); err != nil {
			return "", fmt.Errorf("invalid integer value for %s: %w", s.key, err)
		}
	case kBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", fmt.Errorf("invalid bool value for %s: %w", s.key, err)
		}
		return strconv.FormatBool(b), nil
	case kDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return "", fmt.Errorf("invalid duration value for %s: %w", s.key, err)
		}
		if d <= 0 {
			return "", fmt.Errorf("invalid duration value for %s: must be positive", s.key)
		}
	}
	if s.key == "backend.base_url" {
		if err := validateBaseURL(value); err != nil {
			return "", err
		}
	}
	return value, nil
}
