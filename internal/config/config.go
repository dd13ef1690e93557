package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

type Config struct {
	Backend BackendConfig
	Sync    SyncConfig
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
}

type BackendConfig struct {
	BaseURL    string
	StreamPath string
	Timeout    string
}

type SyncConfig struct {
	PollInterval   string
	ReconnectDelay string
	PruneMissing   bool
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir          string
	JournalRetention string
}

type LogConfig struct {
	Level string
}

const (
	defaultTimeout          = 10 * time.Second
	defaultPollInterval     = 3 * time.Second
	defaultReconnectDelay   = 3 * time.Second
	defaultJournalRetention = 7 * 24 * time.Hour
)

func defaults() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:    "http://localhost:8080",
			StreamPath: "/api/stations/__all__/stream",
			Timeout:    defaultTimeout.String(),
		},
		Sync: SyncConfig{
			PollInterval:   defaultPollInterval.String(),
			ReconnectDelay: defaultReconnectDelay.String(),
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir:          defaultDataDir(),
			JournalRetention: defaultJournalRetention.String(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.emconsole.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/emconsole/config.json.
//
// Environment variables (EMCONSOLE_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validateBaseURL(cfg.Backend.BaseURL); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid backend.base_url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend.base_url %q: must be an absolute http or https URL", raw)
	}
	return nil
}

// Durations holds the parsed duration settings.
type Durations struct {
	BackendTimeout   time.Duration
	PollInterval     time.Duration
	ReconnectDelay   time.Duration
	JournalRetention time.Duration
}

// Durations parses the duration settings. Values that do not parse, or are
// not positive, fall back to their defaults with a warning.
func (c Config) Durations() Durations {
	return Durations{
		BackendTimeout:   parseDuration("backend.timeout", c.Backend.Timeout, defaultTimeout),
		PollInterval:     parseDuration("sync.poll_interval", c.Sync.PollInterval, defaultPollInterval),
		ReconnectDelay:   parseDuration("sync.reconnect_delay", c.Sync.ReconnectDelay, defaultReconnectDelay),
		JournalRetention: parseDuration("storage.journal_retention", c.Storage.JournalRetention, defaultJournalRetention),
	}
}

func parseDuration(key, raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return d
}
