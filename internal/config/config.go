package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Gateway backends.
const (
	GatewayPostgres = "postgres"
	GatewayREST     = "rest"
)

// Config holds all runtime configuration.
//
// Values come from environment variables. When PLINKO_CONFIG names a YAML
// file, its top-level keys (the same names as the variables) provide
// defaults the environment still overrides.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	LogLevel string

	// Local durable queue
	SlotBackend string
	SlotDir     string
	QueueKey    string

	// Remote store
	Gateway       string
	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	RunMigrations bool
	RestURL       string
	RestAPIKey    string
	RestTimeout   time.Duration
	RestRateLimit int

	// Sync driver
	SyncInterval         time.Duration
	SyncMaxBackoff       time.Duration
	SyncMaxAttempts      int
	ReachabilityInterval time.Duration
}

// Load reads the configuration named by PLINKO_CONFIG (optional) and the
// environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("PLINKO_CONFIG"))
}

// LoadFile is Load with an explicit YAML path; an empty path skips the file.
func LoadFile(path string) (*Config, error) {
	src := source{}
	if path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}

	cfg := &Config{
		HTTPPort:        src.getString("HTTP_PORT", "8080"),
		ReadTimeout:     src.getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    src.getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: src.getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		LogLevel: src.getString("LOG_LEVEL", "info"),

		SlotBackend: src.getString("SLOT_BACKEND", "file"),
		SlotDir:     src.getString("SLOT_DIR", "data"),
		QueueKey:    src.getString("QUEUE_KEY", "plinko_sync_queue_v1"),

		Gateway:       src.getString("GATEWAY", GatewayPostgres),
		DatabaseURL:   src.getString("DATABASE_URL", ""),
		DBMaxConns:    int32(src.getInt("DB_MAX_CONNS", 4)),
		DBMinConns:    int32(src.getInt("DB_MIN_CONNS", 0)),
		RunMigrations: src.getBool("RUN_MIGRATIONS", true),
		RestURL:       src.getString("REST_URL", ""),
		RestAPIKey:    src.getString("REST_API_KEY", ""),
		RestTimeout:   src.getDuration("REST_TIMEOUT", 10*time.Second),
		RestRateLimit: src.getInt("REST_RATE_LIMIT", 20),

		SyncInterval:         src.getDuration("SYNC_INTERVAL", 15*time.Second),
		SyncMaxBackoff:       src.getDuration("SYNC_MAX_BACKOFF", 5*time.Minute),
		SyncMaxAttempts:      src.getInt("SYNC_MAX_ATTEMPTS", 20),
		ReachabilityInterval: src.getDuration("REACHABILITY_INTERVAL", 5*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks combinations the individual defaults cannot guarantee.
func (c *Config) Validate() error {
	var errs []error

	switch c.SlotBackend {
	case "memory", "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("SLOT_BACKEND must be memory, file, or sqlite, got %q", c.SlotBackend))
	}
	if c.SlotBackend != "memory" && c.SlotDir == "" {
		errs = append(errs, errors.New("SLOT_DIR is required for durable slot backends"))
	}
	if c.QueueKey == "" {
		errs = append(errs, errors.New("QUEUE_KEY must not be empty"))
	}

	switch c.Gateway {
	case GatewayPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres gateway"))
		}
	case GatewayREST:
		if c.RestURL == "" {
			errs = append(errs, errors.New("REST_URL is required for the rest gateway"))
		}
	default:
		errs = append(errs, fmt.Errorf("GATEWAY must be postgres or rest, got %q", c.Gateway))
	}

	if c.SyncInterval <= 0 {
		errs = append(errs, errors.New("SYNC_INTERVAL must be positive"))
	}
	if c.SyncMaxBackoff < c.SyncInterval {
		errs = append(errs, errors.New("SYNC_MAX_BACKOFF must not be shorter than SYNC_INTERVAL"))
	}
	if c.SyncMaxAttempts < 0 {
		errs = append(errs, errors.New("SYNC_MAX_ATTEMPTS must not be negative"))
	}

	return errors.Join(errs...)
}

type source struct {
	file map[string]string
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) getString(key, defaultVal string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return defaultVal
}

func (s source) getInt(key string, defaultVal int) int {
	if v := s.lookup(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func (s source) getBool(key string, defaultVal bool) bool {
	if v := s.lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func (s source) getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := s.lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
