// Package config loads service settings from the environment, with flag
// overrides applied by the command line.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hfarhat1982/gestion-tournee/internal/logging"
	"github.com/hfarhat1982/gestion-tournee/internal/orders"
	"github.com/hfarhat1982/gestion-tournee/internal/slots"
)

// Environment variable names
const (
	EnvDBPath          = "PALETTE_DB_PATH"
	EnvAddr            = "PALETTE_ADDR"
	EnvLogLevel        = "PALETTE_LOG_LEVEL"
	EnvLogFormat       = "PALETTE_LOG_FORMAT"
	EnvSlotCapacity    = "PALETTE_SLOT_CAPACITY"
	EnvSlotPolicy      = "PALETTE_SLOT_POLICY"
	EnvAdminToken      = "PALETTE_ADMIN_TOKEN"
	EnvShutdownTimeout = "PALETTE_SHUTDOWN_TIMEOUT"
)

const (
	// DefaultDBPath is the default location of the database file
	DefaultDBPath = "~/.palette/palette.db"
	// DefaultAddr is the default HTTP listen address
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the service settings
type Config struct {
	DBPath          string
	Addr            string
	LogLevel        logging.Level
	LogFormat       string
	SlotCapacity    int
	SlotPolicy      orders.SlotFailurePolicy
	AdminToken      string
	ShutdownTimeout time.Duration
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		DBPath:          DefaultDBPath,
		Addr:            DefaultAddr,
		LogLevel:        logging.LevelInfo,
		LogFormat:       "json",
		SlotCapacity:    slots.DefaultCapacity,
		SlotPolicy:      orders.PolicyProceed,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// FromEnv loads the configuration from the process environment
func FromEnv() (Config, error) {
	return Load(os.Getenv)
}

// Load builds a configuration from getenv, starting from Default
func Load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if v := getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := getenv(EnvAddr); v != "" {
		cfg.Addr = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = logging.ParseLevel(v)
	}
	if v := getenv(EnvLogFormat); v != "" {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(v))
	}
	if v := getenv(EnvSlotCapacity); v != "" {
		capacity, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %q is not a number", EnvSlotCapacity, v)
		}
		cfg.SlotCapacity = capacity
	}
	if v := getenv(EnvSlotPolicy); v != "" {
		policy, err := orders.ParseSlotFailurePolicy(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvSlotPolicy, err)
		}
		cfg.SlotPolicy = policy
	}
	cfg.AdminToken = strings.TrimSpace(getenv(EnvAdminToken))
	if v := getenv(EnvShutdownTimeout); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvShutdownTimeout, err)
		}
		cfg.ShutdownTimeout = timeout
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration
func (c Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("database path cannot be empty")
	}
	if err := validateAddr(c.Addr); err != nil {
		return err
	}
	if c.SlotCapacity < 0 {
		return fmt.Errorf("slot capacity must be >= 0, got %d", c.SlotCapacity)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("log format must be json or text, got %q", c.LogFormat)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	return nil
}

// validateAddr checks a host:port listen address
func validateAddr(addr string) error {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return fmt.Errorf("invalid listen address %q: missing port", addr)
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil {
		return fmt.Errorf("invalid listen address %q: port must be a number", addr)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid listen address %q: port out of range", addr)
	}
	return nil
}

// ResolveDBPath expands a leading ~ and creates the parent directory.
// ":memory:" is returned unchanged.
func ResolveDBPath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return path, nil
}
