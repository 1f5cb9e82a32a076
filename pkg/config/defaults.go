package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultTicketValidity  = 15 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second
	DefaultAPIPort         = 9842
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
)

// ApplyDefaults fills in any unspecified configuration fields. Zero values
// are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)

	if cfg.CredentialsDir == "" {
		cfg.CredentialsDir = defaultCredentialsDir()
	}
	if cfg.TicketValidity == 0 {
		cfg.TicketValidity = DefaultTicketValidity
	}
	if cfg.Cipher == "" {
		cfg.Cipher = "legacy"
	}
	if cfg.KDF == "" {
		cfg.KDF = "legacy"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	applyAPIDefaults(&cfg.API)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultAPIPort
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
}

// GetDefaultConfig returns a fully defaulted configuration.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// defaultCredentialsDir is the per-user credential directory, honoring
// XDG_DATA_HOME.
func defaultCredentialsDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "ticketd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/var/lib/ticketd"
	}
	return filepath.Join(home, ".local", "share", "ticketd")
}
