// Package config loads the ticketd configuration from file, environment
// and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the static configuration of the ticketd server.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (TICKETD_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// CredentialsDir holds the credential store and the service-server
	// private key file.
	CredentialsDir string `mapstructure:"credentials_dir" validate:"required" yaml:"credentials_dir"`

	// TicketValidity is how long issued tickets stay valid.
	TicketValidity time.Duration `mapstructure:"ticket_validity" validate:"required,gt=0" yaml:"ticket_validity"`

	// Cipher selects the sealing cipher: "legacy" (AES-128/ECB/PKCS5,
	// wire compatible) or "aes-gcm" (authenticated, breaks old clients).
	Cipher string `mapstructure:"cipher" validate:"oneof=legacy aes-gcm" yaml:"cipher"`

	// KDF selects the password key derivation: "legacy" (truncated
	// SHA-256, wire compatible) or "argon2id".
	KDF string `mapstructure:"kdf" validate:"oneof=legacy argon2id" yaml:"kdf"`

	// API configures the HTTP transport.
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics enables the Prometheus registry and the /metrics endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Bootstrap tweaks the initial-password lifecycle.
	Bootstrap BootstrapConfig `mapstructure:"bootstrap" yaml:"bootstrap"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is "text" or "json".
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr" or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// APIConfig configures the HTTP server carrying the protocol methods.
type APIConfig struct {
	// Port the server listens on.
	Port int `mapstructure:"port" validate:"required,gt=0,lte=65535" yaml:"port"`

	// ReadTimeout, WriteTimeout and IdleTimeout mirror net/http.Server.
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns the registry and the /metrics endpoint on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// BootstrapConfig tweaks the initial-password lifecycle.
type BootstrapConfig struct {
	// Force regenerates the initial password on every activation, even
	// when the store already has users. For tests only.
	Force bool `mapstructure:"force" yaml:"force"`
}

// Load loads configuration from file, environment and defaults. An empty
// configPath uses the default locations; a missing file yields pure
// defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setupViper wires the file location and the TICKETD_* environment
// overrides.
func setupViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(GetConfigDir())
		v.AddConfigPath("/etc/ticketd")
	}

	v.SetEnvPrefix("TICKETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// decodeHooks converts string config values into richer types, notably
// "15m" style durations.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// Validate checks the configuration against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		fields := make([]string, 0, len(validationErrors))
		for _, fieldErr := range validationErrors {
			fields = append(fields, fmt.Sprintf("%s (%s)", fieldErr.Namespace(), fieldErr.Tag()))
		}
		return fmt.Errorf("invalid fields: %s", strings.Join(fields, ", "))
	}
	return nil
}

// GetConfigDir returns the per-user configuration directory, honoring
// XDG_CONFIG_HOME.
func GetConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ticketd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/ticketd"
	}
	return filepath.Join(home, ".config", "ticketd")
}

// GetDefaultConfigPath returns the default config file location.
func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}
