package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, DefaultTicketValidity, cfg.TicketValidity)
	assert.Equal(t, "legacy", cfg.Cipher)
	assert.Equal(t, "legacy", cfg.KDF)
	assert.Equal(t, DefaultAPIPort, cfg.API.Port)
	assert.NotEmpty(t, cfg.CredentialsDir)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: debug
  format: json
credentials_dir: /var/lib/ticketd
ticket_validity: 5m
cipher: aes-gcm
kdf: argon2id
api:
  port: 9000
metrics:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Level is normalized to uppercase.
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/ticketd", cfg.CredentialsDir)
	assert.Equal(t, 5*time.Minute, cfg.TicketValidity)
	assert.Equal(t, "aes-gcm", cfg.Cipher)
	assert.Equal(t, "argon2id", cfg.KDF)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for name, content := range map[string]string{
		"bad cipher": "cipher: rot13\n",
		"bad kdf":    "kdf: md5\n",
		"bad level":  "logging:\n  level: verbose\n",
		"bad port":   "api:\n  port: 700000\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, WriteSample(path, false))

	// The generated sample must load cleanly.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTicketValidity, cfg.TicketValidity)

	// Refuses to overwrite without force.
	assert.Error(t, WriteSample(path, false))
	assert.NoError(t, WriteSample(path, true))
}
