package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// sampleConfig is the commented configuration written by "ticketd init".
const sampleConfig = `# ticketd configuration
#
# Values can be overridden with TICKETD_* environment variables,
# e.g. TICKETD_API_PORT=9000 or TICKETD_LOGGING_LEVEL=DEBUG.

logging:
  level: INFO        # DEBUG, INFO, WARN, ERROR
  format: text       # text, json
  output: stdout     # stdout, stderr, or a file path

# Directory holding the credential store and the service-server private key.
# Defaults to $XDG_DATA_HOME/ticketd.
#credentials_dir: /var/lib/ticketd

# How long issued tickets stay valid.
ticket_validity: 15m

# Sealing cipher: keep "legacy" (AES-128/ECB/PKCS5) for wire compatibility
# with existing clients; "aes-gcm" is authenticated but breaks old clients.
cipher: legacy

# Password key derivation: "legacy" (truncated SHA-256, wire compatible)
# or "argon2id".
kdf: legacy

api:
  port: 9842
  read_timeout: 10s
  write_timeout: 10s
  idle_timeout: 60s

metrics:
  enabled: false

shutdown_timeout: 30s
`

// WriteSample writes the commented sample configuration to path, refusing
// to overwrite unless force is set.
func WriteSample(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// A sample that does not parse is a bug; catch it here rather than at
	// the first start.
	var probe map[string]any
	if err := yaml.Unmarshal([]byte(sampleConfig), &probe); err != nil {
		return fmt.Errorf("sample config is invalid: %w", err)
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
