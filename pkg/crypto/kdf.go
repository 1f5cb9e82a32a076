package crypto

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KeyDeriver turns a password into a 16 byte symmetric key. The salt is the
// principal identifier, so both ends derive the same key without extra
// state; the legacy deriver ignores it entirely.
type KeyDeriver interface {
	DeriveKey(password, salt string) []byte
}

// NewKeyDeriver returns the deriver for a configured mode: "legacy" for the
// truncated SHA-256 of the original wire format, "argon2id" for the
// memory-hard upgrade.
func NewKeyDeriver(mode string) (KeyDeriver, error) {
	switch mode {
	case "", "legacy":
		return LegacyKeyDeriver{}, nil
	case "argon2id":
		return Argon2KeyDeriver{}, nil
	default:
		return nil, fmt.Errorf("unknown kdf mode %q", mode)
	}
}

// LegacyKeyDeriver is the unsalted, uniterated SHA-256 truncation required
// for compatibility with existing clients.
type LegacyKeyDeriver struct{}

func (LegacyKeyDeriver) DeriveKey(password, _ string) []byte {
	return Hash(password)
}

// Argon2KeyDeriver derives keys with Argon2id, salted with the principal
// identifier. Parameters follow the RFC 9106 second recommended option
// (64 MiB, 3 passes).
type Argon2KeyDeriver struct{}

func (Argon2KeyDeriver) DeriveKey(password, salt string) []byte {
	return argon2.IDKey([]byte(password), []byte(salt), 3, 64*1024, 4, KeySize)
}
