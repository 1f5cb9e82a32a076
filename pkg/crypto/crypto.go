// Package crypto implements the envelope primitives of the authentication
// service: symmetric key generation, the legacy AES-128/ECB/PKCS5 cipher
// and its authenticated AES-GCM alternative, the password derived key, and
// the one-hop RSA wrap used to hand session keys to client devices.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// KeySize is the symmetric key length in bytes. The wire format is fixed
// to 128 bit keys.
const KeySize = 16

// GenerateKey returns a cryptographically secure random 128 bit key.
//
// A failing system RNG is not a recoverable condition for a key server, so
// this panics instead of returning an error.
func GenerateKey() []byte {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("system random number generator failed: %v", err))
	}
	return key
}

// Hash derives a 128 bit key from a password: SHA-256 over the UTF-8 bytes,
// truncated to the first 16 bytes.
//
// No salt, no iteration count. This is a known weakness kept for wire
// compatibility with existing clients; see the argon2id key deriver for
// deployments that can break compatibility.
func Hash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:KeySize]
}
