package protocol

import (
	"github.com/marmos91/ticketd/pkg/crypto"
)

// Seal serializes a record to its canonical tagged form and encrypts it
// under the given symmetric key.
func Seal(rec Record, key []byte, c crypto.Cipher) ([]byte, error) {
	plaintext, err := MarshalRecord(rec)
	if err != nil {
		return nil, &CryptoFaultError{Err: err}
	}
	ciphertext, err := c.Encrypt(plaintext, key)
	if err != nil {
		return nil, &CryptoFaultError{Err: err}
	}
	return ciphertext, nil
}

// Open decrypts sealed bytes and parses them into the expected record type.
//
// Padding failures, structural failures and tag mismatches all surface as
// the same RejectedError: distinguishing them would leak oracle information
// to an attacker probing ciphertexts.
func Open(data, key []byte, rec Record, c crypto.Cipher) error {
	plaintext, err := c.Decrypt(data, key)
	if err != nil {
		return Rejected("could not open sealed record")
	}
	if err := UnmarshalRecord(plaintext, rec); err != nil {
		return Rejected("could not open sealed record")
	}
	return nil
}

// SealBytes seals a raw byte payload as an Opaque record.
func SealBytes(data, key []byte, c crypto.Cipher) ([]byte, error) {
	return Seal(&Opaque{Data: data}, key, c)
}

// OpenBytes opens a sealed Opaque record and returns its payload.
func OpenBytes(data, key []byte, c crypto.Cipher) ([]byte, error) {
	var rec Opaque
	if err := Open(data, key, &rec, c); err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// WrapSessionKey wraps a session key for a principal. Symmetric wrapping
// seals the raw key bytes under the wrapping key; asymmetric wrapping RSA
// encrypts them with the principal's public key.
//
// The KDC applies both in sequence for principals that carry a user
// password and a client public key, in the order user then client. The
// client unwrap path has to reverse that order exactly.
func WrapSessionKey(sessionKey, wrappingKey []byte, symmetric bool, c crypto.Cipher) ([]byte, error) {
	if symmetric {
		return SealBytes(sessionKey, wrappingKey, c)
	}
	wrapped, err := crypto.WrapRSA(wrappingKey, sessionKey)
	if err != nil {
		return nil, &CryptoFaultError{Err: err}
	}
	return wrapped, nil
}
