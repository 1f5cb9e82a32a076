package protocol

import (
	"errors"
	"fmt"
)

// ErrSessionExpired is returned when an authenticator timestamp falls
// outside the ticket validity period or outside the server clock skew
// window. It is distinct from a rejection so that clients know to renew
// their ticket instead of re-authenticating.
var ErrSessionExpired = errors.New("session expired")

// NotAvailableError is returned when a principal is absent from the
// credential store.
type NotAvailableError struct {
	ID string
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("%s is not available", e.ID)
}

// RejectedError covers authenticator or ticket mismatches, unknown user
// parts, failed cryptography and violated administrative preconditions.
//
// Crypto failures are deliberately mapped to the same error as structural
// failures: distinguishing a padding error from a parse error would hand an
// attacker a decryption oracle.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return e.Reason
}

// PermissionDeniedError is an authorization failure on an administrative
// mutation. The remote boundary surfaces it as a rejection; it exists as
// its own type so the server can log it distinctly.
type PermissionDeniedError struct {
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return e.Reason
}

// CryptoFaultError signals an impossible algorithm or provider state, such
// as an AES key the standard library refuses. It is fatal: the cause is
// logged server-side and never leaks to the caller.
type CryptoFaultError struct {
	Err error
}

func (e *CryptoFaultError) Error() string {
	return fmt.Sprintf("crypto fault: %v", e.Err)
}

func (e *CryptoFaultError) Unwrap() error {
	return e.Err
}

// Rejected builds a RejectedError with a formatted reason.
func Rejected(format string, args ...any) error {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}
