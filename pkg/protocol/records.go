// Package protocol defines the wire records of the ticket-granting
// authentication protocol and the pure server-side handlers that operate
// on them.
//
// Records are serialized to a canonical tagged byte form before sealing:
// a uint32 type tag followed by the XDR encoding of the record. Sealing a
// record means encrypting this canonical form with a symmetric key; opening
// reverses it and verifies the tag. The tag check means a ciphertext sealed
// as one record type can never be opened as another.
package protocol

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// Tag identifies a record type inside a sealed envelope.
type Tag uint32

const (
	TagTicket Tag = iota + 1
	TagAuthenticator
	TagTicketAuthenticatorWrapper
	TagTicketSessionKeyWrapper
	TagAuthenticatedValue
	TagLoginCredentialsChange
	TagOpaque
)

// Record is a protocol message that can be canonically serialized.
type Record interface {
	RecordTag() Tag
}

// Interval is a validity period in Unix nanoseconds, inclusive on both ends.
type Interval struct {
	Begin int64
	End   int64
}

// Contains reports whether the timestamp lies inside the interval.
func (i Interval) Contains(timestamp int64) bool {
	return timestamp >= i.Begin && timestamp <= i.End
}

// Ticket binds a client identity to a session key for a validity period.
// A ticket is immutable once sealed; renewal produces a new ticket.
//
// Tickets are sealed under a long-lived server secret: the ticket granting
// service secret key for TGTs, the service server secret key for CSTs.
type Ticket struct {
	// ClientID is the principal the ticket was issued to. Never empty in
	// a valid ticket.
	ClientID string

	// ClientIP is the network address of the client. The controller
	// currently always issues tickets with an empty address; the field is
	// kept on the wire so clients relying on its presence keep working.
	ClientIP string

	// Validity is the period during which the ticket is accepted.
	Validity Interval

	// SessionKey is the 16 byte symmetric session key bound to the ticket.
	SessionKey []byte
}

func (Ticket) RecordTag() Tag { return TagTicket }

// Authenticator proves possession of a ticket's session key at a moment in
// time. Clients mint a fresh one per request; the server answers with the
// timestamp incremented by one to prove liveness.
type Authenticator struct {
	ClientID string

	// Timestamp is the client clock in Unix nanoseconds.
	Timestamp int64
}

func (Authenticator) RecordTag() Tag { return TagAuthenticator }

// TicketAuthenticatorWrapper pairs a sealed ticket with a sealed
// authenticator. The ticket is sealed under a long-lived server secret, the
// authenticator under the ticket's session key.
type TicketAuthenticatorWrapper struct {
	Ticket        []byte
	Authenticator []byte
}

func (TicketAuthenticatorWrapper) RecordTag() Tag { return TagTicketAuthenticatorWrapper }

// TicketSessionKeyWrapper pairs a sealed ticket with the ticket's session
// key wrapped for the requesting principal.
type TicketSessionKeyWrapper struct {
	Ticket     []byte
	SessionKey []byte
}

func (TicketSessionKeyWrapper) RecordTag() Tag { return TagTicketSessionKeyWrapper }

// AuthenticatedValue carries a value encrypted under a ticket session key
// together with the service-server response wrapper that authenticates it.
type AuthenticatedValue struct {
	Wrapper TicketAuthenticatorWrapper
	Value   []byte
}

func (AuthenticatedValue) RecordTag() Tag { return TagAuthenticatedValue }

// LoginCredentialsChange is the request payload of the administrative
// operations: register, change credentials, remove user and set
// administrator. Credential fields are sealed under the client-server
// ticket session key, except during bootstrap registration where the new
// credentials are sealed under the hash of the initial password.
type LoginCredentialsChange struct {
	// ID is the principal the mutation applies to.
	ID string

	// OldCredentials are the sealed current credentials. Only consulted by
	// change credentials.
	OldCredentials []byte

	// NewCredentials are the sealed replacement credentials.
	NewCredentials []byte

	// Admin requests or sets the administrator flag.
	Admin bool

	// Wrapper authenticates the caller. Empty during bootstrap
	// registration.
	Wrapper TicketAuthenticatorWrapper
}

func (LoginCredentialsChange) RecordTag() Tag { return TagLoginCredentialsChange }

// Opaque wraps a raw byte payload, such as a derived key or a secret key,
// so that it can travel inside a sealed envelope like any other record.
type Opaque struct {
	Data []byte
}

func (Opaque) RecordTag() Tag { return TagOpaque }

// MarshalRecord serializes a record to its canonical tagged byte form.
func MarshalRecord(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, uint32(rec.RecordTag())); err != nil {
		return nil, fmt.Errorf("failed to marshal record tag: %w", err)
	}
	if _, err := xdr.Marshal(&buf, rec); err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalRecord parses canonical tagged bytes into rec. It fails if the
// embedded tag does not match the expected record type, if the payload does
// not parse, or if trailing bytes remain.
func UnmarshalRecord(data []byte, rec Record) error {
	r := bytes.NewReader(data)

	var tag uint32
	if _, err := xdr.Unmarshal(r, &tag); err != nil {
		return fmt.Errorf("failed to read record tag: %w", err)
	}
	if Tag(tag) != rec.RecordTag() {
		return fmt.Errorf("record tag mismatch: expected %d, got %d", rec.RecordTag(), tag)
	}
	if _, err := xdr.Unmarshal(r, rec); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if r.Len() != 0 {
		return fmt.Errorf("record has %d trailing bytes", r.Len())
	}
	return nil
}
