package protocol

import (
	"time"

	"github.com/marmos91/ticketd/pkg/crypto"
)

// MaxTimeDiff is the tolerated skew between the client authenticator clock
// and the server wall clock. Fixed by the protocol.
const MaxTimeDiff = 2 * time.Minute

// The handlers below are stateless: every secret they need is passed in
// explicitly, which keeps them trivially safe to run from any number of
// goroutines.

// HandleKDCRequest serves a Key Distribution Center login request. It mints
// a fresh TGS session key, builds a ticket granting ticket sealed under the
// TGS secret key, and wraps the session key for the caller: symmetrically
// under the user's derived key if present, then asymmetrically under the
// client's public key if present.
func HandleKDCRequest(id string, userKey, clientKey []byte, clientIP string, tgsSecretKey []byte, validity time.Duration, c crypto.Cipher) (*TicketSessionKeyWrapper, error) {
	sessionKey := crypto.GenerateKey()

	ticket := &Ticket{
		ClientID:   id,
		ClientIP:   clientIP,
		Validity:   ValidityInterval(time.Now(), validity),
		SessionKey: sessionKey,
	}

	sealedTicket, err := Seal(ticket, tgsSecretKey, c)
	if err != nil {
		return nil, err
	}

	wrappedKey := sessionKey
	if userKey != nil {
		if wrappedKey, err = WrapSessionKey(wrappedKey, userKey, true, c); err != nil {
			return nil, err
		}
	}
	if clientKey != nil {
		if wrappedKey, err = WrapSessionKey(wrappedKey, clientKey, false, c); err != nil {
			return nil, err
		}
	}

	return &TicketSessionKeyWrapper{
		Ticket:     sealedTicket,
		SessionKey: wrappedKey,
	}, nil
}

// HandleTGSRequest exchanges a ticket granting ticket for a client-server
// ticket. The CST keeps the TGT's client identity, gets a fresh validity
// interval and a fresh session key, and is sealed under the service-server
// secret key. The new session key travels back sealed under the old TGS
// session key, which the caller proved possession of via the authenticator.
func HandleTGSRequest(tgsSecretKey, ssSecretKey []byte, wrapper *TicketAuthenticatorWrapper, validity time.Duration, c crypto.Cipher) (*TicketSessionKeyWrapper, error) {
	var tgt Ticket
	if err := Open(wrapper.Ticket, tgsSecretKey, &tgt, c); err != nil {
		return nil, err
	}

	var authenticator Authenticator
	if err := Open(wrapper.Authenticator, tgt.SessionKey, &authenticator, c); err != nil {
		return nil, err
	}

	if err := ValidateTicket(&tgt, &authenticator, time.Now()); err != nil {
		return nil, err
	}

	sessionKey := crypto.GenerateKey()

	cst := &Ticket{
		ClientID:   tgt.ClientID,
		ClientIP:   tgt.ClientIP,
		Validity:   ValidityInterval(time.Now(), validity),
		SessionKey: sessionKey,
	}

	sealedTicket, err := Seal(cst, ssSecretKey, c)
	if err != nil {
		return nil, err
	}
	sealedKey, err := SealBytes(sessionKey, tgt.SessionKey, c)
	if err != nil {
		return nil, err
	}

	return &TicketSessionKeyWrapper{
		Ticket:     sealedTicket,
		SessionKey: sealedKey,
	}, nil
}

// HandleSSRequest serves a service-server request: it renews the
// client-server ticket's validity interval, keeps its session key, and
// answers the authenticator with the timestamp incremented by one so the
// client can verify the server really opened it.
func HandleSSRequest(ssSecretKey []byte, wrapper *TicketAuthenticatorWrapper, validity time.Duration, c crypto.Cipher) (*TicketAuthenticatorWrapper, error) {
	var cst Ticket
	if err := Open(wrapper.Ticket, ssSecretKey, &cst, c); err != nil {
		return nil, err
	}

	var authenticator Authenticator
	if err := Open(wrapper.Authenticator, cst.SessionKey, &authenticator, c); err != nil {
		return nil, err
	}

	if err := ValidateTicket(&cst, &authenticator, time.Now()); err != nil {
		return nil, err
	}

	renewed := cst
	renewed.Validity = ValidityInterval(time.Now(), validity)

	response := authenticator
	response.Timestamp++

	sealedTicket, err := Seal(&renewed, ssSecretKey, c)
	if err != nil {
		return nil, err
	}
	sealedAuthenticator, err := Seal(&response, cst.SessionKey, c)
	if err != nil {
		return nil, err
	}

	return &TicketAuthenticatorWrapper{
		Ticket:        sealedTicket,
		Authenticator: sealedAuthenticator,
	}, nil
}

// ValidateTicket checks that the authenticator belongs to the ticket and is
// fresh. Identity problems are rejections; timing problems are session
// expiry, so clients know a renewal is enough.
func ValidateTicket(ticket *Ticket, authenticator *Authenticator, now time.Time) error {
	if ticket.ClientID == "" {
		return Rejected("Ticket does not contain a client id")
	}
	if authenticator.ClientID == "" {
		return Rejected("Authenticator does not contain a client id")
	}
	if authenticator.ClientID != ticket.ClientID {
		return Rejected("ClientIds do not match")
	}

	if !ticket.Validity.Contains(authenticator.Timestamp) {
		return ErrSessionExpired
	}

	diff := now.UnixNano() - authenticator.Timestamp
	if diff > int64(MaxTimeDiff) || diff < -int64(MaxTimeDiff) {
		return ErrSessionExpired
	}

	return nil
}

// ValidityInterval builds an interval starting now and ending validity from
// now, in Unix nanoseconds.
func ValidityInterval(now time.Time, validity time.Duration) Interval {
	return Interval{
		Begin: now.UnixNano(),
		End:   now.Add(validity).UnixNano(),
	}
}
