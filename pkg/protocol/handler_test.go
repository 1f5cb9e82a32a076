package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/ticketd/pkg/crypto"
)

var testCipher = crypto.LegacyECB{}

const testValidity = 15 * time.Minute

// mintAuthenticator seals a fresh authenticator under a session key.
func mintAuthenticator(t *testing.T, clientID string, sessionKey []byte) []byte {
	t.Helper()
	sealed, err := Seal(&Authenticator{ClientID: clientID, Timestamp: time.Now().UnixNano()}, sessionKey, testCipher)
	require.NoError(t, err)
	return sealed
}

func TestHandleKDCRequestUserKey(t *testing.T) {
	tgsSecretKey := crypto.GenerateKey()
	userKey := crypto.Hash("secret")

	wrapper, err := HandleKDCRequest("alice@", userKey, nil, "", tgsSecretKey, testValidity, testCipher)
	require.NoError(t, err)

	// The session key the user can unwrap matches the one embedded in the
	// sealed ticket.
	sessionKey, err := OpenBytes(wrapper.SessionKey, userKey, testCipher)
	require.NoError(t, err)
	require.Len(t, sessionKey, crypto.KeySize)

	var ticket Ticket
	require.NoError(t, Open(wrapper.Ticket, tgsSecretKey, &ticket, testCipher))
	assert.Equal(t, "alice@", ticket.ClientID)
	assert.Equal(t, "", ticket.ClientIP)
	assert.Equal(t, sessionKey, ticket.SessionKey)
	assert.True(t, ticket.Validity.Contains(time.Now().UnixNano()))
}

func TestHandleKDCRequestUserAndClientKey(t *testing.T) {
	tgsSecretKey := crypto.GenerateKey()
	userKey := crypto.Hash("secret")
	publicKey, privateKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	wrapper, err := HandleKDCRequest("alice@livingroom", userKey, publicKey, "", tgsSecretKey, testValidity, testCipher)
	require.NoError(t, err)

	// Unwrap in reverse order: client first, then user.
	inner, err := crypto.UnwrapRSA(privateKey, wrapper.SessionKey)
	require.NoError(t, err)
	sessionKey, err := OpenBytes(inner, userKey, testCipher)
	require.NoError(t, err)

	var ticket Ticket
	require.NoError(t, Open(wrapper.Ticket, tgsSecretKey, &ticket, testCipher))
	assert.Equal(t, sessionKey, ticket.SessionKey)
}

func TestHandleTGSRequest(t *testing.T) {
	tgsSecretKey := crypto.GenerateKey()
	ssSecretKey := crypto.GenerateKey()
	userKey := crypto.Hash("secret")

	kdc, err := HandleKDCRequest("alice@", userKey, nil, "", tgsSecretKey, testValidity, testCipher)
	require.NoError(t, err)
	tgsSessionKey, err := OpenBytes(kdc.SessionKey, userKey, testCipher)
	require.NoError(t, err)

	wrapper := &TicketAuthenticatorWrapper{
		Ticket:        kdc.Ticket,
		Authenticator: mintAuthenticator(t, "alice@", tgsSessionKey),
	}

	tgs, err := HandleTGSRequest(tgsSecretKey, ssSecretKey, wrapper, testValidity, testCipher)
	require.NoError(t, err)

	// The new session key is sealed under the old one.
	ssSessionKey, err := OpenBytes(tgs.SessionKey, tgsSessionKey, testCipher)
	require.NoError(t, err)

	var cst Ticket
	require.NoError(t, Open(tgs.Ticket, ssSecretKey, &cst, testCipher))
	assert.Equal(t, "alice@", cst.ClientID)
	assert.Equal(t, ssSessionKey, cst.SessionKey)
	assert.NotEqual(t, tgsSessionKey, ssSessionKey)
}

func TestHandleTGSRequestWrongAuthenticatorKey(t *testing.T) {
	tgsSecretKey := crypto.GenerateKey()
	userKey := crypto.Hash("secret")

	kdc, err := HandleKDCRequest("alice@", userKey, nil, "", tgsSecretKey, testValidity, testCipher)
	require.NoError(t, err)

	wrapper := &TicketAuthenticatorWrapper{
		Ticket:        kdc.Ticket,
		Authenticator: mintAuthenticator(t, "alice@", crypto.GenerateKey()),
	}

	_, err = HandleTGSRequest(tgsSecretKey, crypto.GenerateKey(), wrapper, testValidity, testCipher)
	var rejected *RejectedError
	assert.ErrorAs(t, err, &rejected)
}

// buildCST seals a client-server ticket and returns it with its session key.
func buildCST(t *testing.T, clientID string, ssSecretKey []byte, validity time.Duration) ([]byte, []byte) {
	t.Helper()
	sessionKey := crypto.GenerateKey()
	sealed, err := Seal(&Ticket{
		ClientID:   clientID,
		Validity:   ValidityInterval(time.Now(), validity),
		SessionKey: sessionKey,
	}, ssSecretKey, testCipher)
	require.NoError(t, err)
	return sealed, sessionKey
}

func TestHandleSSRequest(t *testing.T) {
	ssSecretKey := crypto.GenerateKey()
	sealedCST, sessionKey := buildCST(t, "alice@", ssSecretKey, testValidity)

	timestamp := time.Now().UnixNano()
	sealedAuthenticator, err := Seal(&Authenticator{ClientID: "alice@", Timestamp: timestamp}, sessionKey, testCipher)
	require.NoError(t, err)

	response, err := HandleSSRequest(ssSecretKey, &TicketAuthenticatorWrapper{
		Ticket:        sealedCST,
		Authenticator: sealedAuthenticator,
	}, testValidity, testCipher)
	require.NoError(t, err)

	// The renewed ticket keeps identity and session key.
	var renewed Ticket
	require.NoError(t, Open(response.Ticket, ssSecretKey, &renewed, testCipher))
	assert.Equal(t, "alice@", renewed.ClientID)
	assert.Equal(t, sessionKey, renewed.SessionKey)

	// The response authenticator proves liveness with timestamp + 1.
	var authenticator Authenticator
	require.NoError(t, Open(response.Authenticator, sessionKey, &authenticator, testCipher))
	assert.Equal(t, timestamp+1, authenticator.Timestamp)
}

func TestValidateTicket(t *testing.T) {
	now := time.Now()
	sessionKey := crypto.GenerateKey()

	validTicket := &Ticket{
		ClientID:   "alice@",
		Validity:   ValidityInterval(now, testValidity),
		SessionKey: sessionKey,
	}

	tests := []struct {
		name          string
		ticket        *Ticket
		authenticator *Authenticator
		wantErr       error
		wantReason    string
	}{
		{
			name:          "valid",
			ticket:        validTicket,
			authenticator: &Authenticator{ClientID: "alice@", Timestamp: now.UnixNano()},
		},
		{
			name:          "empty ticket client id",
			ticket:        &Ticket{Validity: validTicket.Validity, SessionKey: sessionKey},
			authenticator: &Authenticator{ClientID: "alice@", Timestamp: now.UnixNano()},
			wantReason:    "Ticket does not contain a client id",
		},
		{
			name:          "empty authenticator client id",
			ticket:        validTicket,
			authenticator: &Authenticator{Timestamp: now.UnixNano()},
			wantReason:    "Authenticator does not contain a client id",
		},
		{
			name:          "mismatched client ids",
			ticket:        validTicket,
			authenticator: &Authenticator{ClientID: "bob@", Timestamp: now.UnixNano()},
			wantReason:    "ClientIds do not match",
		},
		{
			name:          "timestamp before validity",
			ticket:        validTicket,
			authenticator: &Authenticator{ClientID: "alice@", Timestamp: now.Add(-time.Minute).UnixNano()},
			wantErr:       ErrSessionExpired,
		},
		{
			name:          "timestamp after validity",
			ticket:        validTicket,
			authenticator: &Authenticator{ClientID: "alice@", Timestamp: now.Add(testValidity + time.Second).UnixNano()},
			wantErr:       ErrSessionExpired,
		},
		{
			name:          "clock skew ahead of server",
			ticket:        &Ticket{ClientID: "alice@", Validity: ValidityInterval(now.Add(-5*time.Minute), time.Hour), SessionKey: sessionKey},
			authenticator: &Authenticator{ClientID: "alice@", Timestamp: now.Add(3 * time.Minute).UnixNano()},
			wantErr:       ErrSessionExpired,
		},
		{
			name:          "clock skew behind server",
			ticket:        &Ticket{ClientID: "alice@", Validity: ValidityInterval(now.Add(-5*time.Minute), time.Hour), SessionKey: sessionKey},
			authenticator: &Authenticator{ClientID: "alice@", Timestamp: now.Add(-3 * time.Minute).UnixNano()},
			wantErr:       ErrSessionExpired,
		},
		{
			name:          "skew just inside the window",
			ticket:        &Ticket{ClientID: "alice@", Validity: ValidityInterval(now.Add(-5*time.Minute), time.Hour), SessionKey: sessionKey},
			authenticator: &Authenticator{ClientID: "alice@", Timestamp: now.Add(MaxTimeDiff - time.Second).UnixNano()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTicket(tt.ticket, tt.authenticator, now)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantReason != "":
				var rejected *RejectedError
				require.ErrorAs(t, err, &rejected)
				assert.Equal(t, tt.wantReason, rejected.Reason)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidityInterval(t *testing.T) {
	now := time.Now()
	interval := ValidityInterval(now, time.Minute)
	assert.Equal(t, now.UnixNano(), interval.Begin)
	assert.Equal(t, now.Add(time.Minute).UnixNano(), interval.End)
}
