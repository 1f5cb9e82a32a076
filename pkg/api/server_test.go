package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/ticketd/pkg/controller"
	"github.com/marmos91/ticketd/pkg/crypto"
	"github.com/marmos91/ticketd/pkg/protocol"
)

var testCipher = crypto.LegacyECB{}

func newTestServer(t *testing.T) (*httptest.Server, *controller.Controller) {
	t.Helper()

	c, err := controller.New(controller.Options{
		CredentialsDir: t.TempDir(),
		TicketValidity: 15 * time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, c.Init())
	require.NoError(t, c.Activate())

	server := httptest.NewServer(NewRouter(c, nil, false))
	t.Cleanup(server.Close)
	return server, c
}

func post(t *testing.T, server *httptest.Server, path string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// bootstrap registers the first administrator over HTTP and returns the
// derived key.
func bootstrap(t *testing.T, server *httptest.Server, c *controller.Controller) []byte {
	t.Helper()

	initialPassword := c.InitialPassword()
	require.NotEmpty(t, initialPassword)

	rootKey := crypto.Hash("root_pw")
	sealed, err := protocol.SealBytes(rootKey, crypto.Hash(initialPassword), testCipher)
	require.NoError(t, err)

	resp := post(t, server, "/api/v1/auth/register", LoginCredentialsChangeDTO{
		ID:             "root",
		NewCredentials: sealed,
		Admin:          true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Bootstrap registration answers with no wrapper.
	wrapper := decodeBody[*TicketAuthenticatorWrapperDTO](t, resp)
	assert.Nil(t, wrapper)
	return rootKey
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTicketFlowOverHTTP(t *testing.T) {
	server, c := newTestServer(t)
	rootKey := bootstrap(t, server, c)

	// KDC leg.
	resp := post(t, server, "/api/v1/auth/requestTicketGrantingTicket", PrincipalDTO{ID: "root@"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	kdc := decodeBody[TicketSessionKeyWrapperDTO](t, resp)

	tgsSessionKey, err := protocol.OpenBytes(kdc.SessionKey, rootKey, testCipher)
	require.NoError(t, err)

	// TGS leg.
	authenticator, err := protocol.Seal(&protocol.Authenticator{
		ClientID:  "root@",
		Timestamp: time.Now().UnixNano(),
	}, tgsSessionKey, testCipher)
	require.NoError(t, err)

	resp = post(t, server, "/api/v1/auth/requestClientServerTicket", TicketAuthenticatorWrapperDTO{
		Ticket:        kdc.Ticket,
		Authenticator: authenticator,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tgs := decodeBody[TicketSessionKeyWrapperDTO](t, resp)

	cstSessionKey, err := protocol.OpenBytes(tgs.SessionKey, tgsSessionKey, testCipher)
	require.NoError(t, err)

	// SS leg.
	timestamp := time.Now().UnixNano()
	authenticator, err = protocol.Seal(&protocol.Authenticator{
		ClientID:  "root@",
		Timestamp: timestamp,
	}, cstSessionKey, testCipher)
	require.NoError(t, err)

	resp = post(t, server, "/api/v1/auth/validateClientServerTicket", TicketAuthenticatorWrapperDTO{
		Ticket:        tgs.Ticket,
		Authenticator: authenticator,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ss := decodeBody[TicketAuthenticatorWrapperDTO](t, resp)

	var answered protocol.Authenticator
	require.NoError(t, protocol.Open(ss.Authenticator, cstSessionKey, &answered, testCipher))
	assert.Equal(t, timestamp+1, answered.Timestamp)
}

func TestUnknownPrincipalIs404(t *testing.T) {
	server, _ := newTestServer(t)

	resp := post(t, server, "/api/v1/auth/requestTicketGrantingTicket", PrincipalDTO{ID: "ghost@"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ContentTypeProblemJSON, resp.Header.Get("Content-Type"))

	problem := decodeBody[Problem](t, resp)
	assert.Equal(t, "Not Available", problem.Title)
}

func TestExpiredSessionIs401(t *testing.T) {
	server, c := newTestServer(t)
	rootKey := bootstrap(t, server, c)

	resp := post(t, server, "/api/v1/auth/requestTicketGrantingTicket", PrincipalDTO{ID: "root@"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	kdc := decodeBody[TicketSessionKeyWrapperDTO](t, resp)

	tgsSessionKey, err := protocol.OpenBytes(kdc.SessionKey, rootKey, testCipher)
	require.NoError(t, err)

	// Authenticator from far outside the skew window.
	authenticator, err := protocol.Seal(&protocol.Authenticator{
		ClientID:  "root@",
		Timestamp: time.Now().Add(10 * time.Minute).UnixNano(),
	}, tgsSessionKey, testCipher)
	require.NoError(t, err)

	resp = post(t, server, "/api/v1/auth/requestClientServerTicket", TicketAuthenticatorWrapperDTO{
		Ticket:        kdc.Ticket,
		Authenticator: authenticator,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	problem := decodeBody[Problem](t, resp)
	assert.Equal(t, "urn:ticketd:session-expired", problem.Type)
}

func TestGarbageWrapperIs403(t *testing.T) {
	server, _ := newTestServer(t)

	resp := post(t, server, "/api/v1/auth/validateClientServerTicket", TicketAuthenticatorWrapperDTO{
		Ticket:        []byte("junk"),
		Authenticator: []byte("junk"),
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMalformedBodyIs400(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/v1/auth/isAdmin", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIsAdminHasUser(t *testing.T) {
	server, c := newTestServer(t)
	bootstrap(t, server, c)

	resp := post(t, server, "/api/v1/auth/isAdmin", PrincipalDTO{ID: "root"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[bool](t, resp))

	resp = post(t, server, "/api/v1/auth/hasUser", PrincipalDTO{ID: "ghost"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeBody[bool](t, resp))
}
