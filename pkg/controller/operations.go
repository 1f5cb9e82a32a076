package controller

import (
	"bytes"
	"strings"

	"github.com/marmos91/ticketd/internal/logger"
	"github.com/marmos91/ticketd/pkg/protocol"
	"github.com/marmos91/ticketd/pkg/store"
)

// RequestTicketGrantingTicket serves the KDC leg: it resolves the user
// and/or client key for a "user@client" principal and issues a TGT with the
// session key wrapped for the caller. The client network address is issued
// empty; the field stays on the wire for clients that expect it.
func (c *Controller) RequestTicketGrantingTicket(id string) (*protocol.TicketSessionKeyWrapper, error) {
	user, client := splitPrincipal(id)
	if user == "" && client == "" {
		return nil, surfaceError("requestTicketGrantingTicket", &protocol.NotAvailableError{ID: id})
	}

	var userKey, clientKey []byte
	var err error
	if user != "" {
		if userKey, err = c.store.GetCredentials(strings.TrimSpace(user)); err != nil {
			return nil, surfaceError("requestTicketGrantingTicket", &protocol.NotAvailableError{ID: id})
		}
	}
	if client != "" {
		if clientKey, err = c.store.GetCredentials(strings.TrimSpace(client)); err != nil {
			return nil, surfaceError("requestTicketGrantingTicket", &protocol.NotAvailableError{ID: id})
		}
	}

	wrapper, err := protocol.HandleKDCRequest(id, userKey, clientKey, "", c.tgsSecretKey, c.validity, c.cipher)
	if err != nil {
		return nil, surfaceError("requestTicketGrantingTicket", err)
	}
	return wrapper, nil
}

// RequestClientServerTicket serves the TGS leg: it exchanges a valid TGT
// for a client-server ticket with a fresh session key.
func (c *Controller) RequestClientServerTicket(wrapper *protocol.TicketAuthenticatorWrapper) (*protocol.TicketSessionKeyWrapper, error) {
	response, err := protocol.HandleTGSRequest(c.tgsSecretKey, c.ssSecretKey, wrapper, c.validity, c.cipher)
	if err != nil {
		return nil, surfaceError("requestClientServerTicket", err)
	}
	return response, nil
}

// ValidateClientServerTicket serves the SS leg: it renews the CST and
// answers the authenticator with timestamp + 1. Session expiry passes
// through untouched so clients know to renew rather than re-authenticate.
func (c *Controller) ValidateClientServerTicket(wrapper *protocol.TicketAuthenticatorWrapper) (*protocol.TicketAuthenticatorWrapper, error) {
	response, err := protocol.HandleSSRequest(c.ssSecretKey, wrapper, c.validity, c.cipher)
	if err != nil {
		return nil, surfaceError("validateClientServerTicket", err)
	}
	return response, nil
}

// ssSession is the decrypted context of an SS-validated request: the
// renewed response wrapper, the CST session key and the authenticator.
type ssSession struct {
	response   *protocol.TicketAuthenticatorWrapper
	sessionKey []byte
	user       string
	clientID   string
}

// validateSS runs the SS handler on a wrapper and decrypts its ticket and
// authenticator, yielding everything the administrative operations need.
func (c *Controller) validateSS(wrapper *protocol.TicketAuthenticatorWrapper) (*ssSession, error) {
	response, err := protocol.HandleSSRequest(c.ssSecretKey, wrapper, c.validity, c.cipher)
	if err != nil {
		return nil, err
	}

	var cst protocol.Ticket
	if err := protocol.Open(wrapper.Ticket, c.ssSecretKey, &cst, c.cipher); err != nil {
		return nil, err
	}
	var authenticator protocol.Authenticator
	if err := protocol.Open(wrapper.Authenticator, cst.SessionKey, &authenticator, c.cipher); err != nil {
		return nil, err
	}

	user, _ := splitPrincipal(authenticator.ClientID)
	return &ssSession{
		response:   response,
		sessionKey: cst.SessionKey,
		user:       user,
		clientID:   authenticator.ClientID,
	}, nil
}

// ChangeCredentials replaces a principal's stored key. Users may change
// their own credentials; administrators may change anyone's. The old
// credentials must match the stored ones.
func (c *Controller) ChangeCredentials(change *protocol.LoginCredentialsChange) (*protocol.TicketAuthenticatorWrapper, error) {
	const op = "changeCredentials"

	session, err := c.validateSS(&change.Wrapper)
	if err != nil {
		return nil, surfaceError(op, err)
	}

	oldCredentials, err := protocol.OpenBytes(change.OldCredentials, session.sessionKey, c.cipher)
	if err != nil {
		return nil, surfaceError(op, err)
	}
	newCredentials, err := protocol.OpenBytes(change.NewCredentials, session.sessionKey, c.cipher)
	if err != nil {
		return nil, surfaceError(op, err)
	}

	if change.ID != session.user && !c.store.IsAdmin(session.user) {
		return nil, surfaceError(op, &protocol.PermissionDeniedError{Reason: "you are not permitted to perform this action"})
	}

	stored, err := c.store.GetCredentials(change.ID)
	if err != nil || !bytes.Equal(oldCredentials, stored) {
		return nil, surfaceError(op, protocol.Rejected("the old password is wrong"))
	}

	if err := c.store.SetCredentials(change.ID, newCredentials); err != nil {
		return nil, surfaceError(op, err)
	}
	return session.response, nil
}

// Register creates a principal. In bootstrap mode, while the initial
// password is live and the store holds nothing but the bootstrap entries,
// the new credentials are sealed under the hash of the initial password and
// the first user is created as an administrator with no authenticator at
// all; the initial password is cleared the moment this succeeds. In normal
// mode the caller must hold a valid CST, may not overwrite anyone, and must
// be an administrator to mint one.
//
// The returned wrapper is nil for a bootstrap registration.
func (c *Controller) Register(change *protocol.LoginCredentialsChange) (*protocol.TicketAuthenticatorWrapper, error) {
	const op = "register"

	if wrapper, handled, err := c.registerBootstrap(change); handled {
		if err != nil {
			return nil, surfaceError(op, err)
		}
		return wrapper, nil
	}

	session, err := c.validateSS(&change.Wrapper)
	if err != nil {
		return nil, surfaceError(op, err)
	}

	if change.Admin && !c.store.IsAdmin(session.user) {
		return nil, surfaceError(op, &protocol.PermissionDeniedError{Reason: "you are not permitted to register an admin"})
	}
	if change.ID == session.user || c.store.HasEntry(change.ID) {
		return nil, surfaceError(op, protocol.Rejected("you cannot register an existing user"))
	}

	key, err := protocol.OpenBytes(change.NewCredentials, session.sessionKey, c.cipher)
	if err != nil {
		return nil, surfaceError(op, err)
	}

	if err := c.store.AddCredentials(change.ID, key, change.Admin, false); err != nil {
		return nil, surfaceError(op, err)
	}
	return session.response, nil
}

// registerBootstrap handles the bootstrap branch of Register. The handled
// return is true when bootstrap mode was in effect, whether or not the
// registration succeeded.
func (c *Controller) registerBootstrap(change *protocol.LoginCredentialsChange) (*protocol.TicketAuthenticatorWrapper, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialPassword == "" || !(c.initialPasswordRequired() || c.forceBootstrap) {
		return nil, false, nil
	}

	if change.ID == "" || len(change.NewCredentials) == 0 {
		return nil, true, protocol.Rejected("cannot register first user, id and/or new credentials empty")
	}

	key := c.kdf.DeriveKey(c.initialPassword, change.ID)
	credentials, err := protocol.OpenBytes(change.NewCredentials, key, c.cipher)
	if err != nil {
		return nil, true, err
	}

	if err := c.store.AddCredentials(change.ID, credentials, true, false); err != nil {
		return nil, true, err
	}
	if err := c.store.SetBootstrapped(true); err != nil {
		return nil, true, err
	}

	c.initialPassword = ""
	logger.Info("Registered initial administrator", "id", change.ID)
	return nil, true, nil
}

// RemoveUser deletes a principal. Administrators only, no self-removal,
// and the target must exist.
func (c *Controller) RemoveUser(change *protocol.LoginCredentialsChange) (*protocol.TicketAuthenticatorWrapper, error) {
	const op = "removeUser"

	session, err := c.validateSS(&change.Wrapper)
	if err != nil {
		return nil, surfaceError(op, err)
	}

	if !c.store.IsAdmin(session.user) {
		return nil, surfaceError(op, &protocol.PermissionDeniedError{Reason: "you are not permitted to perform this action"})
	}
	if change.ID == session.user {
		return nil, surfaceError(op, protocol.Rejected("you cannot remove yourself"))
	}
	if !c.store.HasEntry(change.ID) {
		return nil, surfaceError(op, protocol.Rejected("given user does not exist"))
	}

	if err := c.store.RemoveEntry(change.ID); err != nil {
		return nil, surfaceError(op, err)
	}
	return session.response, nil
}

// SetAdministrator flips a principal's administrator flag. Administrators
// only, never on themselves, and the target must exist.
func (c *Controller) SetAdministrator(change *protocol.LoginCredentialsChange) (*protocol.TicketAuthenticatorWrapper, error) {
	const op = "setAdministrator"

	session, err := c.validateSS(&change.Wrapper)
	if err != nil {
		return nil, surfaceError(op, err)
	}

	if !c.store.IsAdmin(session.user) {
		return nil, surfaceError(op, &protocol.PermissionDeniedError{Reason: "you are not permitted to perform this action"})
	}
	if change.ID == session.user {
		return nil, surfaceError(op, protocol.Rejected("you cannot change your own administrator status"))
	}
	if !c.store.HasEntry(change.ID) {
		return nil, surfaceError(op, protocol.Rejected("given user does not exist"))
	}

	if err := c.store.SetAdmin(change.ID, change.Admin); err != nil {
		return nil, surfaceError(op, err)
	}
	return session.response, nil
}

// RequestServiceServerSecretKey hands the service-server secret key to a
// service-server principal: the authenticator's client id must be exactly
// "@" + SERVICE_SERVER_ID. The key travels sealed under the CST session
// key inside an AuthenticatedValue.
func (c *Controller) RequestServiceServerSecretKey(wrapper *protocol.TicketAuthenticatorWrapper) (*protocol.AuthenticatedValue, error) {
	const op = "requestServiceServerSecretKey"

	session, err := c.validateSS(wrapper)
	if err != nil {
		return nil, surfaceError(op, err)
	}

	if session.clientID != "@"+store.ServiceServerID {
		return nil, surfaceError(op, protocol.Rejected("client %q is not authorized to request the service server secret key", session.clientID))
	}

	value, err := protocol.SealBytes(c.ssSecretKey, session.sessionKey, c.cipher)
	if err != nil {
		return nil, surfaceError(op, err)
	}

	return &protocol.AuthenticatedValue{
		Wrapper: *session.response,
		Value:   value,
	}, nil
}

// IsAdmin reports whether a principal has the administrator flag.
func (c *Controller) IsAdmin(id string) bool {
	return c.store.IsAdmin(id)
}

// HasUser reports whether a principal exists in the store.
func (c *Controller) HasUser(id string) bool {
	return c.store.HasEntry(id)
}
