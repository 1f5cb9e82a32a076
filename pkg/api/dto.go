package api

import (
	"github.com/marmos91/ticketd/pkg/protocol"
)

// The DTOs below are the JSON shapes of the wire messages. Sealed fields
// are []byte and therefore base64 strings on the wire, which is exactly
// what encoding/json does for byte slices.

// TicketAuthenticatorWrapperDTO mirrors protocol.TicketAuthenticatorWrapper.
type TicketAuthenticatorWrapperDTO struct {
	Ticket        []byte `json:"ticket"`
	Authenticator []byte `json:"authenticator"`
}

// TicketSessionKeyWrapperDTO mirrors protocol.TicketSessionKeyWrapper.
type TicketSessionKeyWrapperDTO struct {
	Ticket     []byte `json:"ticket"`
	SessionKey []byte `json:"session_key"`
}

// AuthenticatedValueDTO mirrors protocol.AuthenticatedValue.
type AuthenticatedValueDTO struct {
	Wrapper TicketAuthenticatorWrapperDTO `json:"wrapper"`
	Value   []byte                        `json:"value"`
}

// LoginCredentialsChangeDTO mirrors protocol.LoginCredentialsChange. The
// wrapper is absent during bootstrap registration.
type LoginCredentialsChangeDTO struct {
	ID             string                         `json:"id"`
	OldCredentials []byte                         `json:"old_credentials,omitempty"`
	NewCredentials []byte                         `json:"new_credentials,omitempty"`
	Admin          bool                           `json:"admin,omitempty"`
	Wrapper        *TicketAuthenticatorWrapperDTO `json:"wrapper,omitempty"`
}

// PrincipalDTO carries a bare principal identifier.
type PrincipalDTO struct {
	ID string `json:"id"`
}

func (d TicketAuthenticatorWrapperDTO) toProtocol() protocol.TicketAuthenticatorWrapper {
	return protocol.TicketAuthenticatorWrapper{Ticket: d.Ticket, Authenticator: d.Authenticator}
}

func wrapperDTO(w *protocol.TicketAuthenticatorWrapper) *TicketAuthenticatorWrapperDTO {
	if w == nil {
		return nil
	}
	return &TicketAuthenticatorWrapperDTO{Ticket: w.Ticket, Authenticator: w.Authenticator}
}

func sessionKeyWrapperDTO(w *protocol.TicketSessionKeyWrapper) *TicketSessionKeyWrapperDTO {
	return &TicketSessionKeyWrapperDTO{Ticket: w.Ticket, SessionKey: w.SessionKey}
}

func (d LoginCredentialsChangeDTO) toProtocol() *protocol.LoginCredentialsChange {
	change := &protocol.LoginCredentialsChange{
		ID:             d.ID,
		OldCredentials: d.OldCredentials,
		NewCredentials: d.NewCredentials,
		Admin:          d.Admin,
	}
	if d.Wrapper != nil {
		change.Wrapper = d.Wrapper.toProtocol()
	}
	return change
}
