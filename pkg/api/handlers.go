package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/marmos91/ticketd/pkg/controller"
	"github.com/marmos91/ticketd/pkg/metrics"
	"github.com/marmos91/ticketd/pkg/protocol"
)

// AuthHandler exposes the controller's remote-callable surface over HTTP.
type AuthHandler struct {
	controller *controller.Controller
	metrics    *metrics.AuthMetrics
}

// NewAuthHandler creates the handler. Metrics may be nil.
func NewAuthHandler(c *controller.Controller, m *metrics.AuthMetrics) *AuthHandler {
	return &AuthHandler{controller: c, metrics: m}
}

// decode parses a JSON request body, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeProblem(w, "", http.StatusBadRequest, "Bad Request", "malformed request body")
		return false
	}
	return true
}

// finish writes the success or error response and records the request.
func (h *AuthHandler) finish(w http.ResponseWriter, method string, started time.Time, result any, err error) {
	outcome := "ok"
	if err != nil {
		outcome = writeError(w, err)
	} else {
		writeJSON(w, http.StatusOK, result)
	}
	h.metrics.RecordRequest(method, outcome, time.Since(started))
}

// RequestTicketGrantingTicket handles the KDC leg.
func (h *AuthHandler) RequestTicketGrantingTicket(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req PrincipalDTO
	if !decode(w, r, &req) {
		return
	}

	wrapper, err := h.controller.RequestTicketGrantingTicket(req.ID)
	if err != nil {
		h.finish(w, "requestTicketGrantingTicket", started, nil, err)
		return
	}
	h.finish(w, "requestTicketGrantingTicket", started, sessionKeyWrapperDTO(wrapper), nil)
}

// RequestClientServerTicket handles the TGS leg.
func (h *AuthHandler) RequestClientServerTicket(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req TicketAuthenticatorWrapperDTO
	if !decode(w, r, &req) {
		return
	}

	in := req.toProtocol()
	wrapper, err := h.controller.RequestClientServerTicket(&in)
	if err != nil {
		h.finish(w, "requestClientServerTicket", started, nil, err)
		return
	}
	h.finish(w, "requestClientServerTicket", started, sessionKeyWrapperDTO(wrapper), nil)
}

// ValidateClientServerTicket handles the SS leg.
func (h *AuthHandler) ValidateClientServerTicket(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req TicketAuthenticatorWrapperDTO
	if !decode(w, r, &req) {
		return
	}

	in := req.toProtocol()
	wrapper, err := h.controller.ValidateClientServerTicket(&in)
	if err != nil {
		h.finish(w, "validateClientServerTicket", started, nil, err)
		return
	}
	h.finish(w, "validateClientServerTicket", started, wrapperDTO(wrapper), nil)
}

// ChangeCredentials replaces a principal's stored key.
func (h *AuthHandler) ChangeCredentials(w http.ResponseWriter, r *http.Request) {
	h.credentialsChange(w, r, "changeCredentials", h.controller.ChangeCredentials)
}

// Register creates a principal. The response body is JSON null for a
// bootstrap registration, which carries no wrapper.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.credentialsChange(w, r, "register", h.controller.Register)
}

// RemoveUser deletes a principal.
func (h *AuthHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	h.credentialsChange(w, r, "removeUser", h.controller.RemoveUser)
}

// SetAdministrator flips a principal's administrator flag.
func (h *AuthHandler) SetAdministrator(w http.ResponseWriter, r *http.Request) {
	h.credentialsChange(w, r, "setAdministrator", h.controller.SetAdministrator)
}

// credentialsChange is the shared body of the four administrative
// endpoints, which all consume a LoginCredentialsChange and answer with
// the SS-validated wrapper.
func (h *AuthHandler) credentialsChange(
	w http.ResponseWriter,
	r *http.Request,
	method string,
	op func(*protocol.LoginCredentialsChange) (*protocol.TicketAuthenticatorWrapper, error),
) {
	started := time.Now()
	var req LoginCredentialsChangeDTO
	if !decode(w, r, &req) {
		return
	}

	wrapper, err := op(req.toProtocol())
	if err != nil {
		h.finish(w, method, started, nil, err)
		return
	}
	h.finish(w, method, started, wrapperDTO(wrapper), nil)
}

// RequestServiceServerSecretKey releases the SS secret key to the
// service-server principal.
func (h *AuthHandler) RequestServiceServerSecretKey(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req TicketAuthenticatorWrapperDTO
	if !decode(w, r, &req) {
		return
	}

	in := req.toProtocol()
	value, err := h.controller.RequestServiceServerSecretKey(&in)
	if err != nil {
		h.finish(w, "requestServiceServerSecretKey", started, nil, err)
		return
	}
	h.finish(w, "requestServiceServerSecretKey", started, &AuthenticatedValueDTO{
		Wrapper: TicketAuthenticatorWrapperDTO{
			Ticket:        value.Wrapper.Ticket,
			Authenticator: value.Wrapper.Authenticator,
		},
		Value: value.Value,
	}, nil)
}

// IsAdmin reports the administrator flag of a principal.
func (h *AuthHandler) IsAdmin(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req PrincipalDTO
	if !decode(w, r, &req) {
		return
	}
	h.finish(w, "isAdmin", started, h.controller.IsAdmin(req.ID), nil)
}

// HasUser reports whether a principal exists.
func (h *AuthHandler) HasUser(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req PrincipalDTO
	if !decode(w, r, &req) {
		return
	}
	h.finish(w, "hasUser", started, h.controller.HasUser(req.ID), nil)
}
