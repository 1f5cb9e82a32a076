package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/ticketd/internal/logger"
	"github.com/marmos91/ticketd/pkg/protocol"
)

// Problem represents an RFC 7807 "problem details" response.
// https://tools.ietf.org/html/rfc7807
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ContentTypeProblemJSON is the Content-Type for RFC 7807 problem responses.
const ContentTypeProblemJSON = "application/problem+json"

// writeJSON writes a JSON response. Encoding goes through a buffer first so
// an encoding failure can still produce an error status before any headers
// are sent.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
		http.Error(w, `{"title":"internal server error","status":500}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeProblem writes an RFC 7807 problem response.
func writeProblem(w http.ResponseWriter, problemType string, status int, title, detail string) {
	problem := &Problem{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	}
	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// writeError translates a protocol error into a problem response. Internal
// causes are never surfaced; callers get a generic 500.
//
// The outcome string feeds the request metrics.
func writeError(w http.ResponseWriter, err error) (outcome string) {
	var notAvailable *protocol.NotAvailableError
	var rejected *protocol.RejectedError
	var denied *protocol.PermissionDeniedError

	switch {
	case errors.Is(err, protocol.ErrSessionExpired):
		writeProblem(w, "urn:ticketd:session-expired", http.StatusUnauthorized,
			"Session Expired", "the ticket must be renewed")
		return "session_expired"
	case errors.As(err, &notAvailable):
		writeProblem(w, "urn:ticketd:not-available", http.StatusNotFound,
			"Not Available", notAvailable.Error())
		return "not_available"
	case errors.As(err, &rejected):
		writeProblem(w, "urn:ticketd:rejected", http.StatusForbidden,
			"Rejected", rejected.Reason)
		return "rejected"
	case errors.As(err, &denied):
		// Remote callers see a plain rejection; the distinction stays in
		// the server logs.
		writeProblem(w, "urn:ticketd:rejected", http.StatusForbidden,
			"Rejected", denied.Reason)
		return "rejected"
	default:
		writeProblem(w, "", http.StatusInternalServerError,
			"Internal Server Error", "internal server error, please try again")
		return "error"
	}
}
