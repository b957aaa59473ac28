package httputil

import (
	"net/http"

	"go.uber.org/zap"

	errs "github.com/nmxmxh/peerdesk/pkg/errors"
	"github.com/nmxmxh/peerdesk/pkg/json"
)

// Error codes written to the "error" field of error bodies.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = string(errs.KindForbidden)
	CodeBadRequest      = "BAD_REQUEST"
)

const (
	msgStale   = "This item is no longer available for this action. Refresh and try again."
	msgExpired = "The response window has closed."
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSONError writes a JSON error response.
func WriteJSONError(w http.ResponseWriter, log *zap.Logger, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: code, Message: msg}); err != nil {
		log.Error("Failed to write error response", zap.Error(err))
	}
}

// WriteJSONResponse writes v as a JSON body with the given status.
func WriteJSONResponse(w http.ResponseWriter, log *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to write JSON response", zap.Error(err))
	}
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict, errs.KindInvalidState:
		return http.StatusConflict
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindExpired:
		return http.StatusGone
	case errs.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders a workflow error. Internal errors are logged and their
// detail withheld from the client.
func WriteError(w http.ResponseWriter, log *zap.Logger, err error) {
	kind := errs.KindOf(err)
	status := StatusFor(kind)
	msg := err.Error()
	var e *errs.Error
	if errs.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	switch kind {
	case errs.KindConflict, errs.KindInvalidState:
		msg = msgStale
	case errs.KindExpired:
		msg = msgExpired
	case errs.KindInternal:
		log.Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	WriteJSONError(w, log, status, string(kind), msg)
}

// DecodeJSON reads r's body into v and writes a 400 on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, log *zap.Logger, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteJSONError(w, log, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// HasRole checks if a user has any of the specified roles.
func HasRole(userRoles []string, requiredRoles ...string) bool {
	userRoleSet := make(map[string]struct{}, len(userRoles))
	for _, r := range userRoles {
		userRoleSet[r] = struct{}{}
	}
	for _, r := range requiredRoles {
		if _, ok := userRoleSet[r]; ok {
			return true
		}
	}
	return false
}
