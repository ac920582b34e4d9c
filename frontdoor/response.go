// Package frontdoor exposes conversation.Manager's operations over HTTP:
// one JSON endpoint per ConversationManager operation (spec.md §4.6),
// plus a long-poll event endpoint for front-doors that cannot hold a
// streaming connection open. Grounded on the shape of
// telnet2-opencode/go-opencode's internal/server package (Server struct,
// setupMiddleware/setupRoutes/Start/Shutdown, one handler per endpoint,
// a writeJSON/writeError response helper pair), translated from that
// repo's go-chi/chi + go-chi/cors idiom into this module's
// gorilla/mux + rs/cors stack (named in SPEC_FULL.md's DOMAIN STACK
// table; neither library appears in any pack repo's own go.mod, so
// they are named here as an out-of-pack ecosystem pick rather than
// claimed as pack-grounded).
package frontdoor

import (
	"encoding/json"
	"net/http"

	"github.com/agentrt/agentrt/errs"
)

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes surfaced in errorDetail.Code.
const (
	errCodeInvalidRequest = "INVALID_REQUEST"
	errCodeNotFound       = "NOT_FOUND"
	errCodeLimitReached   = "LIMIT_REACHED"
	errCodeNotSupported   = "NOT_SUPPORTED"
	errCodeInternal       = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// writeManagerError maps a conversation.Manager error onto an HTTP
// status and error code by discriminating on errs's typed error kinds,
// the same errors.As-based dispatch the rest of this module uses
// instead of string matching.
func writeManagerError(w http.ResponseWriter, err error) {
	if _, ok := errs.AsNotFound(err); ok {
		writeError(w, http.StatusNotFound, errCodeNotFound, err.Error())
		return
	}
	if _, ok := errs.AsConversationLimitReached(err); ok {
		writeError(w, http.StatusTooManyRequests, errCodeLimitReached, err.Error())
		return
	}
	if _, ok := errs.AsNotSupported(err); ok {
		writeError(w, http.StatusNotImplemented, errCodeNotSupported, err.Error())
		return
	}
	if _, ok := errs.AsConfigurationError(err); ok {
		writeError(w, http.StatusBadRequest, errCodeInvalidRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, errCodeInternal, err.Error())
}
