package web

// errors.go turns service errors into JSON responses.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via core.MapError to a user-facing message and code
//  4. The code picks the HTTP status
//  5. Technical error is logged with the request ID for correlation

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/registrysync/internal/core"
	"github.com/JonMunkholm/registrysync/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := core.MapError(err)
	status := statusForCode(msg.Code)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusForCode maps an error catalogue code to an HTTP status.
func statusForCode(code string) int {
	switch code {
	case "REG001", "REG002":
		return http.StatusNotFound
	case "REG003", "PER002":
		return http.StatusConflict
	case "REG004":
		return http.StatusForbidden
	case "REG005":
		return http.StatusBadRequest
	case "FILE001":
		return http.StatusRequestEntityTooLarge
	case "UPL002", "RATE001":
		return http.StatusTooManyRequests
	case "UPL004", "UPL005":
		return http.StatusRequestTimeout
	case "PER003":
		return http.StatusServiceUnavailable
	}

	switch {
	case strings.HasPrefix(code, "IMP"),
		strings.HasPrefix(code, "FILE"),
		strings.HasPrefix(code, "VAL"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
