package app

import (
	"errors"
	"net/http"

	"panehub/server/internal/auth"
	"panehub/server/internal/broker"
	"panehub/server/internal/env"
	"panehub/server/internal/export"
	"panehub/server/internal/history"
)

// mapError translates an operation failure into its HTTP outcome. Client
// request errors keep status 200 and carry the diagnostic as message.
func mapError(err error) (status int, code, message string) {
	var brokerErr *broker.Error
	if errors.As(err, &brokerErr) {
		return brokerErr.Status, brokerErr.Code, brokerErr.Message
	}
	switch {
	case errors.Is(err, env.ErrNotFound):
		return http.StatusOK, broker.CodeClientRequest, "env does not exist"
	case errors.Is(err, history.ErrNoHistory):
		return http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, export.ErrUnsupportedFormat), errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusOK, broker.CodeClientRequest, err.Error()
	case errors.Is(err, auth.ErrBadCredentials):
		return http.StatusBadRequest, broker.CodeUnauthorized, err.Error()
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusBadRequest, broker.CodeUnauthorized, "login required"
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error"
}

// fail writes err the way the producer endpoints expect: a plain text
// diagnostic for client errors, the error page for everything else.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	switch {
	case status == http.StatusOK:
		logRequestWarning(r, "%s %s: %s", r.Method, r.URL.Path, message)
		writeText(w, http.StatusOK, message)
	case status >= http.StatusInternalServerError:
		logRequestError(r, "%s %s: %v", r.Method, r.URL.Path, err)
		s.writeErrorPage(w, status, err)
	default:
		writeError(w, status, code, message, nil)
	}
}
