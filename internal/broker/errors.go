package broker

import (
	"errors"
	"fmt"
	"net/http"

	"panehub/server/internal/pane"
)

// Error carries the HTTP outcome of a failed operation. Client request
// errors use status 200 with Message as the diagnostic body.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	CodeClientRequest = "CLIENT_REQUEST"
	CodeInvariant     = "INVARIANT"
	CodeUnauthorized  = "UNAUTHORIZED"
)

func clientError(format string, args ...any) *Error {
	return &Error{Status: http.StatusOK, Code: CodeClientRequest, Message: fmt.Sprintf(format, args...)}
}

// fromPaneError turns an update engine failure into a client request
// error; anything else is returned unchanged.
func fromPaneError(err error) error {
	if errors.Is(err, pane.ErrMalformed) || errors.Is(err, pane.ErrUnsupportedUpdate) || errors.Is(err, pane.ErrShapeMismatch) {
		return &Error{Status: http.StatusOK, Code: CodeClientRequest, Message: err.Error()}
	}
	return err
}

func invariantError(format string, args ...any) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInvariant, Message: fmt.Sprintf(format, args...)}
}
