package action

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrDuplicateAction is returned when an action is registered twice for the same method and path.
	ErrDuplicateAction = errors.New("duplicate action")
	// ErrInvalidAction is returned for actions without a path or handler.
	ErrInvalidAction = errors.New("invalid action")
	// ErrAlreadyBound is returned when RegisterActions is called a second time.
	ErrAlreadyBound = errors.New("actions already bound to a router")
)

// HTTPError is an error with the HTTP status that should be sent to the client. Message is sent
// to the client; Err is only logged.
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// NewHTTPError returns an HTTPError. An empty message defaults to the status text.
func NewHTTPError(status int, message string) *HTTPError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &HTTPError{Status: status, Message: message}
}

// Wrap attaches the underlying cause to the error.
func (e *HTTPError) Wrap(err error) *HTTPError {
	return &HTTPError{Status: e.Status, Message: e.Message, Err: err}
}

func BadRequest(message string) *HTTPError { return NewHTTPError(http.StatusBadRequest, message) }

func Unauthorized(message string) *HTTPError { return NewHTTPError(http.StatusUnauthorized, message) }

func Forbidden(message string) *HTTPError { return NewHTTPError(http.StatusForbidden, message) }

func NotFound(message string) *HTTPError { return NewHTTPError(http.StatusNotFound, message) }

func Conflict(message string) *HTTPError { return NewHTTPError(http.StatusConflict, message) }
