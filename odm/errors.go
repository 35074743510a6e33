package odm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoConnection is returned when no driver has been registered with the manager.
	ErrNoConnection = errors.New("no connection registered")
	// ErrNotConnected is returned by operations that need an open session.
	ErrNotConnected     = errors.New("connection is not open")
	ErrAlreadyConnected = errors.New("connection is already open")
	ErrUnknownDocument  = errors.New("unknown document")
	ErrUnknownHandler   = errors.New("unknown subscriber handler")
	ErrUnsupported      = errors.New("operation not supported by driver")
)

// ValidationError reports a value that does not match its document schema.
type ValidationError struct {
	Document string
	Errors   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document %s failed validation: %s", e.Document, strings.Join(e.Errors, "; "))
}
