package transbase

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned for malformed connect input. No engine call is
	// made in that case.
	ErrConfig = errors.New("invalid config")
	// ErrNotConnected is returned when an operation needs a connected session
	ErrNotConnected     = errors.New("session is not connected")
	ErrSessionClosed    = errors.New("session is closed")
	ErrAlreadyConnected = errors.New("session is already connected")
	// ErrInvalidTarget is returned for a negative parameter position or an
	// empty parameter name
	ErrInvalidTarget     = errors.New("invalid parameter target")
	ErrInvalidBufferSize = errors.New("buffer size must be positive")
	// ErrColumnDoesNotExist is returned when a column reference matches no
	// column of the result set
	ErrColumnDoesNotExist = errors.New("column does not exist")
	ErrNoResultSet        = errors.New("statement has no result set")
	ErrUnsupportedValue   = errors.New("unsupported parameter value")
	// ErrOverflow is returned when a column value does not fit the
	// requested C type
	ErrOverflow = errors.New("numeric value out of range")
)

// EngineError is a failed engine call together with the error record that
// was captured right after it.
type EngineError struct {
	Op     string
	State  State
	Record ErrorRecord
}

func (e *EngineError) Error() string {
	if e.Record.Message == "" {
		return fmt.Sprintf("%s failed with state %s", e.Op, e.State)
	}
	return e.Record.Message
}

func configError(msg string) error {
	return fmt.Errorf("%w: %s", ErrConfig, msg)
}
