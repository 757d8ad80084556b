package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for connection and server conditions.
var (
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrConnectionNotFound is returned when a connection ID does not exist.
	ErrConnectionNotFound = errors.New("server: connection not found")

	// ErrMaxConnectionsReached is returned when the connection limit is reached.
	ErrMaxConnectionsReached = errors.New("server: max connections reached")

	// ErrManagerClosed is returned by Accept after Shutdown.
	ErrManagerClosed = errors.New("server: connection manager shut down")
)

// ConnectionError wraps an error with connection context.
type ConnectionError struct {
	ConnID string
	Op     string // Operation that failed
	Err    error  // Underlying error
}

// Error returns the error message with connection context.
func (e *ConnectionError) Error() string {
	if e.ConnID == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: connection %s: %s: %v", e.ConnID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(connID, op string, err error) *ConnectionError {
	return &ConnectionError{
		ConnID: connID,
		Op:     op,
		Err:    err,
	}
}
