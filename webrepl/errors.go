package webrepl

import "fmt"

// Error represents a WebREPL protocol error.
type Error struct {
	// Type is the error type
	Type ErrorType

	// Message is a human-readable error message
	Message string

	// State is the transfer state the error occurred in
	// (StateIdle if not applicable)
	State TransferState
}

// ErrorType categorizes WebREPL errors.
type ErrorType int

const (
	// ErrInvalidFrame indicates a truncated response or a signature mismatch
	ErrInvalidFrame ErrorType = iota

	// ErrChunkMismatch indicates a chunk whose declared length disagrees
	// with the actual message size
	ErrChunkMismatch

	// ErrRemoteRejected indicates a nonzero status from the device
	ErrRemoteRejected

	// ErrFilenameTooLong indicates a filename over the 64-byte field size
	ErrFilenameTooLong

	// ErrSizeOverflow indicates a file too large for the 32-bit size field
	ErrSizeOverflow

	// ErrBusy indicates a transfer was requested while one is in flight
	ErrBusy

	// ErrAccessDenied indicates the password handshake failed
	ErrAccessDenied

	// ErrClosed indicates the connection closed during a transfer
	ErrClosed
)

func (e *Error) Error() string {
	if e.State != StateIdle {
		return fmt.Sprintf("webrepl %s: %s (state: %s)", e.Type, e.Message, e.State)
	}
	return fmt.Sprintf("webrepl %s: %s", e.Type, e.Message)
}

func (t ErrorType) String() string {
	switch t {
	case ErrInvalidFrame:
		return "invalid frame"
	case ErrChunkMismatch:
		return "chunk length mismatch"
	case ErrRemoteRejected:
		return "remote rejected"
	case ErrFilenameTooLong:
		return "filename too long"
	case ErrSizeOverflow:
		return "size overflow"
	case ErrBusy:
		return "transfer in progress"
	case ErrAccessDenied:
		return "access denied"
	case ErrClosed:
		return "connection closed"
	default:
		return "unknown error"
	}
}

// NewError creates a new WebREPL error.
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		State:   StateIdle,
	}
}

// NewStateError creates a new WebREPL error with transfer state information.
func NewStateError(errType ErrorType, message string, state TransferState) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		State:   state,
	}
}

// IsRemoteRejected checks if an error is a device rejection (nonzero status).
func IsRemoteRejected(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrRemoteRejected
	}
	return false
}

// IsBusy checks if an error indicates a transfer was already in flight.
func IsBusy(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrBusy
	}
	return false
}

// IsAccessDenied checks if an error indicates a failed password handshake.
func IsAccessDenied(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrAccessDenied
	}
	return false
}
