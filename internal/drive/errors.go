package drive

import (
	"errors"
	"fmt"
)

// Sentinel errors for provider failure classification.
// Use errors.Is(err, drive.ErrConflict) to check.
var (
	ErrAuth           = errors.New("drive: authentication rejected")
	ErrNotFound       = errors.New("drive: not found")
	ErrPathInvalid    = errors.New("drive: path component is a file")
	ErrConflict       = errors.New("drive: competing operation in flight")
	ErrRateLimit      = errors.New("drive: rate limited")
	ErrNetwork        = errors.New("drive: network failure")
	ErrQuotaExceeded  = errors.New("drive: storage quota exceeded")
	ErrBatchLimit     = errors.New("drive: batch size limit exceeded")
	ErrPermission     = errors.New("drive: permission denied")
	ErrTransferFailed = errors.New("drive: transfer failed")
	ErrDeleteFailed   = errors.New("drive: delete failed")
	ErrUnknown        = errors.New("drive: provider error")
)

// Error wraps a sentinel with the provider tag, the raw provider code, and
// the message body for debugging. Adapters attach the structured code so the
// error policy can switch on kind instead of matching message substrings.
type Error struct {
	Provider string
	Op       string
	Code     int
	Message  string
	Err      error // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: code %d: %s", e.Provider, e.Op, e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s: code %d", e.Provider, e.Op, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified provider error.
func NewError(provider, op string, code int, message string, sentinel error) *Error {
	if sentinel == nil {
		sentinel = ErrUnknown
	}

	return &Error{Provider: provider, Op: op, Code: code, Message: message, Err: sentinel}
}
