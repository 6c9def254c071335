// Package errs defines the error taxonomy the sync kernel surfaces to
// callers. Validation errors are sentinels so call sites can branch with
// errors.Is; storage and transport errors carry enough context to log
// without requiring a second typed hierarchy.
package errs

import "errors"

// Validation errors. Never retried; returned directly to the caller.
var (
	ErrBadArgument    = errors.New("bad argument")
	ErrNodeMissing    = errors.New("node missing")
	ErrNotAFolder     = errors.New("not a folder")
	ErrCycleForbidden = errors.New("cycle forbidden")
	ErrDuplicateID    = errors.New("duplicate id")
)

// Storage errors. The in-memory tree stays authoritative; a failed store
// write is not retried.
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrVersionMismatch  = errors.New("schema version mismatch")
)

// Transport errors. Handled by the event stream state machine or the
// scheduler's retry table; never surfaced as a public call failure
// beyond syncOperationImmediately, which just returns false.
var (
	ErrStreamError       = errors.New("event stream error")
	ErrOutboundTimeout   = errors.New("outbound call timed out")
	ErrOutboundHTTPError = errors.New("outbound call failed")
)

// Wrap adds msg to sentinel while preserving errors.Is(result, sentinel)
// against the sentinels above.
func Wrap(sentinel error, msg string) error {
	if msg == "" {
		return sentinel
	}
	return &wrapped{sentinel: sentinel, msg: msg}
}

type wrapped struct {
	sentinel error
	msg      string
}

func (w *wrapped) Error() string { return w.msg + ": " + w.sentinel.Error() }
func (w *wrapped) Unwrap() error { return w.sentinel }

// IsValidation reports whether err is one of the validation sentinels.
func IsValidation(err error) bool {
	for _, s := range []error{ErrBadArgument, ErrNodeMissing, ErrNotAFolder, ErrCycleForbidden, ErrDuplicateID} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
