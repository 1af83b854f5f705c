// Package hints marks errors that describe something worth reporting but not
// worth failing for: an ambiguous rename, a trash folder on another device, a
// hook phase with nothing to run.
//
// Producers wrap such errors with New or Wrap. Consumers test for the marker
// with IsHint and never need the producer's sentinel values, so the check
// works across package boundaries and through %w wrapping.
package hints

import "errors"

type hintErr struct {
	err error
}

func (h *hintErr) Error() string {
	if h == nil || h.err == nil {
		return "unknown hint"
	}
	return h.err.Error()
}
func (h *hintErr) IsHint() bool  { return true }
func (h *hintErr) Unwrap() error { return h.err }

// New creates a hint with the given message.
func New(msg string) error {
	return &hintErr{err: errors.New(msg)}
}

// Wrap marks err as a hint. Wrap(nil) is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &hintErr{err: err}
}

// IsHint reports whether any error in err's chain is a hint.
func IsHint(err error) bool {
	var h interface{ IsHint() bool }
	return errors.As(err, &h) && h.IsHint()
}

// Is reports whether err is a hint and matches target.
func Is(err, target error) bool {
	return IsHint(err) && errors.Is(err, target)
}
