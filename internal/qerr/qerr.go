// Package qerr defines the small, closed error taxonomy from spec §7 that
// is allowed to cross the protocol/driver boundary. Everything else
// (transient loss, corruption) is recovered internally and never
// surfaces as a Go error. Modeled on the teacher's typed error-code
// pattern (internal/qerr.ErrorCode), adapted from a wire error-code enum
// to a small set of sentinel values since this domain has nothing to put
// on the wire.
package qerr

import (
	"errors"
	"fmt"
)

// ConfigInvalid wraps a scenario parameter that is out of range. The CLI
// maps this to exit code 2.
type ConfigInvalid struct {
	Field  string
	Reason string
}

func (e *ConfigInvalid) Error() string {
	return fmt.Sprintf("config invalid: %s: %s", e.Field, e.Reason)
}

// NewConfigInvalid builds a ConfigInvalid for the named field.
func NewConfigInvalid(field, reason string) error {
	return &ConfigInvalid{Field: field, Reason: reason}
}

// RunTimeout indicates a single run exceeded its safety bound (spec §4.5,
// §7). It is recorded by the aggregator and excluded from means, never
// treated as a program error.
type RunTimeout struct {
	Elapsed string
}

func (e *RunTimeout) Error() string {
	return fmt.Sprintf("run exceeded safety bound after %s of simulated time", e.Elapsed)
}

// NewRunTimeout builds a RunTimeout error.
func NewRunTimeout(elapsed string) error {
	return &RunTimeout{Elapsed: elapsed}
}

// IsConfigInvalid reports whether err is (or wraps) a ConfigInvalid.
func IsConfigInvalid(err error) bool {
	var target *ConfigInvalid
	return errors.As(err, &target)
}

// IsRunTimeout reports whether err is (or wraps) a RunTimeout.
func IsRunTimeout(err error) bool {
	var target *RunTimeout
	return errors.As(err, &target)
}
