// Package instrument talks SCPI to a bench oscilloscope.
//
// Channel is the request/response primitive the workers consume. Scope layers
// the instrument-specific command vocabulary and record decoding on top of it,
// so the acquisition workers never format SCPI themselves.
package instrument

import (
	"errors"
	"fmt"
)

// Channel is a synchronous request/response link to the instrument. Both
// calls may fail transiently; callers decide whether to retry.
type Channel interface {
	// Send writes a command and returns the textual response. Commands that
	// produce no response return an empty string.
	Send(cmd string) (string, error)
	// QueryBinary writes a query and returns the raw binary payload with any
	// IEEE 488.2 definite-length block header already stripped.
	QueryBinary(cmd string) ([]byte, error)
	// Close releases the underlying transport.
	Close() error
}

// TransportError marks a transient channel fault. Workers retry these up to
// a bounded count; anything else is surfaced as-is.
type TransportError struct {
	Op  string
	Cmd string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("instrument: %s %q: %v", e.Op, e.Cmd, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable transport fault.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

var (
	// ErrMalformedBlock means a binary response did not carry a valid
	// IEEE 488.2 definite-length block header.
	ErrMalformedBlock = errors.New("instrument: malformed definite-length block")
	// ErrShortRecord means a waveform record carried fewer samples than the
	// header or the request promised.
	ErrShortRecord = errors.New("instrument: short waveform record")
)
