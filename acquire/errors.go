package acquire

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy means the instrument is already held by a capture or live
	// session. Requests are rejected rather than queued.
	ErrBusy = errors.New("acquire: instrument busy")
	// ErrTimeout means the trigger did not complete within the request's
	// timeout. No frames are emitted.
	ErrTimeout = errors.New("acquire: trigger timeout")
	// ErrIncomplete means at least one channel returned a short or malformed
	// record; the whole capture is discarded.
	ErrIncomplete = errors.New("acquire: incomplete record")
	// ErrStopped means the live session has already ended.
	ErrStopped = errors.New("acquire: session stopped")
)

// ConfigError reports an invalid capture request or live configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("acquire: invalid config: %s: %s", e.Field, e.Reason)
}

// IsConfigError reports whether err is a configuration problem.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
