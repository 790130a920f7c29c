package plex

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken indicates the server rejected the configured token.
	ErrInvalidToken = errors.New("plex: invalid token")

	// ErrSessionGone indicates the part a command targeted no longer exists,
	// typically because playback stopped between polls.
	ErrSessionGone = errors.New("plex: session gone")
)

// TransientError wraps failures worth retrying on a later poll: network
// errors, timeouts and 5xx responses.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("plex: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable Plex failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}
