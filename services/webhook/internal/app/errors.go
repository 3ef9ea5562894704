package app

import "errors"

var (
	// ErrMissingUser indicates an inbound event without a sender.
	ErrMissingUser = errors.New("inbound event has no user id")
	// ErrUserNotFound indicates no session exists for the requested user.
	ErrUserNotFound = errors.New("user not found")
	// ErrJobNotFound indicates an unknown queue job id.
	ErrJobNotFound = errors.New("job not found")
)

// committedError wraps a failure that happened after a photo was stored or a
// job was enqueued. Redelivering the message would repeat that work.
type committedError struct{ err error }

func (c committedError) Error() string { return c.err.Error() }
func (c committedError) Unwrap() error { return c.err }

func committed(err error) error {
	if err == nil {
		return nil
	}
	return committedError{err: err}
}
