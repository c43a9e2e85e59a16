package eth

import (
	"errors"
	"fmt"
)

var (
	// Unknown network, missing secret, missing or malformed ABI. Never retried.
	ErrConfiguration = errors.New("configuration error")

	// Endpoint unreachable or failing the capability probe
	ErrConnection = errors.New("connection failed")

	// Fact absent in the searched block window. Terminal for the call.
	ErrNotFound = errors.New("not found")

	// Malformed log or return tuple. Never retried, never defaulted.
	ErrDecode = errors.New("decode error")
)

type ConnectionError struct {
	Network  int64
	Attempts int
	Err      error
}

func (self *ConnectionError) Error() string {
	return fmt.Sprintf("could not connect to network %d after %d attempts: %v", self.Network, self.Attempts, self.Err)
}

func (self *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, self.Err}
}

// Failures of independent operations reported together
type MultiError struct {
	Errs []error
}

// JoinErrors drops nil errors. Returns nil if nothing failed.
func JoinErrors(errs ...error) error {
	out := &MultiError{}
	for _, err := range errs {
		if err != nil {
			out.Errs = append(out.Errs, err)
		}
	}
	if len(out.Errs) == 0 {
		return nil
	}
	return out
}

func (self *MultiError) Error() string {
	return errors.Join(self.Errs...).Error()
}

func (self *MultiError) Unwrap() []error {
	return self.Errs
}

// IsRetryable tells whether repeating the operation may give a different result.
// Joined failures are retryable if any of them is.
func IsRetryable(err error) bool {
	var multi *MultiError
	if errors.As(err, &multi) {
		for _, err := range multi.Errs {
			if IsRetryable(err) {
				return true
			}
		}
		return false
	}

	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDecode):
		return false
	}
	return true
}

func configurationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func decodeError(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %v", ErrDecode, fmt.Sprintf(format, args...), err)
}
