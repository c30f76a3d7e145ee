package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable indicates the backing queue storage cannot be
	// reached or created.
	ErrStoreUnavailable = errors.New("queue store unavailable")

	// ErrInvalidJob indicates a job failed the payload-variant invariant.
	ErrInvalidJob = errors.New("invalid job")
)

// StoreError wraps store failures with the operation that produced them.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

// IsStoreUnavailable checks if an error indicates unreachable queue storage.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsInvalidJob checks if an error indicates a malformed job payload.
func IsInvalidJob(err error) bool {
	return errors.Is(err, ErrInvalidJob)
}
