package booking

import (
	"errors"
	"fmt"
)

var (
	ErrSlotConflict      = errors.New("slot already booked")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("booking not found")
	ErrAlreadyReported   = errors.New("stats already reported")
	ErrInvalidReport     = errors.New("invalid stats report")
	ErrUnknownRoom       = errors.New("unknown room")
	ErrUnknownSlot       = errors.New("unknown slot time")
	ErrRoomClosed        = errors.New("studio closed on this date")
	ErrInvalidInput      = errors.New("invalid input")
)

// PersistenceError wraps a storage failure. Nothing was changed when it is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
