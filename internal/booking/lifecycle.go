// Package booking implements the booking lifecycle: submission against the
// availability rules, manager decisions and the post-session stats report.
package booking

import (
	"fmt"
	"math"
	"slices"
	"time"

	"studiobook/internal/availability"
	"studiobook/internal/model"
)

// transitions lists the statuses each status may move to.
var transitions = map[model.Status][]model.Status{
	model.StatusPending:  {model.StatusApproved, model.StatusRejected},
	model.StatusApproved: {},
	model.StatusRejected: {},
}

// CanTransition checks if a status change is allowed.
func CanTransition(from, to model.Status) bool {
	return slices.Contains(transitions[from], to)
}

// Prepare turns a candidate into a new pending booking, or fails with
// ErrSlotConflict if the slot is already held in bookings.
func Prepare(bookings []model.Booking, candidate model.Booking, now time.Time) (model.Booking, error) {
	if !availability.IsSlotAvailable(bookings, candidate.Room, candidate.Date, candidate.Time) {
		return model.Booking{}, fmt.Errorf("%w: %s %s %s", ErrSlotConflict, candidate.Room, candidate.Date, candidate.Time)
	}

	b := candidate
	b.Status = model.StatusPending
	b.ActualViewers = nil
	b.SalesAmount = nil
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	return b, nil
}

// Transition returns b moved to status to.
func Transition(b model.Booking, to model.Status) (model.Booking, error) {
	if !to.Valid() {
		return model.Booking{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !CanTransition(b.Status, to) {
		return model.Booking{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}
	b.Status = to
	return b, nil
}

// ApplyReport records post-session stats on an approved booking. Stats can be reported once.
func ApplyReport(b model.Booking, viewers int, sales float64) (model.Booking, error) {
	if b.Status != model.StatusApproved {
		return model.Booking{}, fmt.Errorf("%w: booking is %s", ErrInvalidTransition, b.Status)
	}
	if b.Reported() {
		return model.Booking{}, ErrAlreadyReported
	}
	if viewers < 0 {
		return model.Booking{}, fmt.Errorf("%w: viewers must not be negative", ErrInvalidReport)
	}
	if sales < 0 || math.IsNaN(sales) || math.IsInf(sales, 0) {
		return model.Booking{}, fmt.Errorf("%w: sales amount must be a non-negative number", ErrInvalidReport)
	}

	b = b.Clone()
	b.ActualViewers = &viewers
	b.SalesAmount = &sales
	return b, nil
}
