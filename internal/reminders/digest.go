// Package reminders sends managers a daily digest of bookings that need attention.
package reminders

import (
	"context"
	"fmt"
	"strings"

	"studiobook/internal/model"
)

// Broadcaster delivers a text message to every manager channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) error
}

// Source lists the current bookings.
type Source interface {
	All(ctx context.Context) ([]model.Booking, error)
}

// Digest is what one daily run found.
type Digest struct {
	Date string
	// Pending bookings still waiting for a manager decision.
	Pending []model.Booking
	// Unreported approved sessions dated before Date.
	Unreported []model.Booking
}

func (d Digest) Empty() bool {
	return len(d.Pending) == 0 && len(d.Unreported) == 0
}

// Collect builds the digest for today (YYYY-MM-DD).
func Collect(bookings []model.Booking, today string) Digest {
	d := Digest{Date: today}
	for _, b := range bookings {
		switch {
		case b.Status == model.StatusPending:
			d.Pending = append(d.Pending, b)
		case b.Status == model.StatusApproved && b.Date < today && !b.Reported():
			d.Unreported = append(d.Unreported, b)
		}
	}
	return d
}

// Format renders the digest as a chat message.
func Format(d Digest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Daily studio digest %s\n", d.Date)

	if len(d.Pending) > 0 {
		fmt.Fprintf(&sb, "\nAwaiting approval (%d):\n", len(d.Pending))
		for _, b := range d.Pending {
			fmt.Fprintf(&sb, "- %s %s %s: %s (%s)\n", b.Date, b.Time, b.Room, b.Title, b.StaffName)
		}
	}
	if len(d.Unreported) > 0 {
		fmt.Fprintf(&sb, "\nStats not reported (%d):\n", len(d.Unreported))
		for _, b := range d.Unreported {
			fmt.Fprintf(&sb, "- %s %s %s: %s (%s)\n", b.Date, b.Time, b.Room, b.Title, b.StaffName)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
