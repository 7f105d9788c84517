// Package notify delivers best-effort messages about bookings to managers.
// Nothing in here may block or fail a booking operation; callers log errors and move on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"studiobook/internal/metrics"
	"studiobook/internal/model"
)

// Notifier is told about domain events worth a message.
type Notifier interface {
	BookingCreated(ctx context.Context, b model.Booking) error
}

// Sender delivers a plain text message over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// ErrDisabled is returned by senders that are not configured.
var ErrDisabled = errors.New("notification channel disabled")

// FormatBookingCreated renders the message sent when a booking is requested.
func FormatBookingCreated(b model.Booking) string {
	var sb strings.Builder
	sb.WriteString("New Booking Request!\n")
	fmt.Fprintf(&sb, "Title: %s\n", b.Title)
	fmt.Fprintf(&sb, "Room: %s\n", b.Room)
	fmt.Fprintf(&sb, "Date: %s\n", b.Date)
	fmt.Fprintf(&sb, "Time: %s\n", b.Time)
	fmt.Fprintf(&sb, "By: %s", b.StaffName)
	return sb.String()
}

// Multi sends every message through all senders and joins their errors.
type Multi struct {
	senders []Sender
	logger  zerolog.Logger
}

func NewMulti(logger *zerolog.Logger, senders ...Sender) *Multi {
	return &Multi{
		senders: senders,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

func (m *Multi) BookingCreated(ctx context.Context, b model.Booking) error {
	return m.Broadcast(ctx, FormatBookingCreated(b))
}

// Broadcast sends text through every sender. A disabled sender is skipped silently.
func (m *Multi) Broadcast(ctx context.Context, text string) error {
	var errs []error
	for _, s := range m.senders {
		err := s.Send(ctx, text)
		switch {
		case errors.Is(err, ErrDisabled):
			m.logger.Debug().Str("channel", s.Name()).Msg("Notification skipped: channel not configured")
		case err != nil:
			metrics.IncNotification(s.Name(), "failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		default:
			metrics.IncNotification(s.Name(), "sent")
		}
	}
	return errors.Join(errs...)
}

// Len is the number of senders.
func (m *Multi) Len() int {
	return len(m.senders)
}

// Nop discards everything.
type Nop struct{}

func (Nop) BookingCreated(context.Context, model.Booking) error { return nil }
