package events

import (
	"github.com/rs/zerolog"
)

// DomainEvents are the booking lifecycle event types.
var DomainEvents = []string{BookingCreated, BookingApproved, BookingRejected, BookingReported}

// LogActivity writes one log line for every lifecycle event on bus.
func LogActivity(bus *EventBus, logger *zerolog.Logger) (unsubscribe func()) {
	log := logger.With().Str("component", "activity").Logger()

	var unsubs []func()
	for _, eventType := range DomainEvents {
		unsubs = append(unsubs, bus.Subscribe(eventType, func(e Event) error {
			entry := log.Info().Str("event", e.Type)
			if b := e.Booking; b != nil {
				entry = entry.
					Str("id", b.ID).
					Str("room", b.Room).
					Str("date", b.Date).
					Str("time", b.Time).
					Str("status", string(b.Status)).
					Str("staff", b.StaffName)
			}
			entry.Msg("Booking activity")
			return nil
		}))
	}

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
