package store

import (
	"context"
	"sync"

	"studiobook/internal/events"
	"studiobook/internal/model"
)

// feed fans collection snapshots out to in-process subscribers.
type feed struct {
	bus *events.EventBus
	// mu orders publications so the last snapshot delivered is the newest.
	mu sync.Mutex
}

func newFeed(bus *events.EventBus) *feed {
	if bus == nil {
		bus = events.NewEventBus()
	}
	return &feed{bus: bus}
}

func (f *feed) subscribe(ctx context.Context, initial []model.Booking, fn func([]model.Booking)) func() {
	fn(initial)

	unsubscribe := f.bus.Subscribe(events.BookingsChanged, func(e events.Event) error {
		fn(cloneAll(e.Snapshot))
		return nil
	})
	stop := context.AfterFunc(ctx, unsubscribe)
	return func() {
		stop()
		unsubscribe()
	}
}

// publish reads the collection with load and hands it to every subscriber.
func (f *feed) publish(ctx context.Context, load func(context.Context) ([]model.Booking, error)) error {
	if f.bus.Subscribers(events.BookingsChanged) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot, err := load(ctx)
	if err != nil {
		return err
	}
	return f.bus.Publish(events.Event{Type: events.BookingsChanged, Snapshot: snapshot})
}
