package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"studiobook/internal/availability"
	"studiobook/internal/config"
	"studiobook/internal/events"
	"studiobook/internal/metrics"
	"studiobook/internal/model"
	"studiobook/internal/notify"
	"studiobook/internal/store"
	"studiobook/internal/validation"
)

// SubmitRequest is a staff member's request for one slot.
type SubmitRequest struct {
	Room  string `json:"room" validate:"required"`
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
	Time  string `json:"time" validate:"required"`
	Title string `json:"title" validate:"required,max=200"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	StaffID   string
	StaffName string
	Status    model.Status
}

type Options struct {
	Bus           *events.EventBus
	Notifier      notify.Notifier
	NotifyTimeout time.Duration
	Now           func() time.Time
}

// Service owns the booking collection through a store.
type Service struct {
	store   store.BookingStore
	catalog atomic.Pointer[config.Catalog]

	bus           *events.EventBus
	notifier      notify.Notifier
	notifyTimeout time.Duration
	now           func() time.Time

	// submitMu makes check-and-create atomic within this process.
	submitMu sync.Mutex
	inflight sync.WaitGroup
	logger   zerolog.Logger
}

func NewService(st store.BookingStore, catalog *config.Catalog, opts Options, logger *zerolog.Logger) *Service {
	if catalog == nil {
		catalog = config.DefaultCatalog()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewEventBus()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Service{
		store:         st,
		bus:           opts.Bus,
		notifier:      opts.Notifier,
		notifyTimeout: opts.NotifyTimeout,
		now:           opts.Now,
		logger:        logger.With().Str("component", "booking").Logger(),
	}
	s.catalog.Store(catalog)
	return s
}

// SetCatalog swaps the room and slot catalog used by later calls.
func (s *Service) SetCatalog(c *config.Catalog) {
	if c == nil {
		return
	}
	s.catalog.Store(c)
	s.logger.Info().Str("catalog", c.String()).Msg("Catalog updated")
}

func (s *Service) Catalog() *config.Catalog {
	return s.catalog.Load()
}

// Submit validates req and stores it as a pending booking owned by user.
func (s *Service) Submit(ctx context.Context, req SubmitRequest, user model.User) (model.Booking, error) {
	req.Room = strings.TrimSpace(req.Room)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	req.Title = strings.TrimSpace(req.Title)

	if err := s.checkRequest(req); err != nil {
		metrics.IncBookingSubmitted("invalid")
		return model.Booking{}, err
	}

	candidate := model.Booking{
		Room:      req.Room,
		Date:      req.Date,
		Time:      req.Time,
		Title:     req.Title,
		StaffName: user.Name,
		StaffID:   user.ID,
	}

	s.submitMu.Lock()
	created, err := s.create(ctx, candidate)
	s.submitMu.Unlock()
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			metrics.IncBookingSubmitted("conflict")
		}
		return model.Booking{}, err
	}

	metrics.IncBookingSubmitted("created")
	s.logger.Info().
		Str("id", created.ID).
		Str("room", created.Room).
		Str("date", created.Date).
		Str("time", created.Time).
		Str("staff", created.StaffName).
		Msg("Booking submitted")

	s.publish(events.BookingCreated, created)
	s.notifyCreated(created)
	return created, nil
}

func (s *Service) checkRequest(req SubmitRequest) error {
	if err := validation.Struct(&req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	catalog := s.Catalog()
	room := catalog.Room(req.Room)
	if room == nil || room.Disabled {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, req.Room)
	}
	if !catalog.HasTime(req.Time) {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, req.Time)
	}

	day, err := time.Parse(availability.DateLayout, req.Date)
	if err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if closed, reason := catalog.ClosedOn(day); closed {
		return fmt.Errorf("%w: %s (%s)", ErrRoomClosed, req.Date, reason)
	}
	return nil
}

// create runs the availability check and stores the booking. Caller holds submitMu.
func (s *Service) create(ctx context.Context, candidate model.Booking) (model.Booking, error) {
	bookings, err := s.store.List(ctx)
	if err != nil {
		return model.Booking{}, persistence("list bookings", err)
	}

	b, err := Prepare(bookings, candidate, s.now())
	if err != nil {
		return model.Booking{}, err
	}

	created, err := s.store.Create(ctx, b)
	switch {
	case errors.Is(err, store.ErrSlotTaken):
		return model.Booking{}, fmt.Errorf("%w: %s %s %s", ErrSlotConflict, b.Room, b.Date, b.Time)
	case err != nil:
		return model.Booking{}, persistence("create booking", err)
	}
	return created, nil
}

// Approve moves a pending booking to APPROVED.
func (s *Service) Approve(ctx context.Context, id string) (model.Booking, error) {
	return s.transition(ctx, id, model.StatusApproved)
}

// Reject moves a pending booking to REJECTED, freeing its slot.
func (s *Service) Reject(ctx context.Context, id string) (model.Booking, error) {
	return s.transition(ctx, id, model.StatusRejected)
}

// TransitionStatus applies a manager decision given as a status.
func (s *Service) TransitionStatus(ctx context.Context, id string, to model.Status) (model.Booking, error) {
	return s.transition(ctx, id, to)
}

func (s *Service) transition(ctx context.Context, id string, to model.Status) (model.Booking, error) {
	updated, err := s.update(ctx, id, func(b model.Booking) (model.BookingPatch, error) {
		if _, err := Transition(b, to); err != nil {
			return model.BookingPatch{}, err
		}
		return model.BookingPatch{Status: &to, Version: b.Version}, nil
	})
	if err != nil {
		return model.Booking{}, err
	}

	decision := strings.ToLower(string(to))
	metrics.IncManagerDecision(decision)
	s.logger.Info().Str("id", id).Str("status", string(to)).Msg("Booking decided")

	eventType := events.BookingApproved
	if to == model.StatusRejected {
		eventType = events.BookingRejected
	}
	s.publish(eventType, updated)
	return updated, nil
}

// Report records the viewer count and sales amount of an approved session.
func (s *Service) Report(ctx context.Context, id string, viewers int, sales float64) (model.Booking, error) {
	updated, err := s.update(ctx, id, func(b model.Booking) (model.BookingPatch, error) {
		if _, err := ApplyReport(b, viewers, sales); err != nil {
			return model.BookingPatch{}, err
		}
		return model.BookingPatch{ActualViewers: &viewers, SalesAmount: &sales, Version: b.Version}, nil
	})
	if err != nil {
		return model.Booking{}, err
	}

	metrics.IncStatsReported()
	s.logger.Info().Str("id", id).Int("viewers", viewers).Float64("sales", sales).Msg("Stats reported")
	s.publish(events.BookingReported, updated)
	return updated, nil
}

// update loads a booking, asks plan for a patch and writes it with a version check.
// When another writer got there first the booking is re-read and plan is asked again,
// so the caller sees the error that fits the booking's new state.
func (s *Service) update(ctx context.Context, id string, plan func(model.Booking) (model.BookingPatch, error)) (model.Booking, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}

	patch, err := plan(current)
	if err != nil {
		return model.Booking{}, err
	}

	updated, err := s.store.Update(ctx, id, patch)
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, store.ErrNotFound):
		return model.Booking{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case errors.Is(err, store.ErrSlotTaken):
		return model.Booking{}, fmt.Errorf("%w: %s", ErrSlotConflict, id)
	case !errors.Is(err, store.ErrVersionConflict):
		return model.Booking{}, persistence("update booking", err)
	}

	fresh, err := s.Get(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if _, err := plan(fresh); err != nil {
		return model.Booking{}, err
	}
	return model.Booking{}, fmt.Errorf("%w: booking %s changed concurrently", ErrInvalidTransition, id)
}

func (s *Service) Get(ctx context.Context, id string) (model.Booking, error) {
	b, err := s.store.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return model.Booking{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case err != nil:
		return model.Booking{}, persistence("get booking", err)
	}
	return b, nil
}

// List returns the bookings matching f, newest date first.
// A staff filter matches the staff id or, for older records, the staff name.
func (s *Service) List(ctx context.Context, f Filter) ([]model.Booking, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, persistence("list bookings", err)
	}

	result := make([]model.Booking, 0, len(all))
	for _, b := range all {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.StaffID != "" || f.StaffName != "" {
			byID := f.StaffID != "" && b.StaffID == f.StaffID
			byName := f.StaffName != "" && b.StaffName == f.StaffName
			if !byID && !byName {
				continue
			}
		}
		result = append(result, b)
	}

	slices.SortStableFunc(result, func(a, b model.Booking) int {
		if c := strings.Compare(b.Date, a.Date); c != 0 {
			return c
		}
		return strings.Compare(b.Time, a.Time)
	})
	return result, nil
}

// All returns every booking in creation order.
func (s *Service) All(ctx context.Context) ([]model.Booking, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, persistence("list bookings", err)
	}
	return all, nil
}

// IsSlotAvailable answers for the current state of the store.
func (s *Service) IsSlotAvailable(ctx context.Context, room, date, slot string) (bool, error) {
	all, err := s.All(ctx)
	if err != nil {
		return false, err
	}
	return availability.IsSlotAvailable(all, room, date, slot), nil
}

// Slots lists every catalog slot of room on date with its occupancy.
func (s *Service) Slots(ctx context.Context, room, date string) ([]availability.SlotState, error) {
	catalog := s.Catalog()
	if r := catalog.Room(room); r == nil || r.Disabled {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, room)
	}
	if _, err := time.Parse(availability.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}

	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return availability.SlotsForDate(all, room, date, catalog.Times), nil
}

// Calendar returns per-day occupancy of room for one month.
func (s *Service) Calendar(ctx context.Context, room string, year int, month time.Month) ([]availability.DayOccupancy, error) {
	catalog := s.Catalog()
	if r := catalog.Room(room); r == nil || r.Disabled {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, room)
	}
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: month out of range", ErrInvalidInput)
	}

	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return availability.MonthCalendar(all, room, year, month, catalog.SlotsPerDay()), nil
}

// Wait blocks until every notification started so far has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) publish(eventType string, b model.Booking) {
	if err := s.bus.Publish(events.Event{Type: eventType, Booking: &b}); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Str("id", b.ID).Msg("Event handler failed")
	}
}

// notifyCreated tells managers about b in the background. Failures are only logged.
func (s *Service) notifyCreated(b model.Booking) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		if err := s.notifier.BookingCreated(ctx, b); err != nil {
			s.logger.Warn().Err(err).Str("id", b.ID).Msg("Failed to send booking notification")
		}
	}()
}
