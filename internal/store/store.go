// Package store persists bookings and team members behind one interface with
// interchangeable backends. Every backend enforces that a (room, date, time)
// slot has at most one pending or approved booking.
package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"studiobook/internal/model"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrSlotTaken       = errors.New("slot already taken")
	ErrVersionConflict = errors.New("concurrent modification")
	ErrUsernameTaken   = errors.New("username already taken")
)

// BookingStore is the booking collection.
type BookingStore interface {
	// List returns every booking in creation order.
	List(ctx context.Context) ([]model.Booking, error)
	Get(ctx context.Context, id string) (model.Booking, error)
	// Create assigns an ID and stores b. It fails with ErrSlotTaken when b
	// occupies a slot another pending or approved booking already holds.
	Create(ctx context.Context, b model.Booking) (model.Booking, error)
	// Update applies patch when patch.Version matches the stored version.
	Update(ctx context.Context, id string, patch model.BookingPatch) (model.Booking, error)
	// Subscribe calls fn with the current collection and again after every change,
	// until cancel is called or ctx is done. fn must not write to the store.
	Subscribe(ctx context.Context, fn func([]model.Booking)) (cancel func(), err error)
}

// UserStore is the team directory.
type UserStore interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	CreateUser(ctx context.Context, u model.User) (model.User, error)
}

type Store interface {
	BookingStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}

// userRecord is the persisted form of model.User; unlike the API form it keeps the hash.
type userRecord struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"passwordHash"`
	Role         model.Role `json:"role"`
	Name         string     `json:"name"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func toRecord(u model.User) userRecord {
	return userRecord{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Name:         u.Name,
		CreatedAt:    u.CreatedAt,
	}
}

func (r userRecord) user() model.User {
	return model.User{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		Name:         r.Name,
		CreatedAt:    r.CreatedAt,
	}
}

// prepareBooking fills the fields a store owns on creation.
func prepareBooking(b model.Booking, now time.Time) model.Booking {
	b = b.Clone()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.CreatedAt
	if b.Version == 0 {
		b.Version = 1
	}
	return b
}

func prepareUser(u model.User, now time.Time) model.User {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u
}

func cloneAll(bookings []model.Booking) []model.Booking {
	out := make([]model.Booking, len(bookings))
	for i := range bookings {
		out[i] = bookings[i].Clone()
	}
	return out
}

// sortByCreation orders bookings oldest first, breaking ties by ID.
func sortByCreation(bookings []model.Booking) {
	slices.SortStableFunc(bookings, func(a, b model.Booking) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func sortUsers(users []model.User) {
	slices.SortStableFunc(users, func(a, b model.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Username, b.Username)
	})
}
