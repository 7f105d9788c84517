package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studiobook/internal/events"
	"studiobook/internal/model"
)

// MemoryStore keeps everything in process memory. When path is set, every
// write is also saved to a JSON file that is read back on start.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings []model.Booking
	users    []userRecord

	path   string
	feed   *feed
	now    func() time.Time
	logger zerolog.Logger
}

type memoryFile struct {
	Bookings []model.Booking `json:"bookings"`
	Users    []userRecord    `json:"users"`
}

// NewMemoryStore creates a store persisted to path, or a purely in-memory one when path is empty.
func NewMemoryStore(path string, bus *events.EventBus, logger *zerolog.Logger) (*MemoryStore, error) {
	s := &MemoryStore{
		path:   path,
		feed:   newFeed(bus),
		now:    time.Now,
		logger: logger.With().Str("component", "memory_store").Logger(),
	}
	if path == "" {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read storage file: %w", err)
	}

	var file memoryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse storage file: %w", err)
	}
	s.bookings = file.Bookings
	s.users = file.Users
	sortByCreation(s.bookings)

	s.logger.Info().Str("path", path).Int("bookings", len(s.bookings)).Msg("Storage file loaded")
	return s, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.bookings), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.bookings[i].Clone(), nil
	}
	return model.Booking{}, ErrNotFound
}

func (s *MemoryStore) Create(ctx context.Context, b model.Booking) (model.Booking, error) {
	s.mu.Lock()
	b = prepareBooking(b, s.now())
	if b.Status.Occupies() && s.occupied(b.Room, b.Date, b.Time, "") {
		s.mu.Unlock()
		return model.Booking{}, ErrSlotTaken
	}

	s.bookings = append(s.bookings, b)
	if err := s.saveLocked(); err != nil {
		s.bookings = s.bookings[:len(s.bookings)-1]
		s.mu.Unlock()
		return model.Booking{}, err
	}
	s.mu.Unlock()

	s.changed(ctx)
	return b.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, patch model.BookingPatch) (model.Booking, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return model.Booking{}, ErrNotFound
	}

	current := s.bookings[i]
	if current.Version != patch.Version {
		s.mu.Unlock()
		return model.Booking{}, ErrVersionConflict
	}

	next := patch.Apply(current, s.now().UTC())
	if next.Status.Occupies() && !current.Status.Occupies() && s.occupied(next.Room, next.Date, next.Time, id) {
		s.mu.Unlock()
		return model.Booking{}, ErrSlotTaken
	}

	s.bookings[i] = next
	if err := s.saveLocked(); err != nil {
		s.bookings[i] = current
		s.mu.Unlock()
		return model.Booking{}, err
	}
	s.mu.Unlock()

	s.changed(ctx)
	return next.Clone(), nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, fn func([]model.Booking)) (func(), error) {
	initial, _ := s.List(ctx)
	return s.feed.subscribe(ctx, initial, fn), nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, r := range s.users {
		users = append(users, r.user())
	}
	sortUsers(users)
	return users, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.users {
		if r.Username == username {
			return r.user(), nil
		}
	}
	return model.User{}, ErrNotFound
}

func (s *MemoryStore) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.users {
		if r.Username == u.Username {
			return model.User{}, ErrUsernameTaken
		}
	}

	u = prepareUser(u, s.now())
	s.users = append(s.users, toRecord(u))
	if err := s.saveLocked(); err != nil {
		s.users = s.users[:len(s.users)-1]
		return model.User{}, err
	}
	return u, nil
}

// Snapshot writes the current state, in the storage file format, to dest.
func (s *MemoryStore) Snapshot(ctx context.Context, dest string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(memoryFile{Bookings: s.bookings, Users: s.users}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) indexOf(id string) int {
	for i := range s.bookings {
		if s.bookings[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) occupied(room, date, slot, exceptID string) bool {
	for i := range s.bookings {
		b := &s.bookings[i]
		if b.ID != exceptID && b.Status.Occupies() && b.SameSlot(room, date, slot) {
			return true
		}
	}
	return false
}

// saveLocked writes the state file through a temp file and rename. Caller holds s.mu.
func (s *MemoryStore) saveLocked() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(memoryFile{Bookings: s.bookings, Users: s.users}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write storage file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace storage file: %w", err)
	}
	return nil
}

func (s *MemoryStore) changed(ctx context.Context) {
	if err := s.feed.publish(ctx, s.List); err != nil {
		s.logger.Warn().Err(err).Msg("Subscriber failed")
	}
}
