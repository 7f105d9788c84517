package store

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/model"
)

type factory func(t *testing.T) Store

func backends() map[string]factory {
	logger := zerolog.New(io.Discard)
	return map[string]factory{
		"memory": func(t *testing.T) Store {
			s, err := NewMemoryStore("", nil, &logger)
			require.NoError(t, err)
			return s
		},
		"memory_file": func(t *testing.T) Store {
			s, err := NewMemoryStore(filepath.Join(t.TempDir(), "bookings.json"), nil, &logger)
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "studio.db"), nil, &logger)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			s := NewRedisStore(client, "test", &logger)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

var base = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func pending(room, date, slot string, offset int) model.Booking {
	return model.Booking{
		Room:      room,
		Date:      date,
		Time:      slot,
		Title:     "Live " + slot,
		StaffName: "Nok",
		StaffID:   "u-1",
		Status:    model.StatusPending,
		CreatedAt: base.Add(time.Duration(offset) * time.Minute),
	}
}

func statusPtr(s model.Status) *model.Status { return &s }

func TestStoreContract(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("CreateAssignsIdentity", func(t *testing.T) {
				s := newStore(t)
				b, err := s.Create(ctx, pending("A", "2024-05-01", "09:00", 0))
				require.NoError(t, err)

				assert.NotEmpty(t, b.ID)
				assert.Equal(t, int64(1), b.Version)
				assert.True(t, b.CreatedAt.Equal(base))
				assert.True(t, b.UpdatedAt.Equal(base))

				got, err := s.Get(ctx, b.ID)
				require.NoError(t, err)
				assert.Equal(t, b.ID, got.ID)
				assert.Equal(t, "A", got.Room)
				assert.Equal(t, "Nok", got.StaffName)
				assert.Equal(t, model.StatusPending, got.Status)
				assert.Nil(t, got.ActualViewers)
				assert.Nil(t, got.SalesAmount)
				assert.True(t, got.CreatedAt.Equal(base))
			})

			t.Run("GetMissing", func(t *testing.T) {
				s := newStore(t)
				_, err := s.Get(ctx, "nope")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("SlotTaken", func(t *testing.T) {
				s := newStore(t)
				_, err := s.Create(ctx, pending("A", "2024-05-01", "09:00", 0))
				require.NoError(t, err)

				_, err = s.Create(ctx, pending("A", "2024-05-01", "09:00", 1))
				assert.ErrorIs(t, err, ErrSlotTaken)

				_, err = s.Create(ctx, pending("B", "2024-05-01", "09:00", 2))
				assert.NoError(t, err)
				_, err = s.Create(ctx, pending("A", "2024-05-01", "11:00", 3))
				assert.NoError(t, err)

				all, err := s.List(ctx)
				require.NoError(t, err)
				assert.Len(t, all, 3)
			})

			t.Run("RejectedFreesSlot", func(t *testing.T) {
				s := newStore(t)
				b, err := s.Create(ctx, pending("A", "2024-05-01", "09:00", 0))
				require.NoError(t, err)

				rejected, err := s.Update(ctx, b.ID, model.BookingPatch{Status: statusPtr(model.StatusRejected), Version: b.Version})
				require.NoError(t, err)
				assert.Equal(t, model.StatusRejected, rejected.Status)
				assert.Equal(t, int64(2), rejected.Version)

				again, err := s.Create(ctx, pending("A", "2024-05-01", "09:00", 1))
				require.NoError(t, err)
				assert.NotEqual(t, b.ID, again.ID)
			})

			t.Run("UpdateChecksVersion", func(t *testing.T) {
				s := newStore(t)
				b, err := s.Create(ctx, pending("A", "2024-05-01", "09:00", 0))
				require.NoError(t, err)

				approved, err := s.Update(ctx, b.ID, model.BookingPatch{Status: statusPtr(model.StatusApproved), Version: 1})
				require.NoError(t, err)
				assert.Equal(t, int64(2), approved.Version)

				_, err = s.Update(ctx, b.ID, model.BookingPatch{Status: statusPtr(model.StatusRejected), Version: 1})
				assert.ErrorIs(t, err, ErrVersionConflict)

				got, err := s.Get(ctx, b.ID)
				require.NoError(t, err)
				assert.Equal(t, model.StatusApproved, got.Status)
			})

			t.Run("UpdateStats", func(t *testing.T) {
				s := newStore(t)
				b, err := s.Create(ctx, pending("A", "2024-05-01", "09:00", 0))
				require.NoError(t, err)
				b, err = s.Update(ctx, b.ID, model.BookingPatch{Status: statusPtr(model.StatusApproved), Version: b.Version})
				require.NoError(t, err)

				viewers, sales := 120, 4500.5
				b, err = s.Update(ctx, b.ID, model.BookingPatch{ActualViewers: &viewers, SalesAmount: &sales, Version: b.Version})
				require.NoError(t, err)

				got, err := s.Get(ctx, b.ID)
				require.NoError(t, err)
				require.NotNil(t, got.ActualViewers)
				require.NotNil(t, got.SalesAmount)
				assert.Equal(t, 120, *got.ActualViewers)
				assert.InDelta(t, 4500.5, *got.SalesAmount, 1e-9)
				assert.Equal(t, model.StatusApproved, got.Status)
				assert.Equal(t, int64(3), got.Version)
			})

			t.Run("UpdateMissing", func(t *testing.T) {
				s := newStore(t)
				_, err := s.Update(ctx, "nope", model.BookingPatch{Status: statusPtr(model.StatusApproved), Version: 1})
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("ListInCreationOrder", func(t *testing.T) {
				s := newStore(t)
				third, err := s.Create(ctx, pending("A", "2024-05-03", "09:00", 30))
				require.NoError(t, err)
				first, err := s.Create(ctx, pending("A", "2024-05-01", "09:00", 10))
				require.NoError(t, err)
				second, err := s.Create(ctx, pending("A", "2024-05-02", "09:00", 20))
				require.NoError(t, err)

				all, err := s.List(ctx)
				require.NoError(t, err)
				require.Len(t, all, 3)
				assert.Equal(t, []string{first.ID, second.ID, third.ID}, []string{all[0].ID, all[1].ID, all[2].ID})
			})

			t.Run("SubscribeSeesChanges", func(t *testing.T) {
				s := newStore(t)
				_, err := s.Create(ctx, pending("A", "2024-05-01", "09:00", 0))
				require.NoError(t, err)

				var (
					mu        sync.Mutex
					snapshots [][]model.Booking
				)
				cancel, err := s.Subscribe(ctx, func(all []model.Booking) {
					mu.Lock()
					snapshots = append(snapshots, all)
					mu.Unlock()
				})
				require.NoError(t, err)

				mu.Lock()
				require.Len(t, snapshots, 1)
				assert.Len(t, snapshots[0], 1)
				mu.Unlock()

				_, err = s.Create(ctx, pending("A", "2024-05-01", "11:00", 1))
				require.NoError(t, err)

				require.Eventually(t, func() bool {
					mu.Lock()
					defer mu.Unlock()
					return len(snapshots) >= 2 && len(snapshots[len(snapshots)-1]) == 2
				}, 2*time.Second, 10*time.Millisecond)

				cancel()
				mu.Lock()
				seen := len(snapshots)
				mu.Unlock()

				_, err = s.Create(ctx, pending("A", "2024-05-01", "13:00", 2))
				require.NoError(t, err)
				time.Sleep(50 * time.Millisecond)

				mu.Lock()
				assert.Equal(t, seen, len(snapshots))
				mu.Unlock()
			})

			t.Run("Users", func(t *testing.T) {
				s := newStore(t)
				admin, err := s.CreateUser(ctx, model.User{
					Username:     "admin",
					PasswordHash: "hash-1",
					Role:         model.RoleManager,
					Name:         "Admin User",
					CreatedAt:    base,
				})
				require.NoError(t, err)
				assert.NotEmpty(t, admin.ID)

				_, err = s.CreateUser(ctx, model.User{Username: "admin", PasswordHash: "x", Role: model.RoleStaff, Name: "Other"})
				assert.ErrorIs(t, err, ErrUsernameTaken)

				_, err = s.CreateUser(ctx, model.User{
					Username:     "nok",
					PasswordHash: "hash-2",
					Role:         model.RoleStaff,
					Name:         "Nok",
					CreatedAt:    base.Add(time.Hour),
				})
				require.NoError(t, err)

				got, err := s.GetUserByUsername(ctx, "admin")
				require.NoError(t, err)
				assert.Equal(t, "hash-1", got.PasswordHash)
				assert.Equal(t, model.RoleManager, got.Role)

				_, err = s.GetUserByUsername(ctx, "ghost")
				assert.ErrorIs(t, err, ErrNotFound)

				users, err := s.ListUsers(ctx)
				require.NoError(t, err)
				require.Len(t, users, 2)
				assert.Equal(t, "admin", users[0].Username)
				assert.Equal(t, "nok", users[1].Username)
			})

			t.Run("Ping", func(t *testing.T) {
				s := newStore(t)
				assert.NoError(t, s.Ping(ctx))
			})
		})
	}
}

func TestMemoryStorePersistsToFile(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	path := filepath.Join(t.TempDir(), "data", "bookings.json")

	s, err := NewMemoryStore(path, nil, &logger)
	require.NoError(t, err)
	b, err := s.Create(ctx, pending("A", "2024-05-01", "09:00", 0))
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, model.User{Username: "admin", PasswordHash: "hash", Role: model.RoleManager, Name: "Admin"})
	require.NoError(t, err)

	reopened, err := NewMemoryStore(path, nil, &logger)
	require.NoError(t, err)

	got, err := reopened.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Live 09:00", got.Title)

	u, err := reopened.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "hash", u.PasswordHash)

	_, err = reopened.Create(ctx, pending("A", "2024-05-01", "09:00", 1))
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	s, err := NewMemoryStore("", nil, &logger)
	require.NoError(t, err)

	b, err := s.Create(ctx, pending("A", "2024-05-01", "09:00", 0))
	require.NoError(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	all[0].Status = model.StatusRejected

	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestSQLiteStoreSharesIndexAcrossConnections(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	path := filepath.Join(t.TempDir(), "studio.db")

	first, err := NewSQLiteStore(path, nil, &logger)
	require.NoError(t, err)
	defer first.Close()
	second, err := NewSQLiteStore(path, nil, &logger)
	require.NoError(t, err)
	defer second.Close()

	_, err = first.Create(ctx, pending("A", "2024-05-01", "09:00", 0))
	require.NoError(t, err)
	_, err = second.Create(ctx, pending("A", "2024-05-01", "09:00", 1))
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, path, first.Path())
}

func TestSQLiteStoreCreatesDirectory(t *testing.T) {
	logger := zerolog.New(io.Discard)
	dir := filepath.Join(t.TempDir(), "nested", "data")

	s, err := NewSQLiteStore(filepath.Join(dir, "studio.db"), nil, &logger)
	require.NoError(t, err)
	defer s.Close()
	assert.DirExists(t, dir)
}

func TestRedisStoreSubscribeSeesOtherClients(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	mr := miniredis.RunT(t)

	reader := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "shared", &logger)
	defer reader.Close()
	writer := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "shared", &logger)
	defer writer.Close()

	var (
		mu   sync.Mutex
		last []model.Booking
	)
	cancel, err := reader.Subscribe(ctx, func(all []model.Booking) {
		mu.Lock()
		last = all
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	_, err = writer.Create(ctx, pending("A", "2024-05-01", "09:00", 0))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = reader.Create(ctx, pending("A", "2024-05-01", "09:00", 1))
	assert.ErrorIs(t, err, ErrSlotTaken)
}

// dropIndexWrite cancels the caller's context and fails any pipeline that
// writes a sorted-set index, as a client disconnect mid-write would.
type dropIndexWrite struct {
	cancel context.CancelFunc
}

func (h dropIndexWrite) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h dropIndexWrite) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (h dropIndexWrite) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			if cmd.Name() == "zadd" {
				h.cancel()
				return context.Canceled
			}
		}
		return next(ctx, cmds)
	}
}

func TestRedisStoreFailedCreateLeavesNothingBehind(t *testing.T) {
	logger := zerolog.New(io.Discard)
	mr := miniredis.RunT(t)

	broken := func() (*RedisStore, context.Context) {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		client.AddHook(dropIndexWrite{cancel: cancel})
		s := NewRedisStore(client, "test", &logger)
		t.Cleanup(func() { s.Close() })
		return s, ctx
	}

	healthy := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", &logger)
	defer healthy.Close()
	ctx := context.Background()

	t.Run("Booking", func(t *testing.T) {
		s, failCtx := broken()
		_, err := s.Create(failCtx, pending("A", "2024-05-01", "09:00", 0))
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, mr.Exists("test:slot:A:2024-05-01:09:00"), "claim must not outlive a failed write")

		all, err := healthy.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		b, err := healthy.Create(ctx, pending("A", "2024-05-01", "09:00", 1))
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, b.Status)
	})

	t.Run("User", func(t *testing.T) {
		s, failCtx := broken()
		nok := model.User{Username: "nok", PasswordHash: "x", Role: model.RoleStaff, Name: "Nok"}
		_, err := s.CreateUser(failCtx, nok)
		require.ErrorIs(t, err, context.Canceled)

		_, err = healthy.GetUserByUsername(ctx, "nok")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = healthy.CreateUser(ctx, nok)
		require.NoError(t, err)
		list, err := healthy.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "nok", list[0].Username)
	})
}

func TestSnapshots(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	dir := t.TempDir()

	sq, err := NewSQLiteStore(filepath.Join(dir, "studio.db"), nil, &logger)
	require.NoError(t, err)
	defer sq.Close()
	b, err := sq.Create(ctx, pending("A", "2024-05-01", "09:00", 0))
	require.NoError(t, err)

	copyPath := filepath.Join(dir, "copy.db")
	require.NoError(t, sq.Snapshot(ctx, copyPath))

	restored, err := NewSQLiteStore(copyPath, nil, &logger)
	require.NoError(t, err)
	defer restored.Close()
	got, err := restored.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Title, got.Title)

	mem, err := NewMemoryStore("", nil, &logger)
	require.NoError(t, err)
	mb, err := mem.Create(ctx, pending("A", "2024-05-01", "09:00", 0))
	require.NoError(t, err)

	jsonPath := filepath.Join(dir, "copy.json")
	require.NoError(t, mem.Snapshot(ctx, jsonPath))
	reloaded, err := NewMemoryStore(jsonPath, nil, &logger)
	require.NoError(t, err)
	_, err = reloaded.Get(ctx, mb.ID)
	assert.NoError(t, err)
}
