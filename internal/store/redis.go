package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"studiobook/internal/model"
)

// RedisStore is the shared backend: several processes can point at the same
// Redis and each sees every write through the change channel.
//
// Keys, all under prefix:
//
//	booking:{id}                 booking JSON
//	bookings                     sorted set of ids scored by creation time
//	slot:{room}:{date}:{time}    id of the booking holding the slot
//	user:{username}              user JSON
//	users                        sorted set of usernames scored by creation time
//	changes                      pub/sub channel, message is the changed booking id
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
	logger zerolog.Logger
}

func NewRedisStore(client *redis.Client, prefix string, logger *zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "studiobook"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
		logger: logger.With().Str("component", "redis_store").Logger(),
	}
}

func (s *RedisStore) bookingKey(id string) string { return s.prefix + ":booking:" + id }
func (s *RedisStore) bookingsKey() string        { return s.prefix + ":bookings" }
func (s *RedisStore) userKey(name string) string { return s.prefix + ":user:" + name }
func (s *RedisStore) usersKey() string           { return s.prefix + ":users" }
func (s *RedisStore) changesChannel() string     { return s.prefix + ":changes" }

func (s *RedisStore) slotKey(room, date, slot string) string {
	return fmt.Sprintf("%s:slot:%s:%s:%s", s.prefix, room, date, slot)
}

func (s *RedisStore) List(ctx context.Context) ([]model.Booking, error) {
	ids, err := s.client.ZRange(ctx, s.bookingsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list booking ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.bookingKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	bookings := make([]model.Booking, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			s.logger.Warn().Str("id", ids[i]).Msg("Booking indexed but missing")
			continue
		}
		var b model.Booking
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			return nil, fmt.Errorf("decode booking %s: %w", ids[i], err)
		}
		bookings = append(bookings, b)
	}
	sortByCreation(bookings)
	return bookings, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (model.Booking, error) {
	return s.get(ctx, s.client, id)
}

func (s *RedisStore) get(ctx context.Context, c redis.Cmdable, id string) (model.Booking, error) {
	raw, err := c.Get(ctx, s.bookingKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Booking{}, ErrNotFound
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("get booking: %w", err)
	}

	var b model.Booking
	if err := json.Unmarshal(raw, &b); err != nil {
		return model.Booking{}, fmt.Errorf("decode booking %s: %w", id, err)
	}
	return b, nil
}

func (s *RedisStore) Create(ctx context.Context, b model.Booking) (model.Booking, error) {
	b = prepareBooking(b, s.now())
	data, err := json.Marshal(b)
	if err != nil {
		return model.Booking{}, fmt.Errorf("encode booking: %w", err)
	}

	slot := s.slotKey(b.Room, b.Date, b.Time)
	write := func(pipe redis.Pipeliner) error {
		if b.Status.Occupies() {
			pipe.Set(ctx, slot, b.ID, 0)
		}
		pipe.Set(ctx, s.bookingKey(b.ID), data, 0)
		pipe.ZAdd(ctx, s.bookingsKey(), redis.Z{Score: float64(b.CreatedAt.UnixMicro()), Member: b.ID})
		return nil
	}

	if !b.Status.Occupies() {
		if _, err := s.client.TxPipelined(ctx, write); err != nil {
			return model.Booking{}, fmt.Errorf("store booking: %w", err)
		}
		s.publish(ctx, b.ID)
		return b, nil
	}

	// The claim, the document and the index go out in one MULTI, guarded by
	// WATCH on the claim key, so a failed write leaves nothing behind.
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		taken, err := tx.Exists(ctx, slot).Result()
		if err != nil {
			return fmt.Errorf("read slot claim: %w", err)
		}
		if taken > 0 {
			return ErrSlotTaken
		}
		_, err = tx.TxPipelined(ctx, write)
		return err
	}, slot)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		// Another client touched the claim between WATCH and EXEC.
		return model.Booking{}, ErrSlotTaken
	case errors.Is(err, ErrSlotTaken):
		return model.Booking{}, err
	case err != nil:
		return model.Booking{}, fmt.Errorf("store booking: %w", err)
	}

	s.publish(ctx, b.ID)
	return b, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, patch model.BookingPatch) (model.Booking, error) {
	// Room, date and time never change, so the slot key is known before watching.
	current, err := s.Get(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	bookingKey := s.bookingKey(id)
	slot := s.slotKey(current.Room, current.Date, current.Time)

	var next model.Booking
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Version != patch.Version {
			return ErrVersionConflict
		}

		next = patch.Apply(cur, s.now().UTC())
		holder, err := tx.Get(ctx, slot).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read slot claim: %w", err)
		}
		if next.Status.Occupies() && holder != "" && holder != id {
			return ErrSlotTaken
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode booking: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, bookingKey, data, 0)
			switch {
			case next.Status.Occupies() && holder == "":
				pipe.Set(ctx, slot, id, 0)
			case !next.Status.Occupies() && holder == id:
				pipe.Del(ctx, slot)
			}
			return nil
		})
		return err
	}, bookingKey, slot)

	if errors.Is(err, redis.TxFailedErr) {
		return model.Booking{}, ErrVersionConflict
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrSlotTaken) {
			return model.Booking{}, err
		}
		return model.Booking{}, fmt.Errorf("update booking: %w", err)
	}

	s.publish(ctx, id)
	return next, nil
}

// Subscribe listens on the change channel, so writes made by other processes are seen too.
func (s *RedisStore) Subscribe(ctx context.Context, fn func([]model.Booking)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, s.changesChannel())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}

	initial, err := s.List(ctx)
	if err != nil {
		pubsub.Close()
		return nil, err
	}
	fn(initial)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				bookings, err := s.List(ctx)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Warn().Err(err).Msg("Failed to reload bookings after change")
					}
					continue
				}
				fn(bookings)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func (s *RedisStore) ListUsers(ctx context.Context) ([]model.User, error) {
	names, err := s.client.ZRange(ctx, s.usersKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list usernames: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = s.userKey(n)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	users := make([]model.User, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var r userRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode user %s: %w", names[i], err)
		}
		users = append(users, r.user())
	}
	sortUsers(users)
	return users, nil
}

func (s *RedisStore) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	raw, err := s.client.Get(ctx, s.userKey(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}

	var r userRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.User{}, fmt.Errorf("decode user %s: %w", username, err)
	}
	return r.user(), nil
}

func (s *RedisStore) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	u = prepareUser(u, s.now())
	data, err := json.Marshal(toRecord(u))
	if err != nil {
		return model.User{}, fmt.Errorf("encode user: %w", err)
	}

	key := s.userKey(u.Username)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("read user: %w", err)
		}
		if exists > 0 {
			return ErrUsernameTaken
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, s.usersKey(), redis.Z{Score: float64(u.CreatedAt.UnixMicro()), Member: u.Username})
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, ErrUsernameTaken):
		return model.User{}, ErrUsernameTaken
	case err != nil:
		return model.User{}, fmt.Errorf("store user: %w", err)
	}
	return u, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) publish(ctx context.Context, id string) {
	if err := s.client.Publish(ctx, s.changesChannel(), id).Err(); err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("Failed to publish change")
	}
}
