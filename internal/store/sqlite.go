package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"studiobook/internal/events"
	"studiobook/internal/model"
)

// timeLayout keeps stored timestamps lexically sortable.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const bookingColumns = `id, room, date, time, title, staff_name, staff_id, status,
	actual_viewers, sales_amount, created_at, updated_at, version`

// SQLiteStore keeps bookings in a SQLite file. A partial unique index guarantees
// one pending or approved booking per slot even across processes.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	feed   *feed
	now    func() time.Time
	logger zerolog.Logger
}

func NewSQLiteStore(path string, bus *events.EventBus, logger *zerolog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		feed:   newFeed(bus),
		now:    time.Now,
		logger: logger.With().Str("component", "sqlite_store").Logger(),
	}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	s.logger.Info().Str("path", path).Msg("Database initialized")
	return s, nil
}

// Path is the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			room TEXT NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			title TEXT NOT NULL,
			staff_name TEXT NOT NULL,
			staff_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			actual_viewers INTEGER,
			sales_amount REAL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_slot
			ON bookings(room, date, time) WHERE status IN ('PENDING', 'APPROVED')`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_created ON bookings(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_staff ON bookings(staff_id)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec %q: %w", trimSQL(q), err)
		}
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]model.Booking, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	return bookings, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Booking, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	return scanBooking(row)
}

func (s *SQLiteStore) Create(ctx context.Context, b model.Booking) (model.Booking, error) {
	b = prepareBooking(b, s.now())

	_, err := s.db.ExecContext(ctx, `INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Room, b.Date, b.Time, b.Title, b.StaffName, b.StaffID, string(b.Status),
		nullInt(b.ActualViewers), nullFloat(b.SalesAmount),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt), b.Version,
	)
	if isUniqueViolation(err) {
		return model.Booking{}, ErrSlotTaken
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("insert booking: %w", err)
	}

	s.changed(ctx)
	return b, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch model.BookingPatch) (model.Booking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Booking{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return model.Booking{}, err
	}
	if current.Version != patch.Version {
		return model.Booking{}, ErrVersionConflict
	}

	next := patch.Apply(current, s.now().UTC())
	res, err := tx.ExecContext(ctx, `UPDATE bookings
		SET status = ?, actual_viewers = ?, sales_amount = ?, updated_at = ?, version = ?
		WHERE id = ? AND version = ?`,
		string(next.Status), nullInt(next.ActualViewers), nullFloat(next.SalesAmount),
		formatTime(next.UpdatedAt), next.Version, id, current.Version,
	)
	if isUniqueViolation(err) {
		return model.Booking{}, ErrSlotTaken
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("update booking: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.Booking{}, ErrVersionConflict
	}

	if err := tx.Commit(); err != nil {
		return model.Booking{}, fmt.Errorf("commit booking update: %w", err)
	}

	s.changed(ctx)
	return next, nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context, fn func([]model.Booking)) (func(), error) {
	initial, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.feed.subscribe(ctx, initial, fn), nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, password_hash, role, name, created_at
		FROM users ORDER BY created_at, username`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash, role, name, created_at
		FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	u = prepareUser(u, s.now())

	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, username, password_hash, role, name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, string(u.Role), u.Name, formatTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return model.User{}, ErrUsernameTaken
	}
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Snapshot writes a consistent copy of the database to dest.
func (s *SQLiteStore) Snapshot(ctx context.Context, dest string) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) changed(ctx context.Context) {
	if err := s.feed.publish(ctx, s.List); err != nil {
		s.logger.Warn().Err(err).Msg("Subscriber failed")
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (model.Booking, error) {
	var (
		b                    model.Booking
		status               string
		viewers              sql.NullInt64
		sales                sql.NullFloat64
		createdAt, updatedAt string
	)
	err := row.Scan(&b.ID, &b.Room, &b.Date, &b.Time, &b.Title, &b.StaffName, &b.StaffID, &status,
		&viewers, &sales, &createdAt, &updatedAt, &b.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrNotFound
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("scan booking: %w", err)
	}

	b.Status = model.Status(status)
	if viewers.Valid {
		v := int(viewers.Int64)
		b.ActualViewers = &v
	}
	if sales.Valid {
		v := sales.Float64
		b.SalesAmount = &v
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Booking{}, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u         model.User
		role      string
		createdAt string
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Role = model.Role(role)
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func trimSQL(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 60 {
		return q[:60] + "..."
	}
	return q
}
