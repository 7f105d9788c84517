// Package sheets mirrors the booking table into a Google Sheet.
package sheets

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"studiobook/internal/export"
	"studiobook/internal/model"
	"studiobook/internal/store"
)

// ValuesUpdater is the part of the Sheets API the syncer needs.
type ValuesUpdater interface {
	Clear(ctx context.Context, spreadsheetID, rng string) error
	Update(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
}

// API talks to the real Google Sheets service.
type API struct {
	srv *gsheets.Service
}

// NewAPI authenticates with a service-account JSON key file.
func NewAPI(ctx context.Context, credentialsFile string) (*API, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	srv, err := gsheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &API{srv: srv}, nil
}

func (a *API) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := a.srv.Spreadsheets.Values.Clear(spreadsheetID, rng, &gsheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (a *API) Update(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error {
	_, err := a.srv.Spreadsheets.Values.Update(spreadsheetID, rng, &gsheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// Syncer rewrites one sheet with the full booking table.
type Syncer struct {
	api           ValuesUpdater
	spreadsheetID string
	sheetName     string
	timeout       time.Duration

	// mu keeps clear+update pairs from interleaving.
	mu     sync.Mutex
	logger zerolog.Logger
}

func NewSyncer(api ValuesUpdater, spreadsheetID, sheetName string, logger *zerolog.Logger) *Syncer {
	if sheetName == "" {
		sheetName = export.SheetName
	}
	return &Syncer{
		api:           api,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		timeout:       30 * time.Second,
		logger:        logger.With().Str("component", "sheets").Logger(),
	}
}

// BookingRows is the header row followed by one row per booking.
func BookingRows(bookings []model.Booking) [][]interface{} {
	rows := make([][]interface{}, 0, len(bookings)+1)
	header := make([]interface{}, len(export.Columns))
	for i, c := range export.Columns {
		header[i] = c
	}
	rows = append(rows, header)
	for _, b := range bookings {
		rows = append(rows, export.Row(b))
	}
	return rows
}

// Sync replaces the sheet contents with bookings.
func (s *Syncer) Sync(ctx context.Context, bookings []model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.api.Clear(ctx, s.spreadsheetID, s.sheetName); err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}
	if err := s.api.Update(ctx, s.spreadsheetID, s.sheetName+"!A1", BookingRows(bookings)); err != nil {
		return fmt.Errorf("update sheet: %w", err)
	}
	return nil
}

// Start mirrors every change of st until ctx is done or the returned func is called.
// Syncs run on their own goroutine and only the newest snapshot is written, so a
// slow or failing sheet never holds up the writer. Failures are logged.
func (s *Syncer) Start(ctx context.Context, st store.BookingStore) (func(), error) {
	ctx, stop := context.WithCancel(ctx)
	latest := make(chan []model.Booking, 1)

	cancel, err := st.Subscribe(ctx, func(bookings []model.Booking) {
		select {
		case <-latest:
		default:
		}
		latest <- bookings
	})
	if err != nil {
		stop()
		return nil, fmt.Errorf("subscribe to bookings: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case bookings := <-latest:
				s.mirror(bookings)
			}
		}
	}()

	return func() {
		cancel()
		stop()
		wg.Wait()
	}, nil
}

func (s *Syncer) mirror(bookings []model.Booking) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.Sync(ctx, bookings); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to mirror bookings to Google Sheets")
		return
	}
	s.logger.Debug().Int("rows", len(bookings)).Msg("Bookings mirrored to Google Sheets")
}
