package sheets

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"studiobook/internal/export"
	"studiobook/internal/model"
	"studiobook/internal/store"
)

type mockValues struct {
	mock.Mock
}

func (m *mockValues) Clear(ctx context.Context, spreadsheetID, rng string) error {
	return m.Called(spreadsheetID, rng).Error(0)
}

func (m *mockValues) Update(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error {
	return m.Called(spreadsheetID, rng, rows).Error(0)
}

func TestBookingRows(t *testing.T) {
	rows := BookingRows([]model.Booking{{ID: "b1", Status: model.StatusPending}})

	require.Len(t, rows, 2)
	assert.Len(t, rows[0], len(export.Columns))
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "b1", rows[1][0])
	assert.Equal(t, "PENDING", rows[1][6])
	assert.Equal(t, 0, rows[1][8])
	assert.Equal(t, 0.0, rows[1][9])
}

func TestSync(t *testing.T) {
	logger := zerolog.New(io.Discard)
	api := new(mockValues)
	bookings := []model.Booking{{ID: "b1"}}

	api.On("Clear", "sheet-id", "Bookings").Return(nil).Once()
	api.On("Update", "sheet-id", "Bookings!A1", BookingRows(bookings)).Return(nil).Once()

	s := NewSyncer(api, "sheet-id", "", &logger)
	require.NoError(t, s.Sync(context.Background(), bookings))
	api.AssertExpectations(t)
}

func TestSyncStopsOnClearFailure(t *testing.T) {
	logger := zerolog.New(io.Discard)
	api := new(mockValues)
	api.On("Clear", "sheet-id", "Mirror").Return(errors.New("quota")).Once()

	s := NewSyncer(api, "sheet-id", "Mirror", &logger)
	assert.ErrorContains(t, s.Sync(context.Background(), nil), "quota")
	api.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

// recordingValues remembers how many rows each successful update wrote.
type recordingValues struct {
	mu      sync.Mutex
	fails   int
	updates []int
}

func (r *recordingValues) Clear(context.Context, string, string) error { return nil }

func (r *recordingValues) Update(_ context.Context, _, _ string, rows [][]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("offline")
	}
	r.updates = append(r.updates, len(rows))
	return nil
}

func (r *recordingValues) lastRows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return -1
	}
	return r.updates[len(r.updates)-1]
}

func TestStartMirrorsStoreChanges(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	st, err := store.NewMemoryStore("", nil, &logger)
	require.NoError(t, err)

	api := &recordingValues{}
	cancel, err := NewSyncer(api, "sheet-id", "", &logger).Start(ctx, st)
	require.NoError(t, err)
	defer cancel()

	_, err = st.Create(ctx, model.Booking{Room: "A", Date: "2024-05-01", Time: "09:00", Status: model.StatusPending})
	require.NoError(t, err)

	// Header plus the one booking.
	assert.Eventually(t, func() bool { return api.lastRows() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestStartSurvivesFailingSheet(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	st, err := store.NewMemoryStore("", nil, &logger)
	require.NoError(t, err)

	api := &recordingValues{fails: 1000}
	cancel, err := NewSyncer(api, "sheet-id", "", &logger).Start(ctx, st)
	require.NoError(t, err)
	defer cancel()

	for _, slot := range []string{"09:00", "11:00"} {
		_, err = st.Create(ctx, model.Booking{Room: "A", Date: "2024-05-01", Time: slot, Status: model.StatusPending})
		require.NoError(t, err, "a failing mirror must not fail the write")
	}
	list, err := st.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestStartCancelStopsWorker(t *testing.T) {
	logger := zerolog.New(io.Discard)
	st, err := store.NewMemoryStore("", nil, &logger)
	require.NoError(t, err)

	api := &recordingValues{}
	cancel, err := NewSyncer(api, "sheet-id", "", &logger).Start(context.Background(), st)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		cancel()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not return")
	}
}
