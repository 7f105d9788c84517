package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"studiobook/internal/model"
)

func TestWriteBookingsRoundTrip(t *testing.T) {
	viewers, sales := 120, 4500.5
	bookings := []model.Booking{
		{
			ID: "b1", Title: "Flash sale", StaffName: "Nok", Room: "A", Date: "2024-05-01", Time: "09:00",
			Status: model.StatusApproved, CreatedAt: time.Date(2024, 4, 20, 10, 30, 0, 0, time.UTC),
			ActualViewers: &viewers, SalesAmount: &sales,
		},
		{
			ID: "b2", Title: "Unboxing", StaffName: "Pim", Room: "B", Date: "2024-05-02", Time: "11:00",
			Status: model.StatusPending, CreatedAt: time.Date(2024, 4, 21, 8, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBookings(&buf, bookings))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{"b1", "Flash sale", "Nok", "A", "2024-05-01", "09:00", "APPROVED", "2024-04-20 10:30:00", "120", "4500.5"}, rows[1])
	assert.Equal(t, []string{"b2", "Unboxing", "Pim", "B", "2024-05-02", "11:00", "PENDING", "2024-04-21 08:00:00", "0", "0"}, rows[2])
}

func TestWriteBookingsEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, WriteBookings(&buf, nil), ErrNothingToExport)
	assert.Zero(t, buf.Len())
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "studio_bookings_export_2024-05-01.xlsx", Filename(time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)))
}

func TestSheetWriterRequiresSheet(t *testing.T) {
	w := NewSheetWriter()
	defer w.Close()
	assert.Error(t, w.WriteRow([]any{"x"}))
}
