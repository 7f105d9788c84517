// Package export turns the booking collection into spreadsheet rows.
package export

import (
	"errors"
	"fmt"
	"io"
	"time"

	"studiobook/internal/model"
)

const SheetName = "Bookings"

// ErrNothingToExport is returned for an empty collection.
var ErrNothingToExport = errors.New("no bookings to export")

// Columns are the exported column titles, in order.
var Columns = []string{
	"ID", "Title", "Staff Name", "Room", "Date", "Time", "Status",
	"Created At", "Actual Viewers", "Sales Amount",
}

const createdAtLayout = "2006-01-02 15:04:05"

// Row flattens b into the values of Columns. Missing stats are exported as 0.
func Row(b model.Booking) []any {
	return []any{
		b.ID,
		b.Title,
		b.StaffName,
		b.Room,
		b.Date,
		b.Time,
		string(b.Status),
		b.CreatedAt.UTC().Format(createdAtLayout),
		b.Viewers(),
		b.Sales(),
	}
}

// Filename names the download for the given day.
func Filename(now time.Time) string {
	return fmt.Sprintf("studio_bookings_export_%s.xlsx", now.Format("2006-01-02"))
}

// WriteBookings writes every booking as one row of an .xlsx workbook.
func WriteBookings(w io.Writer, bookings []model.Booking) error {
	if len(bookings) == 0 {
		return ErrNothingToExport
	}

	sw := NewSheetWriter()
	defer sw.Close()

	if err := sw.AddSheet(SheetName); err != nil {
		return err
	}
	if err := sw.WriteHeader(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, b := range bookings {
		if err := sw.WriteRow(Row(b)); err != nil {
			return fmt.Errorf("write booking %s: %w", b.ID, err)
		}
	}

	if err := sw.Save(w); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
