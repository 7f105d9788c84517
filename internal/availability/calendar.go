package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"studiobook/internal/model"
)

// DateLayout is the wire format of booking dates.
const DateLayout = "2006-01-02"

// DayOccupancy summarises one calendar day for a room.
type DayOccupancy struct {
	Date        string       `json:"date"`
	Weekday     time.Weekday `json:"weekday"`
	Booked      int          `json:"booked"`
	HasBooking  bool         `json:"hasBooking"`
	FullyBooked bool         `json:"fullyBooked"`
}

// MonthCalendar returns one entry per day of the month for room.
// A day is fully booked once its occupied count reaches slotsPerDay.
func MonthCalendar(bookings []model.Booking, room string, year int, month time.Month, slotsPerDay int) []DayOccupancy {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(0, 1, -1).Day()

	counts := make(map[string]int)
	for i := range bookings {
		b := &bookings[i]
		if b.Room == room && b.Status.Occupies() {
			counts[b.Date]++
		}
	}

	result := make([]DayOccupancy, 0, days)
	for d := 0; d < days; d++ {
		day := first.AddDate(0, 0, d)
		date := day.Format(DateLayout)
		n := counts[date]
		result = append(result, DayOccupancy{
			Date:        date,
			Weekday:     day.Weekday(),
			Booked:      n,
			HasBooking:  n > 0,
			FullyBooked: slotsPerDay > 0 && n >= slotsPerDay,
		})
	}
	return result
}

// Schedule describes a working day from which slot start times are generated.
type Schedule struct {
	StartTime           string // "09:00"
	EndTime             string // "21:00"
	SlotDurationMinutes int
	BreakStart          string // optional
	BreakEnd            string // optional
}

// GenerateTimes lists the start time of every whole slot that fits into the schedule.
// Slots overlapping the break are skipped.
func GenerateTimes(s Schedule) ([]string, error) {
	if s.SlotDurationMinutes <= 0 {
		return nil, fmt.Errorf("slot duration must be positive, got %d", s.SlotDurationMinutes)
	}

	start, err := parseClock(s.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	end, err := parseClock(s.EndTime)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}
	if end <= start {
		return nil, fmt.Errorf("end time %s must be after start time %s", s.EndTime, s.StartTime)
	}

	hasBreak := s.BreakStart != "" && s.BreakEnd != ""
	var breakStart, breakEnd int
	if hasBreak {
		if breakStart, err = parseClock(s.BreakStart); err != nil {
			return nil, fmt.Errorf("parse break start: %w", err)
		}
		if breakEnd, err = parseClock(s.BreakEnd); err != nil {
			return nil, fmt.Errorf("parse break end: %w", err)
		}
	}

	var times []string
	for cursor := start; cursor+s.SlotDurationMinutes <= end; cursor += s.SlotDurationMinutes {
		slotEnd := cursor + s.SlotDurationMinutes
		if hasBreak && cursor < breakEnd && breakStart < slotEnd {
			continue
		}
		times = append(times, formatClock(cursor))
	}
	return times, nil
}

// ValidClock reports whether s is a well-formed HH:MM time of day.
func ValidClock(s string) bool {
	_, err := parseClock(s)
	return err == nil
}

// parseClock converts "HH:MM" into minutes after midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
