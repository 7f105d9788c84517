// Package stats computes the manager dashboard figures.
package stats

import (
	"sort"

	"studiobook/internal/model"
)

// Summary holds the dashboard counters.
type Summary struct {
	Total        int     `json:"total"`
	Pending      int     `json:"pending"`
	Approved     int     `json:"approved"`
	Rejected     int     `json:"rejected"`
	Reported     int     `json:"reported"`
	TotalViewers int     `json:"totalViewers"`
	TotalSales   float64 `json:"totalSales"`
}

// DatePoint is one bar of the sales chart.
type DatePoint struct {
	Date  string  `json:"date"`
	Sales float64 `json:"sales"`
}

// Summarize counts bookings per status. Totals include every booking that has stats.
func Summarize(bookings []model.Booking) Summary {
	var s Summary
	for i := range bookings {
		b := &bookings[i]
		s.Total++
		switch b.Status {
		case model.StatusPending:
			s.Pending++
		case model.StatusApproved:
			s.Approved++
		case model.StatusRejected:
			s.Rejected++
		}
		if b.Reported() {
			s.Reported++
		}
		s.TotalViewers += b.Viewers()
		s.TotalSales += b.Sales()
	}
	return s
}

// SalesByDate sums the sales of approved bookings per date, oldest first.
// Bookings without a positive sales amount are left out.
func SalesByDate(bookings []model.Booking) []DatePoint {
	sums := make(map[string]float64)
	for i := range bookings {
		b := &bookings[i]
		if b.Status != model.StatusApproved || b.Sales() <= 0 {
			continue
		}
		sums[b.Date] += b.Sales()
	}

	points := make([]DatePoint, 0, len(sums))
	for date, sales := range sums {
		points = append(points, DatePoint{Date: date, Sales: sales})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}
