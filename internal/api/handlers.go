package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"studiobook/internal/availability"
	"studiobook/internal/booking"
	"studiobook/internal/config"
	"studiobook/internal/export"
	"studiobook/internal/model"
	"studiobook/internal/stats"
	"studiobook/internal/users"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type roomsResponse struct {
	Rooms    []config.RoomConfig `json:"rooms"`
	Times    []string            `json:"times"`
	DaysOff  []int               `json:"daysOff,omitempty"`
	Holidays []holiday           `json:"holidays,omitempty"`
}

type holiday struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

type slotsResponse struct {
	Room   string                   `json:"room"`
	Date   string                   `json:"date"`
	Closed bool                     `json:"closed"`
	Reason string                   `json:"reason,omitempty"`
	Slots  []availability.SlotState `json:"slots"`
}

type calendarResponse struct {
	Room  string                      `json:"room"`
	Month string                      `json:"month"`
	Days  []availability.DayOccupancy `json:"days"`
}

// ReportRequest carries the figures of a finished session. Both are required.
type ReportRequest struct {
	ActualViewers *int     `json:"actualViewers"`
	SalesAmount   *float64 `json:"salesAmount"`
}

type statsResponse struct {
	Summary stats.Summary     `json:"summary"`
	Sales   []stats.DatePoint `json:"sales"`
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

// handleRooms returns the active rooms and the slot times they offer.
// GET /api/rooms
func (s *HTTPServer) handleRooms(w http.ResponseWriter, _ *http.Request) {
	catalog := s.bookings.Catalog()

	resp := roomsResponse{
		Rooms:   catalog.ActiveRooms(),
		Times:   catalog.Times,
		DaysOff: catalog.DaysOff,
	}
	for _, h := range catalog.Holidays {
		resp.Holidays = append(resp.Holidays, holiday{Date: h.Date, Name: h.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSlots lists every slot of a room on one date.
// GET /api/slots?room=&date=YYYY-MM-DD
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.URL.Query().Get("room"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if room == "" || date == "" {
		writeError(w, http.StatusBadRequest, "room and date are required")
		return
	}

	slots, err := s.bookings.Slots(r.Context(), room, date)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := slotsResponse{Room: room, Date: date, Slots: slots}
	if day, err := time.Parse(availability.DateLayout, date); err == nil {
		resp.Closed, resp.Reason = s.bookings.Catalog().ClosedOn(day)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCalendar returns per-day occupancy for a month.
// GET /api/calendar?room=&month=YYYY-MM
func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.URL.Query().Get("room"))
	if room == "" {
		writeError(w, http.StatusBadRequest, "room is required")
		return
	}

	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month == "" {
		month = s.now().Format("2006-01")
	}
	first, err := time.Parse("2006-01", month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month format; expected YYYY-MM")
		return
	}

	days, err := s.bookings.Calendar(r.Context(), room, first.Year(), first.Month())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calendarResponse{Room: room, Month: month, Days: days})
}

// handleSubmit creates a pending booking for the caller.
// POST /api/bookings
func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req booking.SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	b, err := s.bookings.Submit(r.Context(), req, currentUser(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// handleListBookings returns the caller's bookings, or every booking for a manager.
// GET /api/bookings?status=PENDING
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	var f booking.Filter
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		f.Status = model.Status(strings.ToUpper(raw))
		if !f.Status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
	}

	u := currentUser(r)
	if !u.IsManager() {
		f.StaffID = u.ID
		f.StaffName = u.Name
	}

	list, err := s.bookings.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /api/bookings/{id}/approve
func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookings.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// POST /api/bookings/{id}/reject
func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookings.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleReport records session figures. Staff may only report their own bookings.
// POST /api/bookings/{id}/report
func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ActualViewers == nil || req.SalesAmount == nil {
		writeError(w, http.StatusBadRequest, "actualViewers and salesAmount are required")
		return
	}

	u := currentUser(r)
	if !u.IsManager() {
		b, err := s.bookings.Get(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if b.StaffID != u.ID {
			s.fail(w, r, errForbidden)
			return
		}
	}

	b, err := s.bookings.Report(r.Context(), id, *req.ActualViewers, *req.SalesAmount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GET /api/stats
func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	all, err := s.bookings.All(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Summary: stats.Summarize(all),
		Sales:   stats.SalesByDate(all),
	})
}

// handleExport streams every booking as an xlsx workbook.
// GET /api/export
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	all, err := s.bookings.All(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, all); err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(s.now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.log.Warn().Err(err).Msg("Export download interrupted")
	}
}

// GET /api/users
func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /api/users
func (s *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req users.NewUser
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	u, err := s.users.Create(r.Context(), currentUser(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}
