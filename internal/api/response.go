package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"studiobook/internal/booking"
	"studiobook/internal/export"
	"studiobook/internal/users"
)

var (
	errBadRequest = errors.New("bad request")
	errForbidden  = errors.New("not allowed to act on this booking")
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	var perr *booking.PersistenceError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, booking.ErrInvalidInput),
		errors.Is(err, booking.ErrInvalidReport),
		errors.Is(err, booking.ErrUnknownRoom),
		errors.Is(err, booking.ErrUnknownSlot),
		errors.Is(err, booking.ErrRoomClosed),
		errors.Is(err, users.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden), errors.Is(err, users.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, export.ErrNothingToExport):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrSlotConflict),
		errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrAlreadyReported),
		errors.Is(err, users.ErrUsernameTaken):
		return http.StatusConflict
	case errors.As(err, &perr):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Server-side failures are logged and not echoed.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusServiceUnavailable:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Storage failure")
		writeError(w, status, "storage unavailable, please retry")
	case http.StatusInternalServerError:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, status, "internal error")
	default:
		writeError(w, status, err.Error())
	}
}

// decodeJSON reads a JSON body, refusing unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	return nil
}
