package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"studiobook/internal/metrics"
	"studiobook/internal/model"
	"studiobook/internal/users"
)

type ctxKey int

const userKey ctxKey = iota

func withUser(ctx context.Context, u model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// currentUser returns the authenticated caller. Routes under /api always have one.
func currentUser(r *http.Request) model.User {
	u, _ := r.Context().Value(userKey).(model.User)
	return u
}

// logRequests writes one log line per request and counts it by route pattern.
func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.IncHTTP(route, r.Method, status)

		event := s.log.Debug()
		if status >= http.StatusInternalServerError {
			event = s.log.Warn()
		}
		event.
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// authenticate checks HTTP Basic credentials against the team directory.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			unauthorized(w, "authentication required")
			return
		}

		u, err := s.users.Authenticate(r.Context(), username, password)
		if errors.Is(err, users.ErrInvalidCredentials) {
			unauthorized(w, err.Error())
			return
		}
		if err != nil {
			s.log.Error().Err(err).Str("username", username).Msg("Authentication failed")
			writeError(w, http.StatusServiceUnavailable, "user directory unavailable")
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
	})
}

func requireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		if !u.IsManager() {
			writeError(w, http.StatusForbidden, users.ErrForbidden.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="studiobook", charset="UTF-8"`)
	writeError(w, http.StatusUnauthorized, msg)
}
