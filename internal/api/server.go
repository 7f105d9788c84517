// Package api exposes the booking engine over HTTP for the browser client.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"studiobook/internal/booking"
	"studiobook/internal/users"
)

type Config struct {
	Address        string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	bookings *booking.Service
	users    *users.Service
	now      func() time.Time
	log      zerolog.Logger
	server   *http.Server
}

func NewHTTPServer(cfg Config, bookings *booking.Service, team *users.Service, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		bookings: bookings,
		users:    team,
		now:      time.Now,
		log:      logger.With().Str("component", "api").Logger(),
	}

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.routes(cfg.AllowedOrigins),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

func (s *HTTPServer) routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/me", s.handleMe)
		r.Get("/rooms", s.handleRooms)
		r.Get("/slots", s.handleSlots)
		r.Get("/calendar", s.handleCalendar)

		r.Post("/bookings", s.handleSubmit)
		r.Get("/bookings", s.handleListBookings)
		r.Post("/bookings/{id}/report", s.handleReport)

		r.Group(func(r chi.Router) {
			r.Use(requireManager)

			r.Post("/bookings/{id}/approve", s.handleApprove)
			r.Post("/bookings/{id}/reject", s.handleReject)
			r.Get("/stats", s.handleStats)
			r.Get("/export", s.handleExport)
			r.Get("/users", s.handleListUsers)
			r.Post("/users", s.handleCreateUser)
		})
	})

	return r
}

// Handler returns the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

// Start blocks serving until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
