package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"studiobook/internal/api"
	"studiobook/internal/backup"
	"studiobook/internal/booking"
	"studiobook/internal/config"
	"studiobook/internal/events"
	"studiobook/internal/metrics"
	"studiobook/internal/notify"
	"studiobook/internal/reminders"
	"studiobook/internal/sheets"
	"studiobook/internal/store"
	"studiobook/internal/users"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("STUDIOBOOK_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus()
	defer events.LogActivity(bus, &logger)()
	st, err := store.Open(ctx, cfg, bus, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("open store error")
	}
	defer st.Close()

	team := users.NewService(st, 0, &logger)
	if _, err := team.SeedAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.Name); err != nil {
		logger.Fatal().Err(err).Msg("seed admin error")
	}

	notifier := newNotifier(cfg, &logger)
	svc := booking.NewService(st, loadCatalog(cfg, &logger), booking.Options{
		Bus:           bus,
		Notifier:      notifier,
		NotifyTimeout: cfg.NotificationTimeout(),
	}, &logger)

	err = config.WatchRooms(ctx, cfg.Catalog.Path, cfg.CatalogReloadInterval(),
		func(c *config.Catalog) {
			svc.SetCatalog(c)
			logger.Info().Str("catalog", c.String()).Msg("Rooms catalog loaded")
		},
		func(err error) {
			logger.Error().Err(err).Msg("Rooms catalog reload failed, keeping previous catalog")
		})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error().Err(err).Msg("rooms catalog watcher not started")
	}

	if cfg.Sheets.Enabled {
		stopSync := startSheets(ctx, cfg, st, &logger)
		defer stopSync()
	}

	if cfg.Backup.Enabled {
		startBackup(ctx, cfg, st, &logger)
	}

	if cfg.Reminders.Enabled && notifier.Len() > 0 {
		startReminders(ctx, cfg, svc, notifier, &logger)
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, st, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(api.Config{
		Address:        cfg.Server.Address,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}, svc, team, &logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().Str("backend", cfg.Storage.Backend).Msg("Studio booking service started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
		stop()
	}

	<-ctx.Done()
	svc.Wait()
	logger.Info().Msg("Studio booking service stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Logging.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// loadCatalog reads rooms.yaml, falling back to the built-in rooms when the file is absent.
func loadCatalog(cfg *config.Config, logger *zerolog.Logger) *config.Catalog {
	catalog, err := config.LoadCatalog(cfg.Catalog.Path)
	if err == nil {
		return catalog
	}
	if !errors.Is(err, fs.ErrNotExist) {
		logger.Fatal().Err(err).Str("path", cfg.Catalog.Path).Msg("invalid rooms catalog")
	}
	logger.Warn().Str("path", cfg.Catalog.Path).Msg("Rooms catalog not found, using default rooms")
	return config.DefaultCatalog()
}

func newNotifier(cfg *config.Config, logger *zerolog.Logger) *notify.Multi {
	n := cfg.Notifications
	limits := notify.DefaultLimitConfig()
	if n.RatePerSecond > 0 {
		limits.Rate = n.RatePerSecond
	}
	if n.Burst > 0 {
		limits.Burst = n.Burst
	}
	if n.MaxRetries > 0 {
		limits.Retry.MaxRetries = n.MaxRetries
	}

	var senders []notify.Sender

	line := notify.NewLINE(n.LINE.Token, n.LINE.APIURL, cfg.NotificationTimeout())
	if line.Enabled() {
		senders = append(senders, notify.NewLimited(line, limits, logger))
	}

	if n.Telegram.BotToken != "" && n.Telegram.BotToken != "YOUR_BOT_TOKEN_HERE" && len(n.Telegram.ChatIDs) > 0 {
		bot, err := tgbotapi.NewBotAPI(n.Telegram.BotToken)
		if err != nil {
			logger.Error().Err(err).Msg("telegram bot init failed, telegram notifications disabled")
		} else {
			// One sender per chat so a retry never repeats a delivered message.
			for _, chatID := range n.Telegram.ChatIDs {
				senders = append(senders, notify.NewLimited(notify.NewTelegram(bot, []int64{chatID}), limits, logger))
			}
		}
	}

	if len(senders) == 0 {
		logger.Info().Msg("No notification channel configured")
	}
	return notify.NewMulti(logger, senders...)
}

func startSheets(ctx context.Context, cfg *config.Config, st store.BookingStore, logger *zerolog.Logger) func() {
	sheetsAPI, err := sheets.NewAPI(ctx, cfg.Sheets.CredentialsFile)
	if err != nil {
		logger.Error().Err(err).Msg("google sheets init failed, mirror disabled")
		return func() {}
	}

	syncer := sheets.NewSyncer(sheetsAPI, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, logger)
	cancel, err := syncer.Start(ctx, st)
	if err != nil {
		logger.Error().Err(err).Msg("google sheets subscription failed, mirror disabled")
		return func() {}
	}
	return cancel
}

func startBackup(ctx context.Context, cfg *config.Config, st store.Store, logger *zerolog.Logger) {
	source, ok := st.(backup.Snapshotter)
	if !ok {
		logger.Warn().Str("backend", cfg.Storage.Backend).Msg("Backend has no snapshot support, backups disabled")
		return
	}

	ext := ".json"
	if cfg.Storage.Backend == config.BackendSQLite {
		ext = ".db"
	}
	svc := backup.NewService(source, backup.Config{
		Interval:      cfg.BackupInterval(),
		Path:          cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
		Ext:           ext,
	}, logger)
	go svc.Start(ctx)
}

func startReminders(ctx context.Context, cfg *config.Config, svc *booking.Service, out *notify.Multi, logger *zerolog.Logger) {
	scheduler, err := reminders.NewScheduler(reminders.SchedulerConfig{
		Timezone:      cfg.Reminders.Timezone,
		DailyHour:     cfg.Reminders.DailyHour,
		DailyMinute:   cfg.Reminders.DailyMinute,
		CheckInterval: time.Minute,
	}, svc, out, logger)
	if err != nil {
		logger.Error().Err(err).Msg("digest scheduler init failed, reminders disabled")
		return
	}
	go scheduler.Start(ctx)
}

func startHealthServer(ctx context.Context, port int, st store.Store, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := st.Ping(ctxPing); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
