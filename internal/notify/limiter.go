package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	if len(c.RetryDelays) == 0 {
		return time.Second
	}
	if attempt < len(c.RetryDelays) {
		return c.RetryDelays[attempt]
	}
	return c.RetryDelays[len(c.RetryDelays)-1]
}

// LimitConfig configures a Limited sender.
type LimitConfig struct {
	Rate  float64 // messages per second
	Burst int
	Retry RetryConfig
}

func DefaultLimitConfig() LimitConfig {
	return LimitConfig{Rate: 1, Burst: 5, Retry: DefaultRetryConfig()}
}

// Limited wraps a Sender with a token bucket and retries.
type Limited struct {
	next    Sender
	limiter *rate.Limiter
	retry   RetryConfig
	logger  zerolog.Logger
}

func NewLimited(next Sender, cfg LimitConfig, logger *zerolog.Logger) *Limited {
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		retry:   cfg.Retry,
		logger:  logger.With().Str("component", "notify").Str("channel", next.Name()).Logger(),
	}
}

func (l *Limited) Name() string { return l.next.Name() }

// Send waits for the limiter, then tries up to MaxRetries+1 times. Rate limit
// answers wait for the server's Retry-After; other client errors are final.
func (l *Limited) Send(ctx context.Context, text string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= l.retry.MaxRetries; attempt++ {
		err := l.next.Send(ctx, text)
		if err == nil || errors.Is(err, ErrDisabled) {
			return err
		}
		lastErr = err

		wait, retry := classify(err)
		if !retry {
			return err
		}
		if attempt == l.retry.MaxRetries {
			break
		}
		if wait == 0 {
			wait = l.retry.delay(attempt)
		}

		l.logger.Info().Err(err).Int("attempt", attempt+1).Dur("delay", wait).Msg("Retrying notification")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// classify decides whether err is worth retrying and how long the server asked to wait.
func classify(err error) (wait time.Duration, retry bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var serr *StatusError
	if errors.As(err, &serr) {
		switch {
		case serr.Code == http.StatusTooManyRequests:
			return serr.RetryAfter, true
		case serr.Code >= 400 && serr.Code < 500:
			return 0, false
		}
		return 0, true
	}

	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		switch {
		case tgErr.Code == http.StatusTooManyRequests:
			return time.Duration(tgErr.RetryAfter) * time.Second, true
		case tgErr.Code == http.StatusBadRequest, tgErr.Code == http.StatusForbidden:
			return 0, false
		}
	}
	return 0, true
}
