package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLINEURL = "https://notify-api.line.me/api/notify"

	linePlaceholderToken = "YOUR_LINE_TOKEN_HERE"
)

// StatusError is a non-2xx answer from an HTTP notification API.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// LINE posts messages to LINE Notify.
type LINE struct {
	token  string
	apiURL string
	client *http.Client
}

func NewLINE(token, apiURL string, timeout time.Duration) *LINE {
	if apiURL == "" {
		apiURL = DefaultLINEURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LINE{
		token:  strings.TrimSpace(token),
		apiURL: apiURL,
		client: &http.Client{Timeout: timeout},
	}
}

func (l *LINE) Name() string { return "line" }

// Enabled reports whether a real token is configured.
func (l *LINE) Enabled() bool {
	return l.token != "" && l.token != linePlaceholderToken
}

func (l *LINE) Send(ctx context.Context, text string) error {
	if !l.Enabled() {
		return ErrDisabled
	}

	form := url.Values{}
	form.Set("message", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+l.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		serr.RetryAfter = time.Duration(secs) * time.Second
	}
	return serr
}
