package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"studiobook/internal/model"
)

var sample = model.Booking{
	Title:     "Flash sale",
	Room:      "studio-a",
	Date:      "2024-05-01",
	Time:      "09:00",
	StaffName: "Nok",
}

func TestFormatBookingCreated(t *testing.T) {
	want := "New Booking Request!\nTitle: Flash sale\nRoom: studio-a\nDate: 2024-05-01\nTime: 09:00\nBy: Nok"
	assert.Equal(t, want, FormatBookingCreated(sample))
}

func TestLINESend(t *testing.T) {
	var gotAuth, gotType, gotMessage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		gotMessage = r.PostForm.Get("message")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	line := NewLINE("tok", srv.URL, time.Second)
	require.NoError(t, line.Send(context.Background(), "hello"))

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "application/x-www-form-urlencoded", gotType)
	assert.Equal(t, "hello", gotMessage)
}

func TestLINEDisabled(t *testing.T) {
	for _, token := range []string{"", "  ", linePlaceholderToken} {
		line := NewLINE(token, "http://127.0.0.1:1", time.Second)
		assert.False(t, line.Enabled())
		assert.ErrorIs(t, line.Send(context.Background(), "hello"), ErrDisabled)
	}
}

func TestLINEStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "slow down")
	}))
	defer srv.Close()

	err := NewLINE("tok", srv.URL, time.Second).Send(context.Background(), "hello")

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusTooManyRequests, serr.Code)
	assert.Equal(t, 7*time.Second, serr.RetryAfter)
	assert.Equal(t, "slow down", serr.Body)
}

type mockTelegram struct {
	mock.Mock
}

func (m *mockTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func TestTelegramSendsToEveryChat(t *testing.T) {
	api := new(mockTelegram)
	api.On("Send", tgbotapi.NewMessage(1, "hi")).Return(tgbotapi.Message{}, nil).Once()
	api.On("Send", tgbotapi.NewMessage(2, "hi")).Return(tgbotapi.Message{}, errors.New("boom")).Once()

	err := NewTelegram(api, []int64{1, 2}).Send(context.Background(), "hi")
	assert.ErrorContains(t, err, "chat 2")
	api.AssertExpectations(t)

	assert.ErrorIs(t, NewTelegram(api, nil).Send(context.Background(), "hi"), ErrDisabled)
}

type scriptedSender struct {
	errs  []error
	calls atomic.Int32
}

func (s *scriptedSender) Name() string { return "scripted" }

func (s *scriptedSender) Send(ctx context.Context, text string) error {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) {
		return s.errs[n]
	}
	return nil
}

func fastLimits() LimitConfig {
	return LimitConfig{Rate: 1000, Burst: 10, Retry: RetryConfig{MaxRetries: 3, RetryDelays: []time.Duration{time.Millisecond}}}
}

func TestLimitedRetries(t *testing.T) {
	logger := zerolog.New(io.Discard)

	tests := []struct {
		name      string
		errs      []error
		wantCalls int32
		wantErr   bool
	}{
		{"success", nil, 1, false},
		{"server error then success", []error{&StatusError{Code: 502}, &StatusError{Code: 503}}, 3, false},
		{"rate limited then success", []error{&StatusError{Code: 429}}, 2, false},
		{"client error is final", []error{&StatusError{Code: 400}}, 1, true},
		{"telegram blocked is final", []error{&tgbotapi.Error{Code: 403, Message: "blocked"}}, 1, true},
		{"telegram flood then success", []error{&tgbotapi.Error{Code: 429, Message: "flood"}}, 2, false},
		{"transport errors exhaust retries", []error{errors.New("a"), errors.New("b"), errors.New("c"), errors.New("d")}, 4, true},
		{"disabled passes through", []error{ErrDisabled}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scriptedSender{errs: tt.errs}
			err := NewLimited(s, fastLimits(), &logger).Send(context.Background(), "hi")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, s.calls.Load())
		})
	}
}

func TestLimitedStopsOnCancel(t *testing.T) {
	logger := zerolog.New(io.Discard)
	s := &scriptedSender{errs: []error{errors.New("down"), errors.New("down")}}
	cfg := fastLimits()
	cfg.Retry.RetryDelays = []time.Duration{time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := NewLimited(s, cfg, &logger).Send(ctx, "hi")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), s.calls.Load())
}

func TestMultiJoinsErrorsAndSkipsDisabled(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ok := &scriptedSender{}
	failing := &scriptedSender{errs: []error{errors.New("down")}}
	disabled := NewLINE("", "", time.Second)

	m := NewMulti(&logger, ok, failing, disabled)
	err := m.BookingCreated(context.Background(), sample)

	assert.ErrorContains(t, err, "down")
	assert.NotErrorIs(t, err, ErrDisabled)
	assert.Equal(t, int32(1), ok.calls.Load())
	assert.Equal(t, 3, m.Len())

	assert.NoError(t, NewMulti(&logger, ok, disabled).BookingCreated(context.Background(), sample))
	assert.NoError(t, Nop{}.BookingCreated(context.Background(), sample))
}
