package booking

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/model"
)

func TestCanTransition(t *testing.T) {
	statuses := []model.Status{model.StatusPending, model.StatusApproved, model.StatusRejected}
	allowed := map[[2]model.Status]bool{
		{model.StatusPending, model.StatusApproved}: true,
		{model.StatusPending, model.StatusRejected}: true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			assert.Equal(t, allowed[[2]model.Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestPrepare(t *testing.T) {
	now := time.Date(2024, 4, 20, 10, 0, 0, 0, time.UTC)
	viewers := 5
	candidate := model.Booking{
		Room:          "A",
		Date:          "2024-05-01",
		Time:          "09:00",
		Title:         "Launch",
		Status:        model.StatusApproved,
		ActualViewers: &viewers,
	}

	b, err := Prepare(nil, candidate, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Nil(t, b.ActualViewers)
	assert.Nil(t, b.SalesAmount)
	assert.Equal(t, now, b.CreatedAt)
	assert.Equal(t, int64(1), b.Version)

	existing := []model.Booking{{Room: "A", Date: "2024-05-01", Time: "09:00", Status: model.StatusApproved}}
	_, err = Prepare(existing, candidate, now)
	assert.ErrorIs(t, err, ErrSlotConflict)

	existing[0].Status = model.StatusRejected
	_, err = Prepare(existing, candidate, now)
	assert.NoError(t, err)
}

func TestTransition(t *testing.T) {
	pending := model.Booking{ID: "1", Status: model.StatusPending}

	approved, err := Transition(pending, model.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)
	assert.Equal(t, model.StatusPending, pending.Status)

	tests := []struct {
		name string
		from model.Status
		to   model.Status
	}{
		{"re-approve", model.StatusApproved, model.StatusApproved},
		{"approved to rejected", model.StatusApproved, model.StatusRejected},
		{"approved to pending", model.StatusApproved, model.StatusPending},
		{"rejected to approved", model.StatusRejected, model.StatusApproved},
		{"rejected to pending", model.StatusRejected, model.StatusPending},
		{"pending to pending", model.StatusPending, model.StatusPending},
		{"unknown target", model.StatusPending, model.Status("CANCELLED")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transition(model.Booking{Status: tt.from}, tt.to)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestApplyReport(t *testing.T) {
	approved := model.Booking{ID: "1", Status: model.StatusApproved}

	b, err := ApplyReport(approved, 120, 4500)
	require.NoError(t, err)
	require.NotNil(t, b.ActualViewers)
	require.NotNil(t, b.SalesAmount)
	assert.Equal(t, 120, *b.ActualViewers)
	assert.Equal(t, 4500.0, *b.SalesAmount)
	assert.Nil(t, approved.ActualViewers)

	_, err = ApplyReport(b, 1, 1)
	assert.ErrorIs(t, err, ErrAlreadyReported)

	_, err = ApplyReport(model.Booking{Status: model.StatusPending}, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = ApplyReport(model.Booking{Status: model.StatusRejected}, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = ApplyReport(approved, -1, 1)
	assert.ErrorIs(t, err, ErrInvalidReport)
	_, err = ApplyReport(approved, 1, -0.5)
	assert.ErrorIs(t, err, ErrInvalidReport)
	_, err = ApplyReport(approved, 1, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidReport)

	zero, err := ApplyReport(approved, 0, 0)
	require.NoError(t, err)
	assert.True(t, zero.Reported())
}
