package common

import (
	"testing"
	"time"

	"promarket/src/models"
	"promarket/src/types"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddDuration(t *testing.T) {
	start := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	got := AddDuration(start, Duration{Value: 4, Unit: types.UNIT_HOURS})
	assert.Equal(t, time.Date(2024, 1, 10, 13, 0, 0, 0, time.UTC), got)

	got = AddDuration(start, Duration{Value: 3, Unit: types.UNIT_DAYS})
	assert.Equal(t, time.Date(2024, 1, 13, 9, 0, 0, 0, time.UTC), got, "day arithmetic preserves time-of-day")

	got = AddDuration(start, Duration{})
	assert.Equal(t, start, got)
}

func TestComputeScheduleWindowDays(t *testing.T) {
	w := ComputeScheduleWindow(
		date(2024, 1, 10),
		Duration{Value: 3, Unit: types.UNIT_DAYS},
		Duration{Value: 1, Unit: types.UNIT_DAYS},
	)
	assert.Equal(t, date(2024, 1, 13), w.ExecutionEnd)
	assert.Equal(t, date(2024, 1, 13), w.BufferStart)
	assert.Equal(t, date(2024, 1, 14), w.BufferEnd)
	assert.Equal(t, date(2024, 1, 14), w.ReservedEnd())
	assert.True(t, w.HasBuffer())
}

func TestComputeScheduleWindowHours(t *testing.T) {
	start := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	w := ComputeScheduleWindow(
		start,
		Duration{Value: 4, Unit: types.UNIT_HOURS},
		Duration{Value: 2, Unit: types.UNIT_HOURS},
	)
	assert.Equal(t, time.Date(2024, 1, 10, 13, 0, 0, 0, time.UTC), w.ExecutionEnd)
	assert.Equal(t, time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC), w.BufferEnd)
}

func TestComputeScheduleWindowZeroBuffer(t *testing.T) {
	w := ComputeScheduleWindow(
		date(2024, 1, 10),
		Duration{Value: 2, Unit: types.UNIT_DAYS},
		Duration{},
	)
	assert.Equal(t, w.ExecutionEnd, w.BufferEnd)
	assert.False(t, w.HasBuffer())
	assert.Equal(t, w.ExecutionEnd, w.ReservedEnd())
}

func TestEarliestBookableDate(t *testing.T) {
	now := date(2024, 1, 10)
	earliest := EarliestBookableDate(now, Duration{Value: 2, Unit: types.UNIT_DAYS})
	assert.Equal(t, date(2024, 1, 12), earliest)

	// Same-day request with a two day preparation lead is infeasible.
	requested := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	assert.True(t, requested.Before(earliest))

	// Three days out clears the lead time.
	requested = date(2024, 1, 13)
	assert.False(t, requested.Before(earliest))
}

func TestOverlaps(t *testing.T) {
	blockStart := date(2024, 2, 1)
	blockEnd := date(2024, 2, 5)

	// Proper overlap.
	assert.True(t, Overlaps(date(2024, 2, 3), date(2024, 2, 6), blockStart, blockEnd))
	// Fully inside.
	assert.True(t, Overlaps(date(2024, 2, 2), date(2024, 2, 3), blockStart, blockEnd))
	// Boundary touch is allowed: the buffer is already inside the
	// reservation window, so back-to-back bookings are legal.
	assert.False(t, Overlaps(date(2024, 2, 5), date(2024, 2, 6), blockStart, blockEnd))
	assert.False(t, Overlaps(date(2024, 1, 30), date(2024, 2, 1), blockStart, blockEnd))
	// Disjoint.
	assert.False(t, Overlaps(date(2024, 2, 6), date(2024, 2, 7), blockStart, blockEnd))
}

func TestFindConflict(t *testing.T) {
	w := ComputeScheduleWindow(
		date(2024, 2, 3),
		Duration{Value: 2, Unit: types.UNIT_DAYS},
		Duration{Value: 1, Unit: types.UNIT_DAYS},
	)
	busy := []Interval{
		{Start: date(2024, 1, 1), End: date(2024, 1, 2), Reason: "january"},
		{Start: date(2024, 2, 5), End: date(2024, 2, 7), Reason: "february"},
	}
	// Window is [02-03, 02-06): execution to 02-05 plus one buffer day.
	conflict := FindConflict(w, busy)
	assert.NotNil(t, conflict)
	assert.Equal(t, "february", conflict.Reason)

	// Without the buffer the window ends exactly where the block
	// starts, which is allowed.
	w = ComputeScheduleWindow(date(2024, 2, 3), Duration{Value: 2, Unit: types.UNIT_DAYS}, Duration{})
	assert.Nil(t, FindConflict(w, busy))
}

func TestApplyScheduleToBookingRoundTrip(t *testing.T) {
	res := &ScheduleResult{
		Window: ComputeScheduleWindow(
			date(2024, 3, 1),
			Duration{Value: 2, Unit: types.UNIT_DAYS},
			Duration{Value: 1, Unit: types.UNIT_DAYS},
		),
		Resources: []uint{4, 7},
	}
	var booking models.Booking
	ApplyScheduleToBooking(&booking, res)

	w, ok := BookingWindow(&booking)
	assert.True(t, ok)
	assert.Equal(t, res.Window.Start, w.Start)
	assert.Equal(t, res.Window.ExecutionEnd, w.ExecutionEnd)
	assert.Equal(t, res.Window.BufferEnd, w.BufferEnd)
	assert.Equal(t, []uint{4, 7}, BookingResourceIDs(&booking))
}

func TestApplyScheduleZeroBufferOmitsBufferBounds(t *testing.T) {
	res := &ScheduleResult{
		Window:    ComputeScheduleWindow(date(2024, 3, 1), Duration{Value: 2, Unit: types.UNIT_DAYS}, Duration{}),
		Resources: []uint{4},
	}
	var booking models.Booking
	ApplyScheduleToBooking(&booking, res)
	assert.Nil(t, booking.ScheduledBufferStartDate)
	assert.Nil(t, booking.ScheduledBufferEndDate)
	assert.Nil(t, booking.ScheduledBufferUnit)
}

func TestBookingResourceIDsDeduplicates(t *testing.T) {
	booking := models.Booking{
		AssignedTeamMembers: types.JSONBArray{float64(3), float64(3), float64(9), "junk", float64(-1)},
	}
	assert.Equal(t, []uint{3, 9}, BookingResourceIDs(&booking))
}
