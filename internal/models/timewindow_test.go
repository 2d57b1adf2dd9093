package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeWindowValidate(t *testing.T) {
	require.NoError(t, TimeWindow{Start: "09:00", End: "10:00"}.Validate())
	require.NoError(t, TimeWindow{Start: "23:00", End: "24:00"}.Validate())

	assert.Error(t, TimeWindow{Start: "10:00", End: "10:00"}.Validate())
	assert.Error(t, TimeWindow{Start: "10:00", End: "09:00"}.Validate())
	assert.Error(t, TimeWindow{Start: "9am", End: "10:00"}.Validate())
	assert.Error(t, TimeWindow{Start: "09:00", End: "24:30"}.Validate())
}

func TestTimeWindowOverlaps(t *testing.T) {
	base := TimeWindow{Start: "09:00", End: "10:00"}

	assert.True(t, base.Overlaps(TimeWindow{Start: "09:30", End: "10:30"}))
	assert.True(t, base.Overlaps(TimeWindow{Start: "08:00", End: "09:01"}))
	assert.True(t, base.Overlaps(base))

	// Shared boundary is not an overlap: end is exclusive.
	assert.False(t, base.Overlaps(TimeWindow{Start: "10:00", End: "11:00"}))
	assert.False(t, base.Overlaps(TimeWindow{Start: "08:00", End: "09:00"}))
}

func TestTimeWindowContains(t *testing.T) {
	outer := TimeWindow{Start: "08:00", End: "12:00"}

	assert.True(t, outer.Contains(TimeWindow{Start: "09:00", End: "10:00"}))
	assert.True(t, outer.Contains(outer))
	assert.False(t, outer.Contains(TimeWindow{Start: "11:30", End: "12:30"}))
	assert.False(t, outer.Contains(TimeWindow{Start: "07:59", End: "09:00"}))
}

func TestTimeWindowShift(t *testing.T) {
	window := TimeWindow{Start: "09:00", End: "10:00"}

	assert.Equal(t, TimeWindow{Start: "09:30", End: "10:30"}, window.Shift(30))
	assert.Equal(t, TimeWindow{Start: "08:00", End: "09:00"}, window.Shift(-60))

	// Shifts past either edge of the day are ignored.
	assert.Equal(t, window, window.Shift(-10*60))
	assert.Equal(t, window, window.Shift(15*60))
}

func TestNewTimeWindow(t *testing.T) {
	assert.Equal(t, TimeWindow{Start: "09:15", End: "10:45"}, NewTimeWindow(9*60+15, 10*60+45))
	assert.Equal(t, "24:00", NewTimeWindow(23*60, 24*60).End)
}

func TestClockToMinutes(t *testing.T) {
	minutes, err := ClockToMinutes("13:30")
	require.NoError(t, err)
	assert.Equal(t, 13*60+30, minutes)

	minutes, err = ClockToMinutes("24:00")
	require.NoError(t, err)
	assert.Equal(t, 24*60, minutes)

	_, err = ClockToMinutes("24:01")
	assert.Error(t, err)
	_, err = ClockToMinutes("noon")
	assert.Error(t, err)
}
