package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-schedule/pkg/errors"
)

func tr(t *testing.T, start, end string) TimeRange {
	t.Helper()
	r, err := ParseTimeRange(start, end)
	require.NoError(t, err)
	return r
}

func TestNewTimeRangeRejectsEmptyAndInverted(t *testing.T) {
	cases := []struct{ start, end string }{
		{"09:00", "09:00"},
		{"10:00", "09:00"},
		{"23:59", "00:00"},
	}
	for _, tc := range cases {
		_, err := ParseTimeRange(tc.start, tc.end)
		require.Error(t, err, "%s-%s", tc.start, tc.end)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidRange))
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(570), tod)
	assert.Equal(t, "09:30", tod.String())

	for _, raw := range []string{"9:30", "24:00", "12:60", "ab:cd", ""} {
		_, err := ParseTimeOfDay(raw)
		assert.Error(t, err, raw)
	}
}

func TestOverlapsHalfOpen(t *testing.T) {
	assert.False(t, tr(t, "09:00", "10:00").Overlaps(tr(t, "10:00", "11:00")))
	assert.True(t, tr(t, "09:00", "10:00").Overlaps(tr(t, "09:30", "10:30")))
	assert.True(t, tr(t, "09:00", "12:00").Overlaps(tr(t, "10:00", "11:00")))
	assert.True(t, tr(t, "09:00", "10:00").Overlaps(tr(t, "09:00", "10:00")))
	assert.False(t, tr(t, "07:00", "08:00").Overlaps(tr(t, "13:00", "14:00")))
}

func TestOverlapsSymmetric(t *testing.T) {
	var ranges []TimeRange
	for start := TimeOfDay(0); start < 6*60; start += 45 {
		for length := TimeOfDay(15); length <= 120; length += 35 {
			r, err := NewTimeRange(start, start+length)
			require.NoError(t, err)
			ranges = append(ranges, r)
		}
	}
	for _, a := range ranges {
		for _, b := range ranges {
			assert.Equal(t, a.Overlaps(b), b.Overlaps(a), "%s vs %s", a, b)
		}
	}
}

func TestTimeRangeJSON(t *testing.T) {
	raw, err := json.Marshal(tr(t, "08:15", "09:45"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"start_time":"08:15","end_time":"09:45"}`, string(raw))

	var decoded TimeRange
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 90, decoded.Duration())
}
