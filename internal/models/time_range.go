package models

import (
	"encoding/json"
	"fmt"
	"time"

	appErrors "github.com/noah-isme/sma-schedule/pkg/errors"
)

const minutesPerDay = 24 * 60

// TimeOfDay is a naive wall-clock time expressed in minutes since midnight.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from hours and minutes.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("invalid time of day %02d:%02d", hour, minute))
	}
	return TimeOfDay(hour*60 + minute), nil
}

// ParseTimeOfDay parses the HH:MM form.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	if len(raw) != 5 {
		return 0, appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("invalid time of day %q, expected HH:MM", raw))
	}
	parsed, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, fmt.Sprintf("invalid time of day %q, expected HH:MM", raw))
	}
	return NewTimeOfDay(parsed.Hour(), parsed.Minute())
}

// MustTimeOfDay is ParseTimeOfDay for literals; it panics on malformed input.
func MustTimeOfDay(raw string) TimeOfDay {
	t, err := ParseTimeOfDay(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Valid reports whether t lies within a single day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < minutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalJSON encodes the time as "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes "HH:MM".
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TimeRange is a half-open interval [Start, End) of wall-clock time on a single date.
type TimeRange struct {
	Start TimeOfDay `json:"start_time"`
	End   TimeOfDay `json:"end_time"`
}

// NewTimeRange builds a range, rejecting zero-length and inverted ranges.
func NewTimeRange(start, end TimeOfDay) (TimeRange, error) {
	r := TimeRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return TimeRange{}, err
	}
	return r, nil
}

// ParseTimeRange parses start and end in HH:MM form.
func ParseTimeRange(start, end string) (TimeRange, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return TimeRange{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return TimeRange{}, err
	}
	return NewTimeRange(s, e)
}

// Validate re-checks well-formedness for ranges built without the constructor.
func (r TimeRange) Validate() error {
	if !r.Start.Valid() || !r.End.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidRange, fmt.Sprintf("time range %s-%s is outside a single day", r.Start, r.End))
	}
	if r.End <= r.Start {
		return appErrors.Clone(appErrors.ErrInvalidRange, fmt.Sprintf("end time %s must be after start time %s", r.End, r.Start))
	}
	return nil
}

// Overlaps reports whether the two ranges share any instant. Touching endpoints do not overlap.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// Duration returns the length of the range in minutes.
func (r TimeRange) Duration() int {
	return int(r.End - r.Start)
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}
