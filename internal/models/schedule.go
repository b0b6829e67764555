package models

import (
	"fmt"
	"strings"

	appErrors "github.com/noah-isme/sma-schedule/pkg/errors"
)

// ScheduleStatus tracks whether a session still occupies its teacher, room and class.
type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "ACTIVE"
	ScheduleStatusCancelled ScheduleStatus = "CANCELLED"
)

// ParseScheduleStatus accepts the status names case-insensitively; empty means ACTIVE.
func ParseScheduleStatus(raw string) (ScheduleStatus, error) {
	switch ScheduleStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", ScheduleStatusActive:
		return ScheduleStatusActive, nil
	case ScheduleStatusCancelled:
		return ScheduleStatusCancelled, nil
	default:
		return "", appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("unknown schedule status %q", raw))
	}
}

// Conflict dimensions name the resource two sessions compete for.
const (
	DimensionTeacher = "TEACHER"
	DimensionRoom    = "ROOM"
	DimensionClass   = "CLASS"
)

// Schedule is one class session bound to a date, time range, teacher and room.
type Schedule struct {
	ID        int64          `json:"id"`
	ClassID   int64          `json:"class_id"`
	TeacherID int64          `json:"teacher_id"`
	RoomID    int64          `json:"room_id"`
	Date      Date           `json:"date"`
	Time      TimeRange      `json:"time"`
	Status    ScheduleStatus `json:"status"`
}

// IsActive reports whether the schedule takes part in conflict checks and default queries.
func (s Schedule) IsActive() bool {
	return s.Status == ScheduleStatusActive
}

// SharedDimensions lists the resources s and other both use, ignoring date and time.
func (s Schedule) SharedDimensions(other Schedule) []string {
	var dims []string
	if s.TeacherID == other.TeacherID {
		dims = append(dims, DimensionTeacher)
	}
	if s.RoomID == other.RoomID {
		dims = append(dims, DimensionRoom)
	}
	if s.ClassID == other.ClassID {
		dims = append(dims, DimensionClass)
	}
	return dims
}

// ConflictsWith implements the conflict relation: both active, distinct, same date,
// overlapping time and at least one shared teacher, room or class.
func (s Schedule) ConflictsWith(other Schedule) bool {
	if s.ID != 0 && s.ID == other.ID {
		return false
	}
	if !s.IsActive() || !other.IsActive() {
		return false
	}
	if s.Date != other.Date || !s.Time.Overlaps(other.Time) {
		return false
	}
	return s.TeacherID == other.TeacherID || s.RoomID == other.RoomID || s.ClassID == other.ClassID
}

// ScheduleFilter describes query params for listing schedules. Zero values mean "any".
type ScheduleFilter struct {
	TeacherID        int64
	RoomID           int64
	ClassID          int64
	From             Date
	To               Date
	IncludeCancelled bool
	Page             int
	PageSize         int
}

// ScheduleConflict describes an existing schedule that collides with a candidate.
type ScheduleConflict struct {
	ScheduleID int64          `json:"schedule_id"`
	ClassID    int64          `json:"class_id"`
	TeacherID  int64          `json:"teacher_id"`
	RoomID     int64          `json:"room_id"`
	Date       Date           `json:"date"`
	StartTime  TimeOfDay      `json:"start_time"`
	EndTime    TimeOfDay      `json:"end_time"`
	Status     ScheduleStatus `json:"status"`
	Dimensions []string       `json:"dimensions"`
}

// NewScheduleConflict reports existing against candidate.
func NewScheduleConflict(candidate, existing Schedule) ScheduleConflict {
	return ScheduleConflict{
		ScheduleID: existing.ID,
		ClassID:    existing.ClassID,
		TeacherID:  existing.TeacherID,
		RoomID:     existing.RoomID,
		Date:       existing.Date,
		StartTime:  existing.Time.Start,
		EndTime:    existing.Time.End,
		Status:     existing.Status,
		Dimensions: candidate.SharedDimensions(existing),
	}
}

// Describe renders a human readable explanation of the collision.
func (c ScheduleConflict) Describe() string {
	parts := make([]string, 0, len(c.Dimensions))
	for _, dim := range c.Dimensions {
		switch dim {
		case DimensionTeacher:
			parts = append(parts, fmt.Sprintf("teacher %d", c.TeacherID))
		case DimensionRoom:
			parts = append(parts, fmt.Sprintf("room %d", c.RoomID))
		case DimensionClass:
			parts = append(parts, fmt.Sprintf("class %d", c.ClassID))
		}
	}
	return fmt.Sprintf("%s already booked by schedule %d on %s %s-%s",
		strings.Join(parts, ", "), c.ScheduleID, c.Date, c.StartTime, c.EndTime)
}

// ScheduleConflictError is returned when a schedule collides with existing ones.
type ScheduleConflictError struct {
	Message   string             `json:"message"`
	Conflicts []ScheduleConflict `json:"conflicts"`
}

// NewScheduleConflictError builds the error from the colliding schedules.
func NewScheduleConflictError(candidate Schedule, colliding []Schedule) *ScheduleConflictError {
	conflicts := make([]ScheduleConflict, 0, len(colliding))
	for _, existing := range colliding {
		conflicts = append(conflicts, NewScheduleConflict(candidate, existing))
	}
	msg := "schedule conflicts with existing sessions"
	if len(conflicts) > 0 {
		msg = conflicts[0].Describe()
		if extra := len(conflicts) - 1; extra > 0 {
			msg = fmt.Sprintf("%s (and %d more)", msg, extra)
		}
	}
	return &ScheduleConflictError{Message: msg, Conflicts: conflicts}
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
