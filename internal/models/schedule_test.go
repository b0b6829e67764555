package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(id, class, teacher, room int64, date, start, end string) Schedule {
	r, err := ParseTimeRange(start, end)
	if err != nil {
		panic(err)
	}
	return Schedule{ID: id, ClassID: class, TeacherID: teacher, RoomID: room, Date: MustDate(date), Time: r, Status: ScheduleStatusActive}
}

func TestConflictsWith(t *testing.T) {
	base := session(1, 10, 20, 30, "2024-09-02", "09:00", "10:00")

	assert.True(t, base.ConflictsWith(session(2, 11, 20, 31, "2024-09-02", "09:30", "10:30")), "same teacher")
	assert.True(t, base.ConflictsWith(session(2, 11, 21, 30, "2024-09-02", "09:30", "10:30")), "same room")
	assert.True(t, base.ConflictsWith(session(2, 10, 21, 31, "2024-09-02", "09:30", "10:30")), "same class")
	assert.False(t, base.ConflictsWith(session(2, 11, 21, 31, "2024-09-02", "09:30", "10:30")), "nothing shared")
	assert.False(t, base.ConflictsWith(session(2, 10, 20, 30, "2024-09-03", "09:00", "10:00")), "other date")
	assert.False(t, base.ConflictsWith(session(2, 10, 20, 30, "2024-09-02", "10:00", "11:00")), "touching")
	assert.False(t, base.ConflictsWith(base), "irreflexive")

	cancelled := session(2, 10, 20, 30, "2024-09-02", "09:00", "10:00")
	cancelled.Status = ScheduleStatusCancelled
	assert.False(t, base.ConflictsWith(cancelled))
	assert.False(t, cancelled.ConflictsWith(base))
}

func TestConflictErrorCarriesDetails(t *testing.T) {
	candidate := session(0, 11, 20, 30, "2024-09-02", "09:30", "10:30")
	existing := session(7, 10, 20, 30, "2024-09-02", "09:00", "10:00")

	err := NewScheduleConflictError(candidate, []Schedule{existing})
	require.Len(t, err.Conflicts, 1)
	c := err.Conflicts[0]
	assert.Equal(t, int64(7), c.ScheduleID)
	assert.Equal(t, []string{DimensionTeacher, DimensionRoom}, c.Dimensions)
	assert.Equal(t, "teacher 20, room 30 already booked by schedule 7 on 2024-09-02 09:00-10:00", err.Error())
}

func TestParseScheduleStatus(t *testing.T) {
	s, err := ParseScheduleStatus("")
	require.NoError(t, err)
	assert.Equal(t, ScheduleStatusActive, s)

	s, err = ParseScheduleStatus("cancelled")
	require.NoError(t, err)
	assert.Equal(t, ScheduleStatusCancelled, s)

	_, err = ParseScheduleStatus("postponed")
	assert.Error(t, err)
}
