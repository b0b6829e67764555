package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-schedule/internal/models"
)

func activeSession(id, classID, teacherID, roomID int64, start, end string) models.Schedule {
	s := session(classID, teacherID, roomID, "2025-03-10", start, end)
	s.ID = id
	s.Status = models.ScheduleStatusActive
	return s
}

func TestLinearConflictDetectorFindsEveryCollision(t *testing.T) {
	existing := []models.Schedule{
		activeSession(1, 1, 1, 1, "08:00", "09:00"),
		activeSession(2, 2, 2, 2, "08:30", "09:30"),
		activeSession(3, 3, 3, 3, "08:00", "09:00"),
		activeSession(4, 1, 4, 4, "09:00", "10:00"),
	}
	candidate := activeSession(0, 1, 2, 9, "08:45", "09:15")

	got := LinearConflictDetector{}.FindConflicts(candidate, existing, 0)
	assert.Equal(t, []int64{1, 2, 4}, scheduleIDs(got))
}

func TestLinearConflictDetectorSkipsExcludedAndCancelled(t *testing.T) {
	cancelled := activeSession(2, 1, 1, 1, "08:00", "09:00")
	cancelled.Status = models.ScheduleStatusCancelled
	existing := []models.Schedule{activeSession(1, 1, 1, 1, "08:00", "09:00"), cancelled}

	candidate := activeSession(1, 1, 1, 1, "08:00", "09:00")
	assert.Empty(t, LinearConflictDetector{}.FindConflicts(candidate, existing, 1))

	candidate.Status = models.ScheduleStatusCancelled
	candidate.ID = 0
	assert.Empty(t, LinearConflictDetector{}.FindConflicts(candidate, existing, 0))
}

func TestLinearConflictDetectorFirstConflict(t *testing.T) {
	existing := []models.Schedule{
		activeSession(1, 5, 5, 5, "08:00", "09:00"),
		activeSession(2, 1, 6, 6, "08:00", "09:00"),
		activeSession(3, 1, 7, 7, "08:00", "09:00"),
	}
	first, ok := LinearConflictDetector{}.FirstConflict(activeSession(0, 1, 8, 8, "08:30", "08:45"), existing, 0)
	assert.True(t, ok)
	assert.Equal(t, int64(2), first.ID)

	_, ok = LinearConflictDetector{}.FirstConflict(activeSession(0, 1, 8, 8, "09:00", "09:30"), existing, 0)
	assert.False(t, ok)
}

func scheduleIDs(list []models.Schedule) []int64 {
	ids := make([]int64, 0, len(list))
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	return ids
}
