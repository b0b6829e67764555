package service

import "github.com/noah-isme/sma-schedule/internal/models"

// ConflictDetector finds existing schedules that collide with a candidate. excludeID names
// a schedule to ignore (the candidate's own stored version during updates); 0 means none.
type ConflictDetector interface {
	FindConflicts(candidate models.Schedule, existing []models.Schedule, excludeID int64) []models.Schedule
}

// LinearConflictDetector checks teacher, room and class in a single pass over existing.
type LinearConflictDetector struct{}

// FindConflicts returns every colliding schedule in the order of existing.
func (LinearConflictDetector) FindConflicts(candidate models.Schedule, existing []models.Schedule, excludeID int64) []models.Schedule {
	if !candidate.IsActive() {
		return nil
	}
	var conflicts []models.Schedule
	for _, other := range existing {
		if collides(candidate, other, excludeID) {
			conflicts = append(conflicts, other)
		}
	}
	return conflicts
}

// FirstConflict stops at the first collision.
func (LinearConflictDetector) FirstConflict(candidate models.Schedule, existing []models.Schedule, excludeID int64) (models.Schedule, bool) {
	if !candidate.IsActive() {
		return models.Schedule{}, false
	}
	for _, other := range existing {
		if collides(candidate, other, excludeID) {
			return other, true
		}
	}
	return models.Schedule{}, false
}

func collides(candidate, other models.Schedule, excludeID int64) bool {
	if excludeID != 0 && other.ID == excludeID {
		return false
	}
	return candidate.ConflictsWith(other)
}
