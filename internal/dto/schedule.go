package dto

// CreateScheduleRequest describes the payload for booking a session. Dates use
// YYYY-MM-DD and times HH:MM; the end time is exclusive.
type CreateScheduleRequest struct {
	ID        int64  `json:"id" validate:"omitempty,min=1"`
	ClassID   int64  `json:"class_id" validate:"required,min=1"`
	TeacherID int64  `json:"teacher_id" validate:"required,min=1"`
	RoomID    int64  `json:"room_id" validate:"required,min=1"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
}

// UpdateScheduleRequest replaces every field of a stored session.
type UpdateScheduleRequest struct {
	ClassID   int64  `json:"class_id" validate:"required,min=1"`
	TeacherID int64  `json:"teacher_id" validate:"required,min=1"`
	RoomID    int64  `json:"room_id" validate:"required,min=1"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
	Status    string `json:"status" validate:"omitempty,oneof=ACTIVE CANCELLED active cancelled"`
}

// BulkCreateSchedulesRequest books several sessions. Without partial_on_error the batch
// is all-or-nothing.
type BulkCreateSchedulesRequest struct {
	Items          []CreateScheduleRequest `json:"items" validate:"required,min=1,max=500,dive"`
	PartialOnError bool                    `json:"partial_on_error"`
}

// BulkFailure reports one rejected item of a partial bulk request.
type BulkFailure struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScheduleQuery carries the listing filters taken from the query string.
type ScheduleQuery struct {
	TeacherID        int64  `form:"teacher_id" validate:"omitempty,min=1"`
	RoomID           int64  `form:"room_id" validate:"omitempty,min=1"`
	ClassID          int64  `form:"class_id" validate:"omitempty,min=1"`
	From             string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To               string `form:"to" validate:"omitempty,datetime=2006-01-02"`
	IncludeCancelled bool   `form:"include_cancelled"`
	Page             int    `form:"page" validate:"omitempty,min=1"`
	PageSize         int    `form:"page_size" validate:"omitempty,min=1,max=500"`
}

// DateRangeQuery bounds the per-teacher and per-room lookups; both ends are inclusive.
type DateRangeQuery struct {
	From string `form:"from" validate:"required,datetime=2006-01-02"`
	To   string `form:"to" validate:"required,datetime=2006-01-02"`
}
