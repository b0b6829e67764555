package models

// Class represents an academic class or section together with the course it follows.
type Class struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	CourseID int64  `db:"course_id" json:"course_id"`
}
