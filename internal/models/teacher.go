package models

// Teacher is the slice of the teacher roster the scheduler needs for reference checks.
type Teacher struct {
	ID       int64  `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	Active   bool   `db:"active" json:"active"`
}
