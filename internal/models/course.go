package models

import "time"

// CourseStatus marks whether a course is open for admission.
type CourseStatus string

const (
	CourseStatusOpen   CourseStatus = "OPEN"
	CourseStatusClosed CourseStatus = "CLOSED"
)

// Course represents an offered course keyed by its unique code. Capacity is
// the maximum number of simultaneously active enrollments; the occupied count
// is derived from enrollment rows, never stored here.
type Course struct {
	Code        string       `db:"code" json:"code"`
	Title       string       `db:"title" json:"title"`
	ProfessorNo string       `db:"professor_no" json:"professor_no"`
	Capacity    int          `db:"capacity" json:"capacity"`
	Classroom   string       `db:"classroom" json:"classroom"`
	Schedule    string       `db:"schedule" json:"schedule"`
	Status      CourseStatus `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with its live occupancy.
type CourseDetail struct {
	Course
	Occupied int `db:"occupied" json:"occupied"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	Search      string
	ProfessorNo string
	Status      CourseStatus
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
