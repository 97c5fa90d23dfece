package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment. Rows are
// append-only: a drop flips ACTIVE to CANCELLED and a re-enroll creates a
// fresh row, so history stays queryable.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment captures a student's seat in a course.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	CourseCode  string           `db:"course_code" json:"course_code"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CancelledAt *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentNo   string `db:"student_no" json:"student_no"`
	StudentName string `db:"student_name" json:"student_name"`
	CourseTitle string `db:"course_title" json:"course_title"`
}

// EnrollmentFilter provides filters for listing enrollment history.
type EnrollmentFilter struct {
	StudentID  string
	CourseCode string
	Status     EnrollmentStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// CourseSeatCount is one row of the ledger rehydration query.
type CourseSeatCount struct {
	CourseCode string `db:"course_code"`
	Active     int    `db:"active"`
}

// EnrollmentPair identifies an active (student, course) seat holder.
type EnrollmentPair struct {
	EnrollmentID string `db:"id"`
	StudentID    string `db:"student_id"`
	CourseCode   string `db:"course_code"`
}
