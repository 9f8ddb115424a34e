package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Enrollments are never hard-deleted; leaving
// a course flips the status to LEFT.
const (
	EnrollmentStatusActive EnrollmentStatus = "ACTIVE"
	EnrollmentStatusLeft   EnrollmentStatus = "LEFT"
)

// Enrollment links a student to a course they may access. At most one row
// exists per (student, course); joins are idempotent upserts on that pair.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	CourseID       string           `db:"course_id" json:"course_id"`
	Progress       float64          `db:"progress" json:"progress"`
	LastActivityAt *time.Time       `db:"last_activity_at" json:"last_activity_at,omitempty"`
	JoinedAt       time.Time        `db:"joined_at" json:"joined_at"`
	LeftAt         *time.Time       `db:"left_at" json:"left_at,omitempty"`
	Status         EnrollmentStatus `db:"status" json:"status"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	CourseTitle string `db:"course_title" json:"course_title"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
