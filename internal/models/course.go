package models

import (
	"time"

	"github.com/lib/pq"
)

// Course is a teacher-owned container for lessons and activities.
// Courses are never hard-deleted; enrollments and activities keep
// referencing them after archival.
type Course struct {
	ID         string         `db:"id" json:"id"`
	Title      string         `db:"title" json:"title"`
	Subject    string         `db:"subject" json:"subject"`
	GradeLevel string         `db:"grade_level" json:"grade_level"`
	Objectives pq.StringArray `db:"objectives" json:"objectives"`
	TeacherID  string         `db:"teacher_id" json:"teacher_id"`
	Archived   bool           `db:"archived" json:"archived"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	TeacherID string
	Subject   string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Lesson groups ordered activities inside a course. Its objectives are a
// subset of the course objectives.
type Lesson struct {
	ID         string         `db:"id" json:"id"`
	CourseID   string         `db:"course_id" json:"course_id"`
	Title      string         `db:"title" json:"title"`
	Position   int            `db:"position" json:"position"`
	Objectives pq.StringArray `db:"objectives" json:"objectives"`
	JoinCode   string         `db:"join_code" json:"join_code,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// LessonDescriptor is the minimal lesson view returned by the join flow.
type LessonDescriptor struct {
	LessonID    string `json:"lesson_id"`
	LessonTitle string `json:"lesson_title"`
	CourseID    string `json:"course_id"`
	CourseTitle string `json:"course_title"`
}
