package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// ActivityType enumerates supported learning unit types.
type ActivityType string

const (
	ActivityTypeQuiz          ActivityType = "quiz"
	ActivityTypeReading       ActivityType = "reading"
	ActivityTypeVideo         ActivityType = "video"
	ActivityTypePDF           ActivityType = "pdf"
	ActivityTypeInteractive   ActivityType = "interactive"
	ActivityTypeCollaborative ActivityType = "collaborative"
	ActivityTypeAIChat        ActivityType = "ai_chat"
	ActivityTypeCustom        ActivityType = "custom"
)

// Gradeable reports whether a teacher or auto grader may move a submission
// to graded. Formative types terminate at submitted.
func (t ActivityType) Gradeable() bool {
	return t == ActivityTypeQuiz || t == ActivityTypeCustom
}

// TargetMode determines which enrolled students may see an activity.
type TargetMode string

const (
	TargetModeAll      TargetMode = "all"
	TargetModeSelected TargetMode = "selected"
)

// Activity is a single learning unit with a completion contract and point
// value. Content shape depends on Type and is opaque to the service layer.
type Activity struct {
	ID               string          `db:"id" json:"id"`
	CourseID         string          `db:"course_id" json:"course_id"`
	LessonID         *string         `db:"lesson_id" json:"lesson_id,omitempty"`
	Type             ActivityType    `db:"type" json:"type"`
	Title            string          `db:"title" json:"title"`
	Content          json.RawMessage `db:"content" json:"content,omitempty"`
	Points           int             `db:"points" json:"points"`
	EstimatedMinutes int             `db:"estimated_minutes" json:"estimated_minutes"`
	TargetMode       TargetMode      `db:"target_mode" json:"target_mode"`
	TargetStudentIDs pq.StringArray  `db:"target_student_ids" json:"target_student_ids,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// ActivityFilter provides filters for listing activities.
type ActivityFilter struct {
	CourseID  string
	LessonID  string
	Type      ActivityType
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Assignment is a teacher-authored bundle binding activities to a due date
// and grading settings. It is a separate access-policy input from the
// activity-level target and is never silently merged with it.
type Assignment struct {
	ID          string     `db:"id" json:"id"`
	CourseID    string     `db:"course_id" json:"course_id"`
	Title       string     `db:"title" json:"title"`
	DueAt       *time.Time `db:"due_at" json:"due_at,omitempty"`
	PointBudget int        `db:"point_budget" json:"point_budget"`
	Published   bool       `db:"published" json:"published"`
	CreatedBy   string     `db:"created_by" json:"created_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// AssignmentActivity links an activity into an assignment bundle.
type AssignmentActivity struct {
	AssignmentID string `db:"assignment_id" json:"assignment_id"`
	ActivityID   string `db:"activity_id" json:"activity_id"`
	Required     bool   `db:"required" json:"required"`
	Position     int    `db:"position" json:"position"`
}

// AssignmentDetail enriches an assignment with its bundled activities.
type AssignmentDetail struct {
	Assignment
	Activities []AssignmentActivity `json:"activities"`
}
