package models

import "time"

// SubmissionStatus tracks a student's attempt through one activity.
type SubmissionStatus string

// Attempt lifecycle. Transitions are monotonic: a submission never moves
// backwards (no graded -> not_started).
const (
	SubmissionStatusNotStarted SubmissionStatus = "not_started"
	SubmissionStatusInProgress SubmissionStatus = "in_progress"
	SubmissionStatusSubmitted  SubmissionStatus = "submitted"
	SubmissionStatusAbandoned  SubmissionStatus = "abandoned"
	SubmissionStatusGraded     SubmissionStatus = "graded"
)

// rank orders statuses for monotonic transition checks. Submitted and
// abandoned are alternatives at the same depth.
func (s SubmissionStatus) rank() int {
	switch s {
	case SubmissionStatusNotStarted:
		return 0
	case SubmissionStatusInProgress:
		return 1
	case SubmissionStatusSubmitted, SubmissionStatusAbandoned:
		return 2
	case SubmissionStatusGraded:
		return 3
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// step of the attempt state machine.
func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	from, to := s.rank(), next.rank()
	if from < 0 || to < 0 {
		return false
	}
	if next == SubmissionStatusGraded {
		return s == SubmissionStatusSubmitted
	}
	if s == SubmissionStatusAbandoned {
		return false
	}
	return to == from+1
}

// Submission captures one student's progress on one activity. Exactly one
// row exists per (student, activity); writes are idempotent upserts keyed
// on that pair.
type Submission struct {
	ID            string           `db:"id" json:"id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	ActivityID    string           `db:"activity_id" json:"activity_id"`
	CourseID      string           `db:"course_id" json:"course_id"`
	Status        SubmissionStatus `db:"status" json:"status"`
	Score         *float64         `db:"score" json:"score,omitempty"`
	PointsEarned  int              `db:"points_earned" json:"points_earned"`
	ProgressRatio float64          `db:"progress_ratio" json:"progress_ratio"`
	StartedAt     *time.Time       `db:"started_at" json:"started_at,omitempty"`
	SubmittedAt   *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
	GradedAt      *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// SubmissionFilter provides filters for listing submissions.
type SubmissionFilter struct {
	StudentID  string
	ActivityID string
	CourseID   string
	Status     SubmissionStatus
	Page       int
	PageSize   int
}

// ObjectiveMastery estimates a student's command of one learning objective
// within a course, on a 0-100 scale. Consumed by analytics only, never by
// access control.
type ObjectiveMastery struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	Objective    string    `db:"objective" json:"objective"`
	MasteryLevel float64   `db:"mastery_level" json:"mastery_level"`
	AttemptCount int       `db:"attempt_count" json:"attempt_count"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
