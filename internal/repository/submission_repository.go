package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumen-ed/lumen-api/internal/models"
)

// SubmissionRepository handles persistence of per-activity progress records.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Upsert writes a submission keyed on (student_id, activity_id). Repeated
// writes for the same pair merge into one row, which keeps completion
// idempotent under retries and double-clicks.
func (r *SubmissionRepository) Upsert(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	submission.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO submissions (id, student_id, activity_id, course_id, status, score, points_earned, progress_ratio, started_at, submitted_at, graded_at, updated_at)
        VALUES (:id, :student_id, :activity_id, :course_id, :status, :score, :points_earned, :progress_ratio, :started_at, :submitted_at, :graded_at, :updated_at)
        ON CONFLICT (student_id, activity_id)
        DO UPDATE SET status = EXCLUDED.status, score = EXCLUDED.score, points_earned = EXCLUDED.points_earned,
            progress_ratio = EXCLUDED.progress_ratio, started_at = COALESCE(submissions.started_at, EXCLUDED.started_at),
            submitted_at = EXCLUDED.submitted_at, graded_at = EXCLUDED.graded_at, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

// FindByStudentAndActivity returns the submission for a (student, activity) pair.
func (r *SubmissionRepository) FindByStudentAndActivity(ctx context.Context, studentID, activityID string) (*models.Submission, error) {
	const query = `SELECT id, student_id, activity_id, course_id, status, score, points_earned, progress_ratio, started_at, submitted_at, graded_at, updated_at
        FROM submissions WHERE student_id = $1 AND activity_id = $2`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, studentID, activityID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListByCourse returns all submissions recorded for a course.
func (r *SubmissionRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Submission, error) {
	const query = `SELECT id, student_id, activity_id, course_id, status, score, points_earned, progress_ratio, started_at, submitted_at, graded_at, updated_at
        FROM submissions WHERE course_id = $1`
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, courseID); err != nil {
		return nil, fmt.Errorf("list course submissions: %w", err)
	}
	return submissions, nil
}

// ListByStudentAndCourse returns one student's submissions within a course.
func (r *SubmissionRepository) ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.Submission, error) {
	const query = `SELECT id, student_id, activity_id, course_id, status, score, points_earned, progress_ratio, started_at, submitted_at, graded_at, updated_at
        FROM submissions WHERE student_id = $1 AND course_id = $2`
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list student submissions: %w", err)
	}
	return submissions, nil
}

// List returns submissions filtered by the provided criteria.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	base := `FROM submissions s`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ActivityID != "" {
		conditions = append(conditions, fmt.Sprintf("s.activity_id = $%d", len(args)+1))
		args = append(args, filter.ActivityID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.student_id, s.activity_id, s.course_id, s.status, s.score, s.points_earned,
        s.progress_ratio, s.started_at, s.submitted_at, s.graded_at, s.updated_at
        %s ORDER BY s.updated_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return submissions, total, nil
}
