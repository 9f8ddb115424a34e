package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumen-ed/lumen-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Upsert inserts an enrollment keyed on (student_id, course_id). Re-joining
// an already-enrolled course reactivates the row and is otherwise a no-op,
// so double-clicks and retries never produce duplicates or errors.
func (r *EnrollmentRepository) Upsert(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.JoinedAt.IsZero() {
		enrollment.JoinedAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, student_id, course_id, progress, last_activity_at, joined_at, left_at, status)
        VALUES (:id, :student_id, :course_id, :progress, :last_activity_at, :joined_at, :left_at, :status)
        ON CONFLICT (student_id, course_id)
        DO UPDATE SET status = EXCLUDED.status, left_at = NULL`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}
	return nil
}

// FindByStudentAndCourse returns the enrollment for a (student, course) pair.
func (r *EnrollmentRepository) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, progress, last_activity_at, joined_at, left_at, status
        FROM enrollments WHERE student_id = $1 AND course_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ExistsActive checks whether a student holds an active enrollment.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// ListActiveByCourse returns active enrollments for a course.
func (r *EnrollmentRepository) ListActiveByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, progress, last_activity_at, joined_at, left_at, status
        FROM enrollments WHERE course_id = $1 AND status = $2`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, courseID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return enrollments, nil
}

// ListActiveByStudent returns a student's active enrollments.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, progress, last_activity_at, joined_at, left_at, status
        FROM enrollments WHERE student_id = $1 AND status = $2`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// List returns enrollments with student and course context.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN users u ON u.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"joined_at":    "e.joined_at",
		"student_name": "u.full_name",
		"course_title": "c.title",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.joined_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_id, e.progress, e.last_activity_at, e.joined_at, e.left_at, e.status,
        u.full_name AS student_name, c.title AS course_title
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// UpdateProgress stores the rolled-up progress percentage and activity stamp.
func (r *EnrollmentRepository) UpdateProgress(ctx context.Context, studentID, courseID string, progress float64, lastActivityAt time.Time) error {
	const query = `UPDATE enrollments SET progress = $3, last_activity_at = $4 WHERE student_id = $1 AND course_id = $2`
	if _, err := r.db.ExecContext(ctx, query, studentID, courseID, progress, lastActivityAt); err != nil {
		return fmt.Errorf("update enrollment progress: %w", err)
	}
	return nil
}

// UpdateStatus updates status and left_at for an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, leftAt *time.Time) error {
	const query = `UPDATE enrollments SET status = $2, left_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, leftAt); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}
