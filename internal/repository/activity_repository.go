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

// ActivityRepository handles persistence of activities.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create persists a new activity.
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = now
	}
	activity.UpdatedAt = now
	if activity.TargetMode == "" {
		activity.TargetMode = models.TargetModeAll
	}
	const query = `INSERT INTO activities (id, course_id, lesson_id, type, title, content, points, estimated_minutes, target_mode, target_student_ids, created_at, updated_at)
        VALUES (:id, :course_id, :lesson_id, :type, :title, :content, :points, :estimated_minutes, :target_mode, :target_student_ids, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, activity); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

// FindByID returns an activity by its ID.
func (r *ActivityRepository) FindByID(ctx context.Context, id string) (*models.Activity, error) {
	const query = `SELECT id, course_id, lesson_id, type, title, content, points, estimated_minutes, target_mode, target_student_ids, created_at, updated_at
        FROM activities WHERE id = $1`
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, query, id); err != nil {
		return nil, err
	}
	return &activity, nil
}

// Update persists mutable activity fields.
func (r *ActivityRepository) Update(ctx context.Context, activity *models.Activity) error {
	activity.UpdatedAt = time.Now().UTC()
	const query = `UPDATE activities SET title = :title, content = :content, points = :points,
        estimated_minutes = :estimated_minutes, target_mode = :target_mode, target_student_ids = :target_student_ids,
        lesson_id = :lesson_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, activity); err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return nil
}

// List returns activities filtered by the provided criteria.
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error) {
	base := `FROM activities a`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("a.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.LessonID != "" {
		conditions = append(conditions, fmt.Sprintf("a.lesson_id = $%d", len(args)+1))
		args = append(args, filter.LessonID)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("a.type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"title":      "a.title",
		"created_at": "a.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "a.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.course_id, a.lesson_id, a.type, a.title, a.content, a.points, a.estimated_minutes,
        a.target_mode, a.target_student_ids, a.created_at, a.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list activities: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}
	return activities, total, nil
}

// CountByCourse returns the number of activities in a course.
func (r *ActivityRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM activities WHERE course_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, courseID); err != nil {
		return 0, fmt.Errorf("count course activities: %w", err)
	}
	return total, nil
}

// ListByLesson returns a lesson's activities in creation order.
func (r *ActivityRepository) ListByLesson(ctx context.Context, lessonID string) ([]models.Activity, error) {
	const query = `SELECT id, course_id, lesson_id, type, title, content, points, estimated_minutes, target_mode, target_student_ids, created_at, updated_at
        FROM activities WHERE lesson_id = $1 ORDER BY created_at ASC`
	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, query, lessonID); err != nil {
		return nil, fmt.Errorf("list lesson activities: %w", err)
	}
	return activities, nil
}
