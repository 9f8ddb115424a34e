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

// CourseRepository handles persistence of courses and lessons.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, title, subject, grade_level, objectives, teacher_id, archived, created_at, updated_at)
        VALUES (:id, :title, :subject, :grade_level, :objectives, :teacher_id, :archived, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, title, subject, grade_level, objectives, teacher_id, archived, created_at, updated_at
        FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Update persists mutable course fields.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, subject = :subject, grade_level = :grade_level,
        objectives = :objectives, archived = :archived, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	base := `FROM courses c`
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("c.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("c.subject = $%d", len(args)+1))
		args = append(args, filter.Subject)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("c.title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"title":      "c.title",
		"created_at": "c.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.created_at"
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

	query := fmt.Sprintf(`SELECT c.id, c.title, c.subject, c.grade_level, c.objectives, c.teacher_id, c.archived, c.created_at, c.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// CreateLesson persists a new lesson within a course.
func (r *CourseRepository) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now
	const query = `INSERT INTO lessons (id, course_id, title, position, objectives, join_code, created_at, updated_at)
        VALUES (:id, :course_id, :title, :position, :objectives, :join_code, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// FindLessonByID returns a lesson by its ID.
func (r *CourseRepository) FindLessonByID(ctx context.Context, id string) (*models.Lesson, error) {
	const query = `SELECT id, course_id, title, position, objectives, join_code, created_at, updated_at
        FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// FindLessonByJoinCode resolves a short invite code to its lesson.
func (r *CourseRepository) FindLessonByJoinCode(ctx context.Context, code string) (*models.Lesson, error) {
	const query = `SELECT id, course_id, title, position, objectives, join_code, created_at, updated_at
        FROM lessons WHERE join_code = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, code); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// ListLessons returns a course's lessons in position order.
func (r *CourseRepository) ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error) {
	const query = `SELECT id, course_id, title, position, objectives, join_code, created_at, updated_at
        FROM lessons WHERE course_id = $1 ORDER BY position ASC`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, courseID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// NextLessonPosition returns the next free position in a course.
func (r *CourseRepository) NextLessonPosition(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COALESCE(MAX(position), 0) + 1 FROM lessons WHERE course_id = $1`
	var position int
	if err := r.db.GetContext(ctx, &position, query, courseID); err != nil {
		return 0, fmt.Errorf("next lesson position: %w", err)
	}
	return position, nil
}

// UpdateLessonJoinCode rotates the invite code on a lesson.
func (r *CourseRepository) UpdateLessonJoinCode(ctx context.Context, id, code string) error {
	const query = `UPDATE lessons SET join_code = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, code); err != nil {
		return fmt.Errorf("update lesson join code: %w", err)
	}
	return nil
}
