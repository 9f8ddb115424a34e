package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

// Join codes avoid ambiguous characters (0/O, 1/I/L).
const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
const joinCodeLength = 6

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Update(ctx context.Context, course *models.Course) error
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	CreateLesson(ctx context.Context, lesson *models.Lesson) error
	FindLessonByID(ctx context.Context, id string) (*models.Lesson, error)
	ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error)
	NextLessonPosition(ctx context.Context, courseID string) (int, error)
	UpdateLessonJoinCode(ctx context.Context, id, code string) error
}

// CreateCourseRequest is the authoring payload for a new course.
type CreateCourseRequest struct {
	Title      string   `json:"title" validate:"required,min=3"`
	Subject    string   `json:"subject" validate:"required"`
	GradeLevel string   `json:"grade_level"`
	Objectives []string `json:"objectives"`
}

// UpdateCourseRequest carries partial course updates.
type UpdateCourseRequest struct {
	Title      *string  `json:"title" validate:"omitempty,min=3"`
	Subject    *string  `json:"subject"`
	GradeLevel *string  `json:"grade_level"`
	Objectives []string `json:"objectives"`
	Archived   *bool    `json:"archived"`
}

// CreateLessonRequest is the authoring payload for a new lesson.
type CreateLessonRequest struct {
	Title      string   `json:"title" validate:"required"`
	Objectives []string `json:"objectives"`
}

// CourseService owns course and lesson authoring. Courses belong to the
// teacher who created them; archival hides a course without deleting it.
type CourseService struct {
	courses   courseRepository
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(courses courseRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{courses: courses, audit: audit, validator: validate, logger: logger}
}

// Create registers a new course owned by the teacher.
func (s *CourseService) Create(ctx context.Context, teacherID string, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{
		ID:         uuid.NewString(),
		Title:      req.Title,
		Subject:    req.Subject,
		GradeLevel: req.GradeLevel,
		Objectives: pq.StringArray(req.Objectives),
		TeacherID:  teacherID,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &teacherID,
		Action:     models.AuditActionCourseCreate,
		Resource:   "course",
		ResourceID: &course.ID,
	}); err != nil {
		s.logger.Warn("failed to record course create audit log", zap.Error(err))
	}
	return course, nil
}

// Get returns one course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// List returns courses matching the filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, total, nil
}

// Update applies partial changes. Only the owning teacher or an admin may
// modify a course.
func (s *CourseService) Update(ctx context.Context, requesterID string, role models.UserRole, courseID string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.ownedCourse(ctx, requesterID, role, courseID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Subject != nil {
		course.Subject = *req.Subject
	}
	if req.GradeLevel != nil {
		course.GradeLevel = *req.GradeLevel
	}
	if req.Objectives != nil {
		course.Objectives = pq.StringArray(req.Objectives)
	}
	if req.Archived != nil {
		course.Archived = *req.Archived
	}
	course.UpdatedAt = time.Now().UTC()

	if err := s.courses.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &requesterID,
		Action:     models.AuditActionCourseUpdate,
		Resource:   "course",
		ResourceID: &course.ID,
	}); err != nil {
		s.logger.Warn("failed to record course update audit log", zap.Error(err))
	}
	return course, nil
}

// CreateLesson appends a lesson at the end of the course and issues a join
// code for it.
func (s *CourseService) CreateLesson(ctx context.Context, requesterID string, role models.UserRole, courseID string, req CreateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}

	course, err := s.ownedCourse(ctx, requesterID, role, courseID)
	if err != nil {
		return nil, err
	}

	// Lesson objectives must stay within the course's objective list.
	known := make(map[string]struct{}, len(course.Objectives))
	for _, objective := range course.Objectives {
		known[objective] = struct{}{}
	}
	for _, objective := range req.Objectives {
		if _, ok := known[objective]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "lesson objective not declared on course: "+objective)
		}
	}

	position, err := s.courses.NextLessonPosition(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to determine lesson position")
	}

	code, err := generateJoinCode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate join code")
	}

	lesson := &models.Lesson{
		ID:         uuid.NewString(),
		CourseID:   courseID,
		Title:      req.Title,
		Position:   position,
		Objectives: pq.StringArray(req.Objectives),
		JoinCode:   code,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.courses.CreateLesson(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	return lesson, nil
}

// ListLessons returns the course's lessons in position order.
func (s *CourseService) ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error) {
	lessons, err := s.courses.ListLessons(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, nil
}

// RotateJoinCode replaces a lesson's invite code, invalidating the old one.
func (s *CourseService) RotateJoinCode(ctx context.Context, requesterID string, role models.UserRole, lessonID string) (*models.Lesson, error) {
	lesson, err := s.courses.FindLessonByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	if _, err := s.ownedCourse(ctx, requesterID, role, lesson.CourseID); err != nil {
		return nil, err
	}

	code, err := generateJoinCode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate join code")
	}
	if err := s.courses.UpdateLessonJoinCode(ctx, lessonID, code); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate join code")
	}
	lesson.JoinCode = code
	return lesson, nil
}

func (s *CourseService) ownedCourse(ctx context.Context, requesterID string, role models.UserRole, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if role != models.RoleAdmin && course.TeacherID != requesterID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course teacher may modify it")
	}
	return course, nil
}

func generateJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, joinCodeLength)
	for i, b := range buf {
		code[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(code), nil
}
