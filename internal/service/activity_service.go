package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

type activityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	FindByID(ctx context.Context, id string) (*models.Activity, error)
	Update(ctx context.Context, activity *models.Activity) error
	List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error)
	ListByLesson(ctx context.Context, lessonID string) ([]models.Activity, error)
}

type activityCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindLessonByID(ctx context.Context, id string) (*models.Lesson, error)
}

type activityEnrollmentReader interface {
	ExistsActive(ctx context.Context, studentID, courseID string) (bool, error)
}

// CreateActivityRequest is the authoring payload for a new activity.
type CreateActivityRequest struct {
	CourseID         string              `json:"course_id" validate:"required"`
	LessonID         *string             `json:"lesson_id"`
	Type             models.ActivityType `json:"type" validate:"required"`
	Title            string              `json:"title" validate:"required"`
	Content          json.RawMessage     `json:"content"`
	Points           int                 `json:"points" validate:"min=0"`
	EstimatedMinutes int                 `json:"estimated_minutes" validate:"min=0"`
	TargetMode       models.TargetMode   `json:"target_mode"`
	TargetStudentIDs []string            `json:"target_student_ids"`
}

// UpdateActivityRequest carries partial activity updates.
type UpdateActivityRequest struct {
	Title            *string            `json:"title"`
	Content          json.RawMessage    `json:"content"`
	Points           *int               `json:"points" validate:"omitempty,min=0"`
	EstimatedMinutes *int               `json:"estimated_minutes" validate:"omitempty,min=0"`
	TargetMode       *models.TargetMode `json:"target_mode"`
	TargetStudentIDs []string           `json:"target_student_ids"`
}

// ActivityService owns activity authoring. Explicit targets are validated
// at write time: every targeted id must be an actively enrolled student.
type ActivityService struct {
	activities  activityRepository
	courses     activityCourseReader
	enrollments activityEnrollmentReader
	audit       auditWriter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewActivityService constructs ActivityService.
func NewActivityService(activities activityRepository, courses activityCourseReader, enrollments activityEnrollmentReader, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *ActivityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{activities: activities, courses: courses, enrollments: enrollments, audit: audit, validator: validate, logger: logger}
}

// Create registers a new activity in a course the requester owns.
func (s *ActivityService) Create(ctx context.Context, requesterID string, role models.UserRole, req CreateActivityRequest) (*models.Activity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if role != models.RoleAdmin && course.TeacherID != requesterID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course teacher may create activities")
	}

	if req.LessonID != nil {
		lesson, err := s.courses.FindLessonByID(ctx, *req.LessonID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
		}
		if lesson.CourseID != req.CourseID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "lesson belongs to a different course")
		}
	}

	mode := req.TargetMode
	if mode == "" {
		mode = models.TargetModeAll
	}
	if err := s.validateTarget(ctx, req.CourseID, mode, req.TargetStudentIDs); err != nil {
		return nil, err
	}

	activity := &models.Activity{
		ID:               uuid.NewString(),
		CourseID:         req.CourseID,
		LessonID:         req.LessonID,
		Type:             req.Type,
		Title:            req.Title,
		Content:          req.Content,
		Points:           req.Points,
		EstimatedMinutes: req.EstimatedMinutes,
		TargetMode:       mode,
		TargetStudentIDs: pq.StringArray(req.TargetStudentIDs),
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if err := s.activities.Create(ctx, activity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create activity")
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &requesterID,
		Action:     models.AuditActionActivityCreate,
		Resource:   "activity",
		ResourceID: &activity.ID,
	}); err != nil {
		s.logger.Warn("failed to record activity create audit log", zap.Error(err))
	}
	return activity, nil
}

// Update applies partial changes to an activity the requester owns.
func (s *ActivityService) Update(ctx context.Context, requesterID string, role models.UserRole, activityID string, req UpdateActivityRequest) (*models.Activity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}

	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}

	course, err := s.courses.FindByID(ctx, activity.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if role != models.RoleAdmin && course.TeacherID != requesterID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course teacher may modify activities")
	}

	if req.Title != nil {
		activity.Title = *req.Title
	}
	if req.Content != nil {
		activity.Content = req.Content
	}
	if req.Points != nil {
		activity.Points = *req.Points
	}
	if req.EstimatedMinutes != nil {
		activity.EstimatedMinutes = *req.EstimatedMinutes
	}
	if req.TargetMode != nil {
		activity.TargetMode = *req.TargetMode
	}
	if req.TargetStudentIDs != nil {
		activity.TargetStudentIDs = pq.StringArray(req.TargetStudentIDs)
	}
	if err := s.validateTarget(ctx, activity.CourseID, activity.TargetMode, activity.TargetStudentIDs); err != nil {
		return nil, err
	}
	activity.UpdatedAt = time.Now().UTC()

	if err := s.activities.Update(ctx, activity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update activity")
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &requesterID,
		Action:     models.AuditActionActivityUpdate,
		Resource:   "activity",
		ResourceID: &activity.ID,
	}); err != nil {
		s.logger.Warn("failed to record activity update audit log", zap.Error(err))
	}
	return activity, nil
}

// Get returns one activity.
func (s *ActivityService) Get(ctx context.Context, id string) (*models.Activity, error) {
	activity, err := s.activities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	return activity, nil
}

// List returns activities matching the filter.
func (s *ActivityService) List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error) {
	activities, total, err := s.activities.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}
	return activities, total, nil
}

// validateTarget enforces the write-time invariant: an explicit target must
// resolve to a subset of the course's actively enrolled students.
func (s *ActivityService) validateTarget(ctx context.Context, courseID string, mode models.TargetMode, targetIDs []string) error {
	switch mode {
	case models.TargetModeAll:
		if len(targetIDs) > 0 {
			return appErrors.Clone(appErrors.ErrValidation, "target_student_ids must be empty when targeting all students")
		}
		return nil
	case models.TargetModeSelected:
		for _, studentID := range targetIDs {
			enrolled, err := s.enrollments.ExistsActive(ctx, studentID, courseID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
			}
			if !enrolled {
				return appErrors.Clone(appErrors.ErrValidation, "targeted student is not enrolled: "+studentID)
			}
		}
		return nil
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown target mode")
	}
}
