package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

type enrollmentRepository interface {
	Upsert(ctx context.Context, enrollment *models.Enrollment) error
	FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, leftAt *time.Time) error
}

type enrollmentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindLessonByJoinCode(ctx context.Context, code string) (*models.Lesson, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// JoinResult is returned by the join flow: where the code led, plus the
// enrollment that now grants access.
type JoinResult struct {
	Lesson     models.LessonDescriptor `json:"lesson"`
	Enrollment *models.Enrollment      `json:"enrollment"`
	// AlreadyEnrolled distinguishes a re-join no-op from a first join.
	AlreadyEnrolled bool `json:"already_enrolled"`
}

// EnrollmentService manages course membership. Joining is an idempotent
// upsert keyed on (student, course); enrollments are never hard-deleted,
// leaving flips the status to LEFT.
type EnrollmentService struct {
	enrollments enrollmentRepository
	courses     enrollmentCourseReader
	audit       auditWriter
	invalidate  func(ctx context.Context, courseID string)
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService. invalidate may be nil.
func NewEnrollmentService(enrollments enrollmentRepository, courses enrollmentCourseReader, audit auditWriter, invalidate func(ctx context.Context, courseID string), logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{enrollments: enrollments, courses: courses, audit: audit, invalidate: invalidate, logger: logger}
}

// JoinByCode resolves a short invite code to its lesson and enrolls the
// student in the owning course. Joining a course the student already
// belongs to succeeds without side effects.
func (s *EnrollmentService) JoinByCode(ctx context.Context, studentID, code string) (*JoinResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "join code is required")
	}

	lesson, err := s.courses.FindLessonByJoinCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invalid join code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve join code")
	}

	course, err := s.courses.FindByID(ctx, lesson.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.Archived {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is archived")
	}

	already := false
	var existing *models.Enrollment
	if found, err := s.enrollments.FindByStudentAndCourse(ctx, studentID, course.ID); err == nil {
		existing = found
		already = existing.Status == models.EnrollmentStatusActive
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}

	// The upsert keeps the stored row's id on conflict, so a re-join must
	// echo the existing row rather than mint an id the database never saw.
	enrollment := &models.Enrollment{
		ID:        uuid.NewString(),
		StudentID: studentID,
		CourseID:  course.ID,
		Status:    models.EnrollmentStatusActive,
		JoinedAt:  time.Now().UTC(),
	}
	if existing != nil {
		enrollment.ID = existing.ID
		enrollment.JoinedAt = existing.JoinedAt
		enrollment.Progress = existing.Progress
		enrollment.LastActivityAt = existing.LastActivityAt
	}
	if err := s.enrollments.Upsert(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}

	if !already {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &studentID,
			Action:     models.AuditActionJoinCourse,
			Resource:   "enrollment",
			ResourceID: &course.ID,
		}); err != nil {
			s.logger.Warn("failed to record join audit log", zap.Error(err))
		}
		if s.invalidate != nil {
			s.invalidate(ctx, course.ID)
		}
	}

	return &JoinResult{
		Lesson: models.LessonDescriptor{
			LessonID:    lesson.ID,
			LessonTitle: lesson.Title,
			CourseID:    course.ID,
			CourseTitle: course.Title,
		},
		Enrollment:      enrollment,
		AlreadyEnrolled: already,
	}, nil
}

// Leave marks the enrollment LEFT. The row is kept so historical
// submissions stay attributable.
func (s *EnrollmentService) Leave(ctx context.Context, studentID, courseID string) error {
	enrollment, err := s.enrollments.FindByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusLeft {
		return nil
	}

	now := time.Now().UTC()
	if err := s.enrollments.UpdateStatus(ctx, enrollment.ID, models.EnrollmentStatusLeft, &now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to leave course")
	}
	if s.invalidate != nil {
		s.invalidate(ctx, courseID)
	}
	return nil
}

// MyCourses lists the courses the student currently belongs to.
func (s *EnrollmentService) MyCourses(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	details, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{
		StudentID: studentID,
		Status:    models.EnrollmentStatusActive,
		PageSize:  -1,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return details, nil
}

// Roster lists the active members of a course. Only the owning teacher or
// an admin may view it.
func (s *EnrollmentService) Roster(ctx context.Context, requesterID string, role models.UserRole, courseID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if role != models.RoleAdmin && course.TeacherID != requesterID {
		return nil, 0, appErrors.Clone(appErrors.ErrForbidden, "only the course teacher may view the roster")
	}

	filter.CourseID = courseID
	if filter.Status == "" {
		filter.Status = models.EnrollmentStatusActive
	}
	details, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return details, total, nil
}
