package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

// Decision is the outcome of an access policy evaluation.
type Decision string

const (
	DecisionAllowed           Decision = "ALLOWED"
	DecisionDeniedNotEnrolled Decision = "DENIED_NOT_ENROLLED"
	DecisionDeniedNotAssigned Decision = "DENIED_NOT_ASSIGNED"
)

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool {
	return d == DecisionAllowed
}

// Err maps a denial to its typed error, or nil when allowed.
func (d Decision) Err() error {
	switch d {
	case DecisionAllowed:
		return nil
	case DecisionDeniedNotEnrolled:
		return appErrors.ErrNotEnrolled
	default:
		return appErrors.ErrNotAssigned
	}
}

type accessEnrollmentReader interface {
	ExistsActive(ctx context.Context, studentID, courseID string) (bool, error)
}

type accessCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type accessAssignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.AssignmentDetail, error)
}

// AccessPolicyConfig tunes evaluation behaviour.
type AccessPolicyConfig struct {
	// EmptyTargetAllowsAll interprets an explicit target with zero student
	// ids as the "all enrolled" sentinel. This papers over a data-entry gap
	// at write time; disable it to treat an empty list as "nobody".
	EmptyTargetAllowsAll bool
}

// AccessService decides whether a user may view and attempt a learning unit.
// Evaluation is a pure function of the inputs: it performs reads only and
// never mutates state.
type AccessService struct {
	enrollments accessEnrollmentReader
	courses     accessCourseReader
	assignments accessAssignmentReader
	config      AccessPolicyConfig
	logger      *zap.Logger
}

// NewAccessService constructs AccessService.
func NewAccessService(enrollments accessEnrollmentReader, courses accessCourseReader, assignments accessAssignmentReader, config AccessPolicyConfig, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{enrollments: enrollments, courses: courses, assignments: assignments, config: config, logger: logger}
}

// Evaluate applies the activity-level target rule for the given user.
// Teachers who own the course (and admins) are always allowed. Students
// must hold an active enrollment and match the activity's target.
func (s *AccessService) Evaluate(ctx context.Context, userID string, role models.UserRole, activity *models.Activity) (Decision, error) {
	if role == models.RoleAdmin {
		return DecisionAllowed, nil
	}

	course, err := s.courses.FindByID(ctx, activity.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return DecisionDeniedNotEnrolled, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return DecisionDeniedNotEnrolled, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if role == models.RoleTeacher {
		if course.TeacherID == userID {
			return DecisionAllowed, nil
		}
		return DecisionDeniedNotEnrolled, nil
	}

	enrolled, err := s.enrollments.ExistsActive(ctx, userID, activity.CourseID)
	if err != nil {
		return DecisionDeniedNotEnrolled, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return DecisionDeniedNotEnrolled, nil
	}

	if s.targetIncludes(activity, userID) {
		return DecisionAllowed, nil
	}
	return DecisionDeniedNotAssigned, nil
}

// EvaluateAssignment applies the assignment-bundle rule. An unpublished
// assignment is invisible to students regardless of enrollment. Assignment
// membership is a separate policy input from the activity-level target and
// the two are never merged here.
func (s *AccessService) EvaluateAssignment(ctx context.Context, userID string, role models.UserRole, assignment *models.AssignmentDetail) (Decision, error) {
	if role == models.RoleAdmin {
		return DecisionAllowed, nil
	}

	course, err := s.courses.FindByID(ctx, assignment.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return DecisionDeniedNotEnrolled, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return DecisionDeniedNotEnrolled, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if role == models.RoleTeacher {
		if course.TeacherID == userID {
			return DecisionAllowed, nil
		}
		return DecisionDeniedNotEnrolled, nil
	}

	if !assignment.Published {
		return DecisionDeniedNotAssigned, nil
	}

	enrolled, err := s.enrollments.ExistsActive(ctx, userID, assignment.CourseID)
	if err != nil {
		return DecisionDeniedNotEnrolled, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return DecisionDeniedNotEnrolled, nil
	}
	return DecisionAllowed, nil
}

// EvaluateCourseRead gates course-scoped read surfaces such as analytics
// and report generation. Admins read any course; teachers only their own.
func (s *AccessService) EvaluateCourseRead(ctx context.Context, userID string, role models.UserRole, courseID string) error {
	if role == models.RoleAdmin {
		return nil
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if role == models.RoleTeacher && course.TeacherID == userID {
		return nil
	}
	return appErrors.ErrForbidden
}

// FilterVisible returns the subset of activities the student may see.
// Enrollment is checked once for the whole set.
func (s *AccessService) FilterVisible(ctx context.Context, userID string, role models.UserRole, courseID string, activities []models.Activity) ([]models.Activity, error) {
	if role != models.RoleStudent {
		return activities, nil
	}

	enrolled, err := s.enrollments.ExistsActive(ctx, userID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.ErrNotEnrolled
	}

	visible := make([]models.Activity, 0, len(activities))
	for _, activity := range activities {
		if s.targetIncludes(&activity, userID) {
			visible = append(visible, activity)
		}
	}
	return visible, nil
}

func (s *AccessService) targetIncludes(activity *models.Activity, studentID string) bool {
	if activity.TargetMode == models.TargetModeAll || activity.TargetMode == "" {
		return true
	}
	if len(activity.TargetStudentIDs) == 0 {
		return s.config.EmptyTargetAllowsAll
	}
	for _, id := range activity.TargetStudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}
