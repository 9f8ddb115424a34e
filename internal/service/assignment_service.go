package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment, activities []models.AssignmentActivity) error
	FindByID(ctx context.Context, id string) (*models.AssignmentDetail, error)
	ListByCourse(ctx context.Context, courseID string, publishedOnly bool) ([]models.Assignment, error)
	SetPublished(ctx context.Context, id string, published bool) error
}

// AssignmentActivityRef names one activity of a new bundle.
type AssignmentActivityRef struct {
	ActivityID string `json:"activity_id" validate:"required"`
	Required   bool   `json:"required"`
}

// CreateAssignmentRequest is the authoring payload for a new bundle.
type CreateAssignmentRequest struct {
	CourseID   string                  `json:"course_id" validate:"required"`
	Title      string                  `json:"title" validate:"required"`
	DueAt      *time.Time              `json:"due_at"`
	Activities []AssignmentActivityRef `json:"activities" validate:"required,min=1,dive"`
	Publish    bool                    `json:"publish"`
}

// AssignmentService owns assignment bundles: teacher-curated sets of
// activities with a due date and a point budget summed from the members.
// Assignment membership is an access-policy input of its own, distinct
// from activity-level targets.
type AssignmentService struct {
	assignments assignmentRepository
	activities  activityRepository
	courses     activityCourseReader
	access      *AccessService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(assignments assignmentRepository, activities activityRepository, courses activityCourseReader, access *AccessService, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{assignments: assignments, activities: activities, courses: courses, access: access, validator: validate, logger: logger}
}

// Create builds a bundle from existing activities of the same course. The
// point budget is the sum of the member activities' points.
func (s *AssignmentService) Create(ctx context.Context, requesterID string, role models.UserRole, req CreateAssignmentRequest) (*models.AssignmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if role != models.RoleAdmin && course.TeacherID != requesterID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course teacher may create assignments")
	}

	assignment := &models.Assignment{
		ID:        uuid.NewString(),
		CourseID:  req.CourseID,
		Title:     req.Title,
		DueAt:     req.DueAt,
		Published: req.Publish,
		CreatedBy: requesterID,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	links := make([]models.AssignmentActivity, 0, len(req.Activities))
	seen := make(map[string]struct{}, len(req.Activities))
	for i, ref := range req.Activities {
		if _, dup := seen[ref.ActivityID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate activity in assignment: "+ref.ActivityID)
		}
		seen[ref.ActivityID] = struct{}{}

		activity, err := s.activities.FindByID(ctx, ref.ActivityID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found: "+ref.ActivityID)
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
		}
		if activity.CourseID != req.CourseID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "activity belongs to a different course: "+ref.ActivityID)
		}

		assignment.PointBudget += activity.Points
		links = append(links, models.AssignmentActivity{
			AssignmentID: assignment.ID,
			ActivityID:   ref.ActivityID,
			Required:     ref.Required,
			Position:     i,
		})
	}

	if err := s.assignments.Create(ctx, assignment, links); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	return &models.AssignmentDetail{Assignment: *assignment, Activities: links}, nil
}

// Get returns an assignment if the requester may see it. Students only see
// published assignments of courses they belong to.
func (s *AssignmentService) Get(ctx context.Context, requesterID string, role models.UserRole, assignmentID string) (*models.AssignmentDetail, error) {
	detail, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	decision, err := s.access.EvaluateAssignment(ctx, requesterID, role, detail)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed() {
		return nil, decision.Err()
	}
	return detail, nil
}

// ListByCourse returns a course's assignments; students only see published
// ones.
func (s *AssignmentService) ListByCourse(ctx context.Context, role models.UserRole, courseID string) ([]models.Assignment, error) {
	publishedOnly := role == models.RoleStudent
	assignments, err := s.assignments.ListByCourse(ctx, courseID, publishedOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// SetPublished flips the publish flag. Unpublished assignments are
// invisible to students.
func (s *AssignmentService) SetPublished(ctx context.Context, requesterID string, role models.UserRole, assignmentID string, published bool) error {
	detail, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	course, err := s.courses.FindByID(ctx, detail.CourseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if role != models.RoleAdmin && course.TeacherID != requesterID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the course teacher may publish assignments")
	}

	if err := s.assignments.SetPublished(ctx, assignmentID, published); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update publish flag")
	}
	return nil
}
