package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

type mockEnrollmentReader struct {
	active map[string]bool
	err    error
}

func (m *mockEnrollmentReader) ExistsActive(_ context.Context, studentID, courseID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.active[studentID+"/"+courseID], nil
}

type mockCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCourseReader) FindByID(_ context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockAssignmentReader struct {
	assignments map[string]*models.AssignmentDetail
}

func (m *mockAssignmentReader) FindByID(_ context.Context, id string) (*models.AssignmentDetail, error) {
	if a, ok := m.assignments[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func newAccessFixture() (*AccessService, *mockEnrollmentReader, *mockCourseReader) {
	enrollments := &mockEnrollmentReader{active: map[string]bool{}}
	courses := &mockCourseReader{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", TeacherID: "teacher-1", Title: "Algebra I"},
	}}
	svc := NewAccessService(enrollments, courses, &mockAssignmentReader{}, AccessPolicyConfig{EmptyTargetAllowsAll: true}, nil)
	return svc, enrollments, courses
}

func TestAccessService_Evaluate_TargetAll(t *testing.T) {
	svc, enrollments, _ := newAccessFixture()
	enrollments.active["student-1/course-1"] = true

	activity := &models.Activity{ID: "act-1", CourseID: "course-1", TargetMode: models.TargetModeAll}

	decision, err := svc.Evaluate(context.Background(), "student-1", models.RoleStudent, activity)
	require.NoError(t, err)
	assert.Equal(t, DecisionAllowed, decision)
	assert.True(t, decision.Allowed())
}

func TestAccessService_Evaluate_NotEnrolled(t *testing.T) {
	svc, _, _ := newAccessFixture()

	activity := &models.Activity{ID: "act-1", CourseID: "course-1", TargetMode: models.TargetModeAll}

	decision, err := svc.Evaluate(context.Background(), "student-1", models.RoleStudent, activity)
	require.NoError(t, err)
	assert.Equal(t, DecisionDeniedNotEnrolled, decision)
	assert.ErrorContains(t, decision.Err(), "not enrolled")
}

func TestAccessService_Evaluate_SelectedTarget(t *testing.T) {
	svc, enrollments, _ := newAccessFixture()
	enrollments.active["student-1/course-1"] = true
	enrollments.active["student-2/course-1"] = true

	activity := &models.Activity{
		ID:               "act-1",
		CourseID:         "course-1",
		TargetMode:       models.TargetModeSelected,
		TargetStudentIDs: pq.StringArray{"student-1"},
	}

	decision, err := svc.Evaluate(context.Background(), "student-1", models.RoleStudent, activity)
	require.NoError(t, err)
	assert.Equal(t, DecisionAllowed, decision)

	// Enrolled but outside the target list.
	decision, err = svc.Evaluate(context.Background(), "student-2", models.RoleStudent, activity)
	require.NoError(t, err)
	assert.Equal(t, DecisionDeniedNotAssigned, decision)
}

func TestAccessService_Evaluate_EmptyTarget(t *testing.T) {
	activity := &models.Activity{ID: "act-1", CourseID: "course-1", TargetMode: models.TargetModeSelected}

	t.Run("allows all when configured", func(t *testing.T) {
		svc, enrollments, _ := newAccessFixture()
		enrollments.active["student-1/course-1"] = true

		decision, err := svc.Evaluate(context.Background(), "student-1", models.RoleStudent, activity)
		require.NoError(t, err)
		assert.Equal(t, DecisionAllowed, decision)
	})

	t.Run("denies when disabled", func(t *testing.T) {
		_, enrollments, courses := newAccessFixture()
		enrollments.active["student-1/course-1"] = true
		svc := NewAccessService(enrollments, courses, &mockAssignmentReader{}, AccessPolicyConfig{EmptyTargetAllowsAll: false}, nil)

		decision, err := svc.Evaluate(context.Background(), "student-1", models.RoleStudent, activity)
		require.NoError(t, err)
		assert.Equal(t, DecisionDeniedNotAssigned, decision)
	})
}

func TestAccessService_Evaluate_TeacherOwnership(t *testing.T) {
	svc, _, _ := newAccessFixture()

	activity := &models.Activity{ID: "act-1", CourseID: "course-1", TargetMode: models.TargetModeSelected, TargetStudentIDs: pq.StringArray{"student-9"}}

	// Owning teacher bypasses targeting without an enrollment row.
	decision, err := svc.Evaluate(context.Background(), "teacher-1", models.RoleTeacher, activity)
	require.NoError(t, err)
	assert.Equal(t, DecisionAllowed, decision)

	// A teacher from another course is not allowed.
	decision, err = svc.Evaluate(context.Background(), "teacher-2", models.RoleTeacher, activity)
	require.NoError(t, err)
	assert.Equal(t, DecisionDeniedNotEnrolled, decision)

	decision, err = svc.Evaluate(context.Background(), "admin-1", models.RoleAdmin, activity)
	require.NoError(t, err)
	assert.Equal(t, DecisionAllowed, decision)
}

func TestAccessService_EvaluateCourseRead(t *testing.T) {
	svc, _, _ := newAccessFixture()

	require.NoError(t, svc.EvaluateCourseRead(context.Background(), "teacher-1", models.RoleTeacher, "course-1"))
	require.NoError(t, svc.EvaluateCourseRead(context.Background(), "admin-1", models.RoleAdmin, "course-1"))

	// Teaching some course grants nothing on the others.
	err := svc.EvaluateCourseRead(context.Background(), "teacher-2", models.RoleTeacher, "course-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	err = svc.EvaluateCourseRead(context.Background(), "student-1", models.RoleStudent, "course-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	err = svc.EvaluateCourseRead(context.Background(), "teacher-1", models.RoleTeacher, "course-404")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestAccessService_EvaluateAssignment(t *testing.T) {
	svc, enrollments, _ := newAccessFixture()
	enrollments.active["student-1/course-1"] = true

	published := &models.AssignmentDetail{Assignment: models.Assignment{ID: "asg-1", CourseID: "course-1", Published: true}}
	draft := &models.AssignmentDetail{Assignment: models.Assignment{ID: "asg-2", CourseID: "course-1", Published: false}}

	decision, err := svc.EvaluateAssignment(context.Background(), "student-1", models.RoleStudent, published)
	require.NoError(t, err)
	assert.Equal(t, DecisionAllowed, decision)

	// Draft assignments stay invisible to students even when enrolled.
	decision, err = svc.EvaluateAssignment(context.Background(), "student-1", models.RoleStudent, draft)
	require.NoError(t, err)
	assert.Equal(t, DecisionDeniedNotAssigned, decision)

	// The owning teacher can see drafts.
	decision, err = svc.EvaluateAssignment(context.Background(), "teacher-1", models.RoleTeacher, draft)
	require.NoError(t, err)
	assert.Equal(t, DecisionAllowed, decision)
}

func TestAccessService_FilterVisible(t *testing.T) {
	svc, enrollments, _ := newAccessFixture()
	enrollments.active["student-1/course-1"] = true

	activities := []models.Activity{
		{ID: "act-1", CourseID: "course-1", TargetMode: models.TargetModeAll},
		{ID: "act-2", CourseID: "course-1", TargetMode: models.TargetModeSelected, TargetStudentIDs: pq.StringArray{"student-1"}},
		{ID: "act-3", CourseID: "course-1", TargetMode: models.TargetModeSelected, TargetStudentIDs: pq.StringArray{"student-2"}},
	}

	visible, err := svc.FilterVisible(context.Background(), "student-1", models.RoleStudent, "course-1", activities)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, "act-1", visible[0].ID)
	assert.Equal(t, "act-2", visible[1].ID)

	_, err = svc.FilterVisible(context.Background(), "student-9", models.RoleStudent, "course-1", activities)
	assert.ErrorContains(t, err, "not enrolled")
}
