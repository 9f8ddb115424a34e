package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

type mockActivityRepo struct {
	rows map[string]*models.Activity
}

func (m *mockActivityRepo) Create(_ context.Context, activity *models.Activity) error {
	copied := *activity
	m.rows[activity.ID] = &copied
	return nil
}

func (m *mockActivityRepo) FindByID(_ context.Context, id string) (*models.Activity, error) {
	if a, ok := m.rows[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockActivityRepo) Update(_ context.Context, activity *models.Activity) error {
	copied := *activity
	m.rows[activity.ID] = &copied
	return nil
}

func (m *mockActivityRepo) List(context.Context, models.ActivityFilter) ([]models.Activity, int, error) {
	return nil, 0, nil
}

func (m *mockActivityRepo) ListByLesson(context.Context, string) ([]models.Activity, error) {
	return nil, nil
}

type mockActivityCourses struct {
	courses map[string]*models.Course
	lessons map[string]*models.Lesson
}

func (m *mockActivityCourses) FindByID(_ context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockActivityCourses) FindLessonByID(_ context.Context, id string) (*models.Lesson, error) {
	if l, ok := m.lessons[id]; ok {
		return l, nil
	}
	return nil, sql.ErrNoRows
}

func newActivityFixture() (*ActivityService, *mockActivityRepo, *mockEnrollmentReader) {
	repo := &mockActivityRepo{rows: map[string]*models.Activity{}}
	enrollments := &mockEnrollmentReader{active: map[string]bool{}}
	courses := &mockActivityCourses{
		courses: map[string]*models.Course{
			"course-1": {ID: "course-1", TeacherID: "teacher-1"},
		},
		lessons: map[string]*models.Lesson{
			"lesson-1": {ID: "lesson-1", CourseID: "course-1"},
			"lesson-x": {ID: "lesson-x", CourseID: "course-9"},
		},
	}
	svc := NewActivityService(repo, courses, enrollments, &mockAuditWriter{}, nil, nil)
	return svc, repo, enrollments
}

func TestActivityService_Create_TargetValidation(t *testing.T) {
	svc, _, enrollments := newActivityFixture()
	enrollments.active["student-1/course-1"] = true

	// Explicit targets must all be enrolled students.
	_, err := svc.Create(context.Background(), "teacher-1", models.RoleTeacher, CreateActivityRequest{
		CourseID:         "course-1",
		Type:             models.ActivityTypeQuiz,
		Title:            "Fractions quiz",
		TargetMode:       models.TargetModeSelected,
		TargetStudentIDs: []string{"student-1", "student-2"},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "student-2")

	activity, err := svc.Create(context.Background(), "teacher-1", models.RoleTeacher, CreateActivityRequest{
		CourseID:         "course-1",
		Type:             models.ActivityTypeQuiz,
		Title:            "Fractions quiz",
		TargetMode:       models.TargetModeSelected,
		TargetStudentIDs: []string{"student-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.TargetModeSelected, activity.TargetMode)
}

func TestActivityService_Create_DefaultsToAll(t *testing.T) {
	svc, _, _ := newActivityFixture()

	activity, err := svc.Create(context.Background(), "teacher-1", models.RoleTeacher, CreateActivityRequest{
		CourseID: "course-1",
		Type:     models.ActivityTypeReading,
		Title:    "Chapter 3",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TargetModeAll, activity.TargetMode)

	// Target ids are meaningless in all mode.
	_, err = svc.Create(context.Background(), "teacher-1", models.RoleTeacher, CreateActivityRequest{
		CourseID:         "course-1",
		Type:             models.ActivityTypeReading,
		Title:            "Chapter 4",
		TargetMode:       models.TargetModeAll,
		TargetStudentIDs: []string{"student-1"},
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestActivityService_Create_Ownership(t *testing.T) {
	svc, _, _ := newActivityFixture()

	_, err := svc.Create(context.Background(), "teacher-2", models.RoleTeacher, CreateActivityRequest{
		CourseID: "course-1",
		Type:     models.ActivityTypeQuiz,
		Title:    "Not my course",
	})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestActivityService_Create_LessonMustMatchCourse(t *testing.T) {
	svc, _, _ := newActivityFixture()
	lessonID := "lesson-x"

	_, err := svc.Create(context.Background(), "teacher-1", models.RoleTeacher, CreateActivityRequest{
		CourseID: "course-1",
		LessonID: &lessonID,
		Type:     models.ActivityTypeVideo,
		Title:    "Wrong lesson",
	})
	assert.ErrorContains(t, err, "different course")
}

func TestActivityService_Update_RevalidatesTarget(t *testing.T) {
	svc, repo, enrollments := newActivityFixture()
	enrollments.active["student-1/course-1"] = true
	repo.rows["act-1"] = &models.Activity{
		ID: "act-1", CourseID: "course-1", Type: models.ActivityTypeQuiz,
		Title: "Quiz", TargetMode: models.TargetModeAll,
	}

	mode := models.TargetModeSelected
	_, err := svc.Update(context.Background(), "teacher-1", models.RoleTeacher, "act-1", UpdateActivityRequest{
		TargetMode:       &mode,
		TargetStudentIDs: []string{"student-9"},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "student-9")

	updated, err := svc.Update(context.Background(), "teacher-1", models.RoleTeacher, "act-1", UpdateActivityRequest{
		TargetMode:       &mode,
		TargetStudentIDs: []string{"student-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.TargetModeSelected, updated.TargetMode)
}
