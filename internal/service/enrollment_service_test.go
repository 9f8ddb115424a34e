package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	rows    map[string]*models.Enrollment
	upserts int
}

func newMockEnrollmentRepo() *mockEnrollmentRepo {
	return &mockEnrollmentRepo{rows: map[string]*models.Enrollment{}}
}

func (m *mockEnrollmentRepo) key(studentID, courseID string) string {
	return studentID + "/" + courseID
}

// Upsert mirrors the real ON CONFLICT statement: when the (student, course)
// row exists only its status and left_at change, and nothing is written back
// into the caller's struct.
func (m *mockEnrollmentRepo) Upsert(_ context.Context, enrollment *models.Enrollment) error {
	m.upserts++
	key := m.key(enrollment.StudentID, enrollment.CourseID)
	if existing, ok := m.rows[key]; ok {
		existing.Status = enrollment.Status
		existing.LeftAt = nil
		return nil
	}
	copied := *enrollment
	m.rows[key] = &copied
	return nil
}

func (m *mockEnrollmentRepo) FindByStudentAndCourse(_ context.Context, studentID, courseID string) (*models.Enrollment, error) {
	if e, ok := m.rows[m.key(studentID, courseID)]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) List(_ context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var details []models.EnrollmentDetail
	for _, e := range m.rows {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && e.CourseID != filter.CourseID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		details = append(details, models.EnrollmentDetail{Enrollment: *e})
	}
	return details, len(details), nil
}

func (m *mockEnrollmentRepo) ListActiveByStudent(_ context.Context, studentID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, e := range m.rows {
		if e.StudentID == studentID && e.Status == models.EnrollmentStatusActive {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockEnrollmentRepo) UpdateStatus(_ context.Context, id string, status models.EnrollmentStatus, leftAt *time.Time) error {
	for _, e := range m.rows {
		if e.ID == id {
			e.Status = status
			e.LeftAt = leftAt
			return nil
		}
	}
	return sql.ErrNoRows
}

type mockJoinCourseReader struct {
	courses map[string]*models.Course
	lessons map[string]*models.Lesson
}

func (m *mockJoinCourseReader) FindByID(_ context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockJoinCourseReader) FindLessonByJoinCode(_ context.Context, code string) (*models.Lesson, error) {
	if l, ok := m.lessons[code]; ok {
		return l, nil
	}
	return nil, sql.ErrNoRows
}

type mockAuditWriter struct {
	logs []models.AuditLog
}

func (m *mockAuditWriter) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollmentRepo, *mockAuditWriter) {
	repo := newMockEnrollmentRepo()
	audit := &mockAuditWriter{}
	courses := &mockJoinCourseReader{
		courses: map[string]*models.Course{
			"course-1": {ID: "course-1", Title: "Algebra I", TeacherID: "teacher-1"},
		},
		lessons: map[string]*models.Lesson{
			"ABC123": {ID: "lesson-1", CourseID: "course-1", Title: "Fractions", JoinCode: "ABC123"},
		},
	}
	return NewEnrollmentService(repo, courses, audit, nil, nil), repo, audit
}

func TestEnrollmentService_JoinByCode(t *testing.T) {
	svc, repo, audit := newEnrollmentFixture()

	result, err := svc.JoinByCode(context.Background(), "student-1", "abc123")
	require.NoError(t, err)
	assert.False(t, result.AlreadyEnrolled)
	assert.Equal(t, "lesson-1", result.Lesson.LessonID)
	assert.Equal(t, "Algebra I", result.Lesson.CourseTitle)
	assert.Equal(t, models.EnrollmentStatusActive, result.Enrollment.Status)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionJoinCourse, audit.logs[0].Action)

	// Re-joining is a no-op success: same enrollment, no duplicate audit.
	again, err := svc.JoinByCode(context.Background(), "student-1", "ABC123")
	require.NoError(t, err)
	assert.True(t, again.AlreadyEnrolled)
	assert.Len(t, audit.logs, 1)
	assert.Len(t, repo.rows, 1)

	// The response reflects the stored row, not a freshly minted one.
	stored, err := repo.FindByStudentAndCourse(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, again.Enrollment.ID)
	assert.Equal(t, stored.JoinedAt, again.Enrollment.JoinedAt)
}

func TestEnrollmentService_JoinByCode_InvalidCode(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.JoinByCode(context.Background(), "student-1", "NOPE99")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.JoinByCode(context.Background(), "student-1", "   ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestEnrollmentService_JoinAfterLeaving(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()

	first, err := svc.JoinByCode(context.Background(), "student-1", "ABC123")
	require.NoError(t, err)

	require.NoError(t, svc.Leave(context.Background(), "student-1", "course-1"))
	left, err := repo.FindByStudentAndCourse(context.Background(), "student-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusLeft, left.Status)
	require.NotNil(t, left.LeftAt)

	// Leaving twice is a no-op.
	require.NoError(t, svc.Leave(context.Background(), "student-1", "course-1"))

	// Re-joining reactivates the same row instead of creating another.
	rejoined, err := svc.JoinByCode(context.Background(), "student-1", "ABC123")
	require.NoError(t, err)
	assert.Equal(t, first.Enrollment.ID, rejoined.Enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusActive, rejoined.Enrollment.Status)
	assert.Len(t, repo.rows, 1)
}

func TestEnrollmentService_Roster(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.rows["student-1/course-1"] = &models.Enrollment{ID: "enr-1", StudentID: "student-1", CourseID: "course-1", Status: models.EnrollmentStatusActive}
	repo.rows["student-2/course-1"] = &models.Enrollment{ID: "enr-2", StudentID: "student-2", CourseID: "course-1", Status: models.EnrollmentStatusLeft}

	details, total, err := svc.Roster(context.Background(), "teacher-1", models.RoleTeacher, "course-1", models.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, details, 1)
	assert.Equal(t, "student-1", details[0].StudentID)

	_, _, err = svc.Roster(context.Background(), "teacher-2", models.RoleTeacher, "course-1", models.EnrollmentFilter{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
