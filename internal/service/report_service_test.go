package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
	"github.com/lumen-ed/lumen-api/pkg/jobs"
)

type mockReportRepo struct {
	rows map[string]*models.ReportJob
}

func (m *mockReportRepo) Create(_ context.Context, job *models.ReportJob) error {
	copied := *job
	m.rows[job.ID] = &copied
	return nil
}

func (m *mockReportRepo) FindByID(_ context.Context, id string) (*models.ReportJob, error) {
	if job, ok := m.rows[id]; ok {
		copied := *job
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReportRepo) UpdateStatus(_ context.Context, id string, status models.ReportStatus, resultPath, resultURL, errorMessage *string) error {
	job, ok := m.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = status
	job.ResultPath = resultPath
	job.ResultURL = resultURL
	job.ErrorMessage = errorMessage
	return nil
}

func (m *mockReportRepo) ListByCreator(_ context.Context, createdBy string, _ int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, job := range m.rows {
		if job.CreatedBy == createdBy {
			out = append(out, *job)
		}
	}
	return out, nil
}

type mockReportStorage struct {
	files map[string][]byte
}

func (m *mockReportStorage) Save(filename string, data []byte) (string, error) {
	m.files[filename] = data
	return "/reports/" + filename, nil
}

func (m *mockReportStorage) CleanupOlderThan(time.Duration) ([]string, error) {
	return nil, nil
}

type mockReportSigner struct{}

func (mockReportSigner) Generate(jobID, relPath string) (string, time.Time, error) {
	return "/download/" + jobID + "?file=" + relPath + "&sig=abc", time.Now().Add(time.Hour), nil
}

type stubAnalyticsSource struct {
	analytics *models.CourseAnalytics
}

func (s *stubAnalyticsSource) CourseAnalytics(context.Context, string) (*models.CourseAnalytics, bool, error) {
	return s.analytics, false, nil
}

func newReportFixture() (*ReportService, *mockReportRepo, *mockReportStorage, *mockJobQueue) {
	repo := &mockReportRepo{rows: map[string]*models.ReportJob{}}
	storage := &mockReportStorage{files: map[string][]byte{}}
	queue := &mockJobQueue{}
	analytics := &stubAnalyticsSource{analytics: &models.CourseAnalytics{
		CourseID: "course-1",
		Students: []models.StudentProgressSummary{
			{StudentID: "student-1", ProgressPercent: 50, CompletedActivities: 1, TotalActivities: 2, PointsEarned: 25},
		},
		Objectives: []models.ObjectiveSummary{
			{Objective: "Fractions", AverageMastery: 50, AssessedStudents: 1, Struggling: 1},
		},
	}}
	access := NewAccessService(
		&mockEnrollmentReader{active: map[string]bool{}},
		&mockCourseReader{courses: map[string]*models.Course{
			"course-1": {ID: "course-1", TeacherID: "teacher-1", Title: "Algebra I"},
		}},
		&mockAssignmentReader{},
		AccessPolicyConfig{},
		nil,
	)
	svc := NewReportService(repo, analytics, access, storage, mockReportSigner{}, queue, time.Hour, nil)
	return svc, repo, storage, queue
}

func TestReportService_RequestAndProcess(t *testing.T) {
	svc, repo, storage, queue := newReportFixture()

	job, err := svc.Request(context.Background(), "teacher-1", models.RoleTeacher, models.ReportTypeCourseProgress, models.ReportJobParams{
		CourseID: "course-1",
		Format:   models.ReportFormatCSV,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	require.Len(t, queue.jobs, 1)

	// Run the worker handler the queue would invoke.
	require.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: job.ID, Type: JobTypeReport, Payload: job.ID}))

	finished, err := repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, finished.Status)
	require.NotNil(t, finished.ResultURL)
	assert.Contains(t, *finished.ResultURL, job.ID)

	require.Len(t, storage.files, 1)
	for _, data := range storage.files {
		content := string(data)
		assert.True(t, strings.HasPrefix(content, "student_id,progress_percent"))
		assert.Contains(t, content, "student-1,50.0,1,2,25")
	}
}

func TestReportService_Request_Validation(t *testing.T) {
	svc, _, _, _ := newReportFixture()

	_, err := svc.Request(context.Background(), "teacher-1", models.RoleTeacher, models.ReportType("weekly"), models.ReportJobParams{CourseID: "course-1", Format: models.ReportFormatCSV})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Request(context.Background(), "teacher-1", models.RoleTeacher, models.ReportTypeMastery, models.ReportJobParams{CourseID: "course-1", Format: "xlsx"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Request(context.Background(), "teacher-1", models.RoleTeacher, models.ReportTypeMastery, models.ReportJobParams{Format: models.ReportFormatCSV})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestReportService_Request_CourseOwnership(t *testing.T) {
	svc, _, _, queue := newReportFixture()
	params := models.ReportJobParams{CourseID: "course-1", Format: models.ReportFormatCSV}

	// A teacher cannot export a course they do not own.
	_, err := svc.Request(context.Background(), "teacher-2", models.RoleTeacher, models.ReportTypeCourseProgress, params)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Empty(t, queue.jobs)

	// Admins export any course.
	_, err = svc.Request(context.Background(), "admin-1", models.RoleAdmin, models.ReportTypeCourseProgress, params)
	assert.NoError(t, err)
}

func TestReportService_Get_Ownership(t *testing.T) {
	svc, repo, _, _ := newReportFixture()
	repo.rows["job-1"] = &models.ReportJob{ID: "job-1", CreatedBy: "teacher-1", Status: models.ReportStatusFinished}

	_, err := svc.Get(context.Background(), "teacher-2", models.RoleTeacher, "job-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	job, err := svc.Get(context.Background(), "teacher-1", models.RoleTeacher, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)

	// Admins can inspect any report.
	_, err = svc.Get(context.Background(), "admin-1", models.RoleAdmin, "job-1")
	assert.NoError(t, err)
}

func TestReportService_HandleJob_FinishedIsIdempotent(t *testing.T) {
	svc, repo, storage, _ := newReportFixture()
	url := "/download/job-1"
	repo.rows["job-1"] = &models.ReportJob{
		ID: "job-1", Type: models.ReportTypeCourseProgress,
		Params: models.ReportJobParams{CourseID: "course-1", Format: models.ReportFormatCSV},
		Status: models.ReportStatusFinished, ResultURL: &url,
	}

	require.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: "job-1", Payload: "job-1"}))
	assert.Empty(t, storage.files)
}
