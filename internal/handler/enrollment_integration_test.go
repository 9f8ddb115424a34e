package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	internalmiddleware "github.com/lumen-ed/lumen-api/internal/middleware"
	"github.com/lumen-ed/lumen-api/internal/models"
	"github.com/lumen-ed/lumen-api/internal/service"
)

func TestEnrollmentRoutesIntegration(t *testing.T) {
	router := buildEnrollmentRouter()

	t.Run("join success", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/enrollments/join", bytes.NewBufferString(`{"code":"abc234"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"already_enrolled":false`)
		require.Contains(t, resp.Body.String(), `"lesson_title":"Intro"`)
	})

	t.Run("join unauthorized", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/enrollments/join", bytes.NewBufferString(`{"code":"abc234"}`))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("join forbidden for teacher", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/enrollments/join", bytes.NewBufferString(`{"code":"abc234"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("join invalid code", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/enrollments/join", bytes.NewBufferString(`{"code":"zzzzzz"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("roster forbidden for student", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/courses/course-1/roster", nil)
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})
}

func buildEnrollmentRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: "test-user",
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	svc := service.NewEnrollmentService(
		&enrollmentRepoIntegrationMock{},
		&courseReaderIntegrationMock{},
		&auditWriterIntegrationMock{},
		nil,
		zap.NewNop(),
	)
	enrollmentHandler := NewEnrollmentHandler(svc)

	studentOnly := internalmiddleware.RequireRoles(models.RoleStudent)
	teacherOrAdmin := internalmiddleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	router.POST("/enrollments/join", studentOnly, enrollmentHandler.Join)
	router.GET("/courses/:id/roster", teacherOrAdmin, enrollmentHandler.Roster)

	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type enrollmentRepoIntegrationMock struct{}

func (enrollmentRepoIntegrationMock) Upsert(ctx context.Context, enrollment *models.Enrollment) error {
	return nil
}

func (enrollmentRepoIntegrationMock) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	return nil, sql.ErrNoRows
}

func (enrollmentRepoIntegrationMock) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (enrollmentRepoIntegrationMock) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	return nil, nil
}

func (enrollmentRepoIntegrationMock) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, leftAt *time.Time) error {
	return nil
}

type courseReaderIntegrationMock struct{}

func (courseReaderIntegrationMock) FindByID(ctx context.Context, id string) (*models.Course, error) {
	return &models.Course{ID: "course-1", Title: "Algebra", TeacherID: "teacher-1"}, nil
}

func (courseReaderIntegrationMock) FindLessonByJoinCode(ctx context.Context, code string) (*models.Lesson, error) {
	if code != "ABC234" {
		return nil, sql.ErrNoRows
	}
	return &models.Lesson{ID: "lesson-1", CourseID: "course-1", Title: "Intro", JoinCode: code}, nil
}

type auditWriterIntegrationMock struct{}

func (auditWriterIntegrationMock) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}
