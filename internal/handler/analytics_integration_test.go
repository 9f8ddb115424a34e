package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalmiddleware "github.com/lumen-ed/lumen-api/internal/middleware"
	"github.com/lumen-ed/lumen-api/internal/models"
	"github.com/lumen-ed/lumen-api/internal/service"
)

func TestAnalyticsRoutesIntegration(t *testing.T) {
	router := buildAnalyticsRouter()

	t.Run("owning teacher reads course analytics", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/analytics/courses/course-1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		req.Header.Set("X-Test-User", "teacher-1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"course_id":"course-1"`)
	})

	t.Run("teacher of another course is rejected", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/analytics/courses/course-1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		req.Header.Set("X-Test-User", "teacher-2")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
		require.NotContains(t, resp.Body.String(), `"students"`)
	})

	t.Run("admin reads any course", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/analytics/courses/course-1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		req.Header.Set("X-Test-User", "admin-1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("student progress gated by course ownership", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/analytics/courses/course-1/students/student-1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		req.Header.Set("X-Test-User", "teacher-2")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)

		req, _ = http.NewRequest(http.MethodGet, "/analytics/courses/course-1/students/student-1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		req.Header.Set("X-Test-User", "teacher-1")
		resp = performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
	})
}

func buildAnalyticsRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			userID := c.GetHeader("X-Test-User")
			if userID == "" {
				userID = "test-user"
			}
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: userID,
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	courses := &analyticsCourseIntegrationMock{}
	progressSvc := service.NewProgressService(
		courses,
		&analyticsActivityIntegrationMock{},
		&analyticsEnrollmentIntegrationMock{},
		&analyticsSubmissionIntegrationMock{},
		&analyticsMasteryIntegrationMock{},
		nil, 0, nil, nil,
	)
	accessSvc := service.NewAccessService(
		&analyticsEnrollmentIntegrationMock{},
		courses,
		&analyticsAssignmentIntegrationMock{},
		service.AccessPolicyConfig{},
		nil,
	)
	analyticsHandler := NewAnalyticsHandler(progressSvc, accessSvc)

	teacherOrAdmin := internalmiddleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	router.GET("/analytics/courses/:id", teacherOrAdmin, analyticsHandler.CourseAnalytics)
	router.GET("/analytics/courses/:id/students/:studentId", analyticsHandler.StudentProgress)

	return router
}

type analyticsCourseIntegrationMock struct{}

func (analyticsCourseIntegrationMock) FindByID(ctx context.Context, id string) (*models.Course, error) {
	return &models.Course{ID: id, Title: "Algebra", TeacherID: "teacher-1"}, nil
}

func (analyticsCourseIntegrationMock) ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error) {
	return nil, nil
}

type analyticsActivityIntegrationMock struct{}

func (analyticsActivityIntegrationMock) List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error) {
	return nil, 0, nil
}

type analyticsEnrollmentIntegrationMock struct{}

func (analyticsEnrollmentIntegrationMock) ListActiveByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error) {
	return nil, nil
}

func (analyticsEnrollmentIntegrationMock) ExistsActive(ctx context.Context, studentID, courseID string) (bool, error) {
	return false, nil
}

type analyticsSubmissionIntegrationMock struct{}

func (analyticsSubmissionIntegrationMock) ListByCourse(ctx context.Context, courseID string) ([]models.Submission, error) {
	return nil, nil
}

type analyticsMasteryIntegrationMock struct{}

func (analyticsMasteryIntegrationMock) ListByCourse(ctx context.Context, courseID string) ([]models.ObjectiveMastery, error) {
	return nil, nil
}

type analyticsAssignmentIntegrationMock struct{}

func (analyticsAssignmentIntegrationMock) FindByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	return nil, nil
}
