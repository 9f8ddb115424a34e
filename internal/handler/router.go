package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/lumen-ed/lumen-api/internal/middleware"
	"github.com/lumen-ed/lumen-api/internal/models"
	"github.com/lumen-ed/lumen-api/internal/repository"
	"github.com/lumen-ed/lumen-api/internal/service"
)

// Handlers groups every HTTP handler for route registration.
type Handlers struct {
	Auth        *AuthHandler
	Courses     *CourseHandler
	Activities  *ActivityHandler
	Assignments *AssignmentHandler
	Enrollments *EnrollmentHandler
	Submissions *SubmissionHandler
	Analytics   *AnalyticsHandler
	Generation  *GenerationHandler
	Collab      *CollabHandler
	Reports     *ReportHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts all API routes on the engine. Auth endpoints are
// public; everything else sits behind JWT, with RBAC per route group.
func RegisterRoutes(r *gin.Engine, h Handlers, auth *service.AuthService, metrics *service.MetricsService, users *repository.UserRepository) {
	teacherOrAdmin := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	studentOnly := middleware.RequireRoles(models.RoleStudent)

	r.GET("/health", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group("/api/v1")
	api.Use(middleware.Metrics(metrics))
	api.Use(middleware.WithResponseMeta())

	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)
	api.GET("/reports/download", h.Reports.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(auth))

	secured.POST("/auth/logout", h.Auth.Logout)
	secured.PUT("/auth/password", h.Auth.ChangePassword)
	secured.GET("/auth/me", h.Auth.Me)

	secured.GET("/courses", h.Courses.List)
	secured.GET("/courses/:id", h.Courses.Get)
	secured.POST("/courses", teacherOrAdmin, h.Courses.Create)
	secured.PATCH("/courses/:id", teacherOrAdmin, h.Courses.Update)
	secured.POST("/courses/:id/lessons", teacherOrAdmin, h.Courses.CreateLesson)
	secured.GET("/courses/:id/lessons", h.Courses.ListLessons)
	secured.POST("/lessons/:lessonId/join-code", teacherOrAdmin, h.Courses.RotateJoinCode)
	secured.GET("/courses/:id/roster", teacherOrAdmin, h.Enrollments.Roster)

	secured.GET("/activities", h.Activities.List)
	secured.GET("/activities/:id", h.Activities.Get)
	secured.POST("/activities", teacherOrAdmin, h.Activities.Create)
	secured.PATCH("/activities/:id", teacherOrAdmin, h.Activities.Update)

	secured.GET("/assignments", h.Assignments.ListByCourse)
	secured.GET("/assignments/:id", h.Assignments.Get)
	secured.POST("/assignments", teacherOrAdmin, h.Assignments.Create)
	secured.PUT("/assignments/:id/published", teacherOrAdmin, h.Assignments.SetPublished)

	secured.POST("/enrollments/join", studentOnly, h.Enrollments.Join)
	secured.DELETE("/enrollments/:courseId", studentOnly, h.Enrollments.Leave)
	secured.GET("/enrollments/mine", studentOnly, h.Enrollments.MyCourses)

	secured.POST("/activities/:id/start", studentOnly, h.Submissions.Start)
	secured.PUT("/activities/:id/progress", studentOnly, h.Submissions.ReportProgress)
	secured.POST("/activities/:id/submit", studentOnly, h.Submissions.Submit)
	secured.POST("/activities/:id/abandon", studentOnly, h.Submissions.Abandon)
	secured.GET("/activities/:id/submission", studentOnly, h.Submissions.Get)
	secured.POST("/activities/:id/grade", teacherOrAdmin, middleware.Audit(users, models.AuditActionGradeOverride, "submission"), h.Submissions.Grade)

	secured.GET("/analytics/courses/:id", teacherOrAdmin, h.Analytics.CourseAnalytics)
	secured.GET("/analytics/courses/:id/students/:studentId", h.Analytics.StudentProgress)
	secured.GET("/metrics/summary", middleware.RequireRoles(models.RoleAdmin), h.Metrics.Snapshot)

	secured.POST("/generation/quiz", teacherOrAdmin, h.Generation.GenerateQuiz)
	secured.POST("/generation/activity", teacherOrAdmin, h.Generation.GenerateActivity)
	secured.POST("/generation/tutor", studentOnly, h.Generation.TutorTurn)

	secured.POST("/collab/events", studentOnly, h.Collab.RecordEvent)
	secured.GET("/collab/sessions/:sessionId/events", h.Collab.ReplaySession)
	secured.GET("/collab/sessions/:sessionId/counters", h.Collab.Counters)

	secured.POST("/reports", teacherOrAdmin, h.Reports.Request)
	secured.GET("/reports", teacherOrAdmin, h.Reports.List)
	secured.GET("/reports/:id", teacherOrAdmin, h.Reports.Get)
}
