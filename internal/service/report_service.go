package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
	"github.com/lumen-ed/lumen-api/pkg/export"
	"github.com/lumen-ed/lumen-api/pkg/jobs"
)

const JobTypeReport = "report"

type reportRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus, resultPath, resultURL, errorMessage *string) error
	ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.ReportJob, error)
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type reportSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
}

type analyticsSource interface {
	CourseAnalytics(ctx context.Context, courseID string) (*models.CourseAnalytics, bool, error)
}

type courseReadEvaluator interface {
	EvaluateCourseRead(ctx context.Context, userID string, role models.UserRole, courseID string) error
}

// ReportService builds course reports asynchronously. Requests are queued;
// a worker renders the dataset to CSV or PDF, stores the file, and attaches
// a signed download URL to the finished job.
type ReportService struct {
	reports   reportRepository
	analytics analyticsSource
	access    courseReadEvaluator
	storage   reportStorage
	signer    reportSigner
	queue     jobEnqueuer
	fileTTL   time.Duration
	logger    *zap.Logger
}

// NewReportService constructs ReportService.
func NewReportService(reports reportRepository, analytics analyticsSource, access courseReadEvaluator, storage reportStorage, signer reportSigner, queue jobEnqueuer, fileTTL time.Duration, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		reports:   reports,
		analytics: analytics,
		access:    access,
		storage:   storage,
		signer:    signer,
		queue:     queue,
		fileTTL:   fileTTL,
		logger:    logger,
	}
}

// Request persists a QUEUED job and enqueues it for processing. The course
// read policy applies here: a report is a course analytics export, so only
// the owning teacher or an admin may request one.
func (s *ReportService) Request(ctx context.Context, createdBy string, role models.UserRole, reportType models.ReportType, params models.ReportJobParams) (*models.ReportJob, error) {
	switch reportType {
	case models.ReportTypeCourseProgress, models.ReportTypeMastery:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown report type")
	}
	switch params.Format {
	case models.ReportFormatCSV, models.ReportFormatPDF:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown report format")
	}
	if params.CourseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course_id is required")
	}
	if err := s.access.EvaluateCourseRead(ctx, createdBy, role, params.CourseID); err != nil {
		return nil, err
	}

	job := &models.ReportJob{
		ID:        uuid.NewString(),
		Type:      reportType,
		Params:    params,
		Status:    models.ReportStatusQueued,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.reports.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist report job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: JobTypeReport, Payload: job.ID}); err != nil {
		message := "failed to enqueue report job"
		if uerr := s.reports.UpdateStatus(ctx, job.ID, models.ReportStatusFailed, nil, nil, &message); uerr != nil {
			s.logger.Error("failed to mark report job failed", zap.String("job_id", job.ID), zap.Error(uerr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
	return job, nil
}

// Get returns a report job visible to its creator.
func (s *ReportService) Get(ctx context.Context, requesterID string, role models.UserRole, jobID string) (*models.ReportJob, error) {
	job, err := s.reports.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	if role != models.RoleAdmin && job.CreatedBy != requesterID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report belongs to another user")
	}
	return job, nil
}

// List returns the requester's recent report jobs.
func (s *ReportService) List(ctx context.Context, requesterID string, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	list, err := s.reports.ListByCreator(ctx, requesterID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	return list, nil
}

// HandleJob is the jobs.Handler for report processing. Returned errors are
// retried by the queue; the terminal failure is recorded on the job row by
// the last attempt.
func (s *ReportService) HandleJob(ctx context.Context, job jobs.Job) error {
	jobID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("report job payload must be a job id, got %T", job.Payload)
	}

	record, err := s.reports.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", jobID, err)
	}
	if record.Status == models.ReportStatusFinished {
		return nil
	}

	if err := s.reports.UpdateStatus(ctx, jobID, models.ReportStatusProcessing, nil, nil, nil); err != nil {
		return fmt.Errorf("mark report job processing: %w", err)
	}

	if err := s.process(ctx, record); err != nil {
		message := err.Error()
		if uerr := s.reports.UpdateStatus(ctx, jobID, models.ReportStatusFailed, nil, nil, &message); uerr != nil {
			s.logger.Error("failed to mark report job failed", zap.String("job_id", jobID), zap.Error(uerr))
		}
		return err
	}
	return nil
}

func (s *ReportService) process(ctx context.Context, job *models.ReportJob) error {
	analytics, _, err := s.analytics.CourseAnalytics(ctx, job.Params.CourseID)
	if err != nil {
		return fmt.Errorf("aggregate course %s: %w", job.Params.CourseID, err)
	}

	var dataset export.Dataset
	var title string
	switch job.Type {
	case models.ReportTypeCourseProgress:
		dataset, title = progressDataset(analytics)
	case models.ReportTypeMastery:
		dataset, title = masteryDataset(analytics)
	default:
		return fmt.Errorf("unknown report type %q", job.Type)
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = export.NewCSVExporter().Render(dataset)
	case models.ReportFormatPDF:
		payload, err = export.NewPDFExporter().Render(dataset, title)
	default:
		return fmt.Errorf("unknown report format %q", job.Params.Format)
	}
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	filename := fmt.Sprintf("%s_%s_%d.%s", job.Type, job.Params.CourseID, time.Now().Unix(), job.Params.Format)
	path, err := s.storage.Save(filename, payload)
	if err != nil {
		return fmt.Errorf("store report file: %w", err)
	}

	url, _, err := s.signer.Generate(job.ID, filename)
	if err != nil {
		return fmt.Errorf("sign download url: %w", err)
	}

	if err := s.reports.UpdateStatus(ctx, job.ID, models.ReportStatusFinished, &path, &url, nil); err != nil {
		return fmt.Errorf("mark report finished: %w", err)
	}

	s.logger.Info("report finished",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("format", string(job.Params.Format)),
	)
	return nil
}

// Cleanup removes report files past the retention TTL.
func (s *ReportService) Cleanup() {
	removed, err := s.storage.CleanupOlderThan(s.fileTTL)
	if err != nil {
		s.logger.Warn("report cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("report cleanup removed files", zap.Int("count", len(removed)))
	}
}

func progressDataset(analytics *models.CourseAnalytics) (export.Dataset, string) {
	dataset := export.Dataset{
		Headers: []string{"student_id", "progress_percent", "completed_activities", "total_activities", "points_earned"},
	}
	for _, student := range analytics.Students {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"student_id":           student.StudentID,
			"progress_percent":     strconv.FormatFloat(student.ProgressPercent, 'f', 1, 64),
			"completed_activities": strconv.Itoa(student.CompletedActivities),
			"total_activities":     strconv.Itoa(student.TotalActivities),
			"points_earned":        strconv.Itoa(student.PointsEarned),
		})
	}
	return dataset, "Course Progress Report"
}

func masteryDataset(analytics *models.CourseAnalytics) (export.Dataset, string) {
	dataset := export.Dataset{
		Headers: []string{"objective", "average_mastery", "assessed_students", "mastered", "in_progress", "struggling"},
	}
	for _, objective := range analytics.Objectives {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"objective":         objective.Objective,
			"average_mastery":   strconv.FormatFloat(objective.AverageMastery, 'f', 1, 64),
			"assessed_students": strconv.Itoa(objective.AssessedStudents),
			"mastered":          strconv.Itoa(objective.Mastered),
			"in_progress":       strconv.Itoa(objective.InProgress),
			"struggling":        strconv.Itoa(objective.Struggling),
		})
	}
	return dataset, "Objective Mastery Report"
}
