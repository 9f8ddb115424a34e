package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumen-ed/lumen-api/internal/models"
)

// ReportRepository persists asynchronous report job metadata.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create persists a queued report job.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	const query = `INSERT INTO report_jobs (id, type, params, status, result_path, result_url, error_message, created_by, created_at, updated_at)
        VALUES (:id, :type, :params, :status, :result_path, :result_url, :error_message, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID returns a report job by its ID.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	const query = `SELECT id, type, params, status, result_path, result_url, error_message, created_by, created_at, updated_at
        FROM report_jobs WHERE id = $1`
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateStatus moves a job through its lifecycle.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, status models.ReportStatus, resultPath, resultURL, errorMessage *string) error {
	const query = `UPDATE report_jobs SET status = $2, result_path = $3, result_url = $4, error_message = $5, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, resultPath, resultURL, errorMessage); err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	return nil
}

// ListByCreator returns jobs created by the given user, newest first.
func (r *ReportRepository) ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.ReportJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT id, type, params, status, result_path, result_url, error_message, created_by, created_at, updated_at
        FROM report_jobs WHERE created_by = $1 ORDER BY created_at DESC LIMIT %d`, limit)
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, createdBy); err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	return jobs, nil
}
