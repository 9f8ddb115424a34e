package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-ed/lumen-api/pkg/jobs"
)

type enrollmentProgressWriter interface {
	UpdateProgress(ctx context.Context, studentID, courseID string, progress float64, lastActivityAt time.Time) error
}

// MasteryUpdateWorker consumes the jobs enqueued after scored completions.
// It refreshes the enrollment's rolled-up progress and drops stale cached
// analytics. Errors propagate so the queue's retry contract applies.
type MasteryUpdateWorker struct {
	progress    *ProgressService
	enrollments enrollmentProgressWriter
	logger      *zap.Logger
}

// NewMasteryUpdateWorker constructs the worker.
func NewMasteryUpdateWorker(progress *ProgressService, enrollments enrollmentProgressWriter, logger *zap.Logger) *MasteryUpdateWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MasteryUpdateWorker{progress: progress, enrollments: enrollments, logger: logger}
}

// Handle is the jobs.Handler for mastery update jobs.
func (w *MasteryUpdateWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(MasteryUpdateJob)
	if !ok {
		return fmt.Errorf("mastery update payload has unexpected type %T", job.Payload)
	}

	summary, err := w.progress.StudentProgress(ctx, payload.StudentID, payload.CourseID)
	if err != nil {
		return fmt.Errorf("compute progress for student %s: %w", payload.StudentID, err)
	}

	if err := w.enrollments.UpdateProgress(ctx, payload.StudentID, payload.CourseID, summary.ProgressPercent, time.Now().UTC()); err != nil {
		return fmt.Errorf("persist progress for student %s: %w", payload.StudentID, err)
	}

	w.progress.Invalidate(ctx, payload.CourseID)

	w.logger.Debug("enrollment progress refreshed",
		zap.String("student_id", payload.StudentID),
		zap.String("course_id", payload.CourseID),
		zap.Float64("progress_percent", summary.ProgressPercent),
	)
	return nil
}
