package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumen-ed/lumen-api/internal/models"
)

// MasteryRepository handles persistence of objective mastery records.
type MasteryRepository struct {
	db *sqlx.DB
}

// NewMasteryRepository constructs the repository.
func NewMasteryRepository(db *sqlx.DB) *MasteryRepository {
	return &MasteryRepository{db: db}
}

// Upsert writes a mastery record keyed on (student_id, course_id, objective),
// bumping the attempt counter on update.
func (r *MasteryRepository) Upsert(ctx context.Context, record *models.ObjectiveMastery) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO objective_mastery (id, student_id, course_id, objective, mastery_level, attempt_count, updated_at)
        VALUES (:id, :student_id, :course_id, :objective, :mastery_level, :attempt_count, :updated_at)
        ON CONFLICT (student_id, course_id, objective)
        DO UPDATE SET mastery_level = EXCLUDED.mastery_level,
            attempt_count = objective_mastery.attempt_count + 1,
            updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert mastery: %w", err)
	}
	return nil
}

// ListByCourse returns all mastery records recorded for a course.
func (r *MasteryRepository) ListByCourse(ctx context.Context, courseID string) ([]models.ObjectiveMastery, error) {
	const query = `SELECT id, student_id, course_id, objective, mastery_level, attempt_count, updated_at
        FROM objective_mastery WHERE course_id = $1`
	var records []models.ObjectiveMastery
	if err := r.db.SelectContext(ctx, &records, query, courseID); err != nil {
		return nil, fmt.Errorf("list course mastery: %w", err)
	}
	return records, nil
}

// ListByStudentAndCourse returns one student's mastery records in a course.
func (r *MasteryRepository) ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.ObjectiveMastery, error) {
	const query = `SELECT id, student_id, course_id, objective, mastery_level, attempt_count, updated_at
        FROM objective_mastery WHERE student_id = $1 AND course_id = $2`
	var records []models.ObjectiveMastery
	if err := r.db.SelectContext(ctx, &records, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list student mastery: %w", err)
	}
	return records, nil
}
