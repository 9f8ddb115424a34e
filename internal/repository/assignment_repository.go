package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumen-ed/lumen-api/internal/models"
)

// AssignmentRepository handles persistence of assignment bundles.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create persists a new assignment and its activity links atomically.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment, activities []models.AssignmentActivity) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assignment tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertAssignment = `INSERT INTO assignments (id, course_id, title, due_at, point_budget, published, created_by, created_at, updated_at)
        VALUES (:id, :course_id, :title, :due_at, :point_budget, :published, :created_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertAssignment, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}

	const insertLink = `INSERT INTO assignment_activities (assignment_id, activity_id, required, position)
        VALUES (:assignment_id, :activity_id, :required, :position)`
	for i := range activities {
		activities[i].AssignmentID = assignment.ID
		if _, err := tx.NamedExecContext(ctx, insertLink, activities[i]); err != nil {
			return fmt.Errorf("link assignment activity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assignment tx: %w", err)
	}
	return nil
}

// FindByID returns an assignment with its activity links.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	const query = `SELECT id, course_id, title, due_at, point_budget, published, created_by, created_at, updated_at
        FROM assignments WHERE id = $1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}

	const linksQuery = `SELECT assignment_id, activity_id, required, position
        FROM assignment_activities WHERE assignment_id = $1 ORDER BY position ASC`
	var links []models.AssignmentActivity
	if err := r.db.SelectContext(ctx, &links, linksQuery, id); err != nil {
		return nil, fmt.Errorf("list assignment activities: %w", err)
	}
	return &models.AssignmentDetail{Assignment: assignment, Activities: links}, nil
}

// ListByCourse returns a course's assignments, optionally published only.
func (r *AssignmentRepository) ListByCourse(ctx context.Context, courseID string, publishedOnly bool) ([]models.Assignment, error) {
	query := `SELECT id, course_id, title, due_at, point_budget, published, created_by, created_at, updated_at
        FROM assignments WHERE course_id = $1`
	if publishedOnly {
		query += ` AND published = TRUE`
	}
	query += ` ORDER BY created_at DESC`
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, courseID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// SetPublished toggles the publication flag.
func (r *AssignmentRepository) SetPublished(ctx context.Context, id string, published bool) error {
	const query = `UPDATE assignments SET published = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, published); err != nil {
		return fmt.Errorf("publish assignment: %w", err)
	}
	return nil
}

// ContainsActivity reports whether an assignment bundles the given activity.
func (r *AssignmentRepository) ContainsActivity(ctx context.Context, assignmentID, activityID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM assignment_activities WHERE assignment_id = $1 AND activity_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, assignmentID, activityID); err != nil {
		return false, fmt.Errorf("check assignment activity: %w", err)
	}
	return count > 0, nil
}
