package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/lumen-ed/lumen-api/internal/models"
)

func TestSubmissionRepositoryUpsertUsesConflictClause(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(`INSERT INTO submissions .*ON CONFLICT \(student_id, activity_id\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	submission := &models.Submission{
		StudentID:    "stu-1",
		ActivityID:   "act-1",
		CourseID:     "course-1",
		Status:       models.SubmissionStatusSubmitted,
		PointsEarned: 30,
	}
	err := repo.Upsert(context.Background(), submission)
	require.NoError(t, err)
	require.NotEmpty(t, submission.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryFindByStudentAndActivity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "activity_id", "course_id", "status", "score", "points_earned", "progress_ratio", "started_at", "submitted_at", "graded_at", "updated_at"}).
		AddRow("sub-1", "stu-1", "act-1", "course-1", models.SubmissionStatusInProgress, nil, 0, 0.5, now, nil, nil, now)
	mock.ExpectQuery(`FROM submissions WHERE student_id = \$1 AND activity_id = \$2`).
		WithArgs("stu-1", "act-1").
		WillReturnRows(rows)

	submission, err := repo.FindByStudentAndActivity(context.Background(), "stu-1", "act-1")
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusInProgress, submission.Status)
	require.InDelta(t, 0.5, submission.ProgressRatio, 1e-9)
}

func TestSubmissionRepositoryListByCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "activity_id", "course_id", "status", "score", "points_earned", "progress_ratio", "started_at", "submitted_at", "graded_at", "updated_at"}).
		AddRow("sub-1", "stu-1", "act-1", "course-1", models.SubmissionStatusSubmitted, 75.0, 30, 1.0, now, now, nil, now).
		AddRow("sub-2", "stu-2", "act-1", "course-1", models.SubmissionStatusInProgress, nil, 0, 0.2, now, nil, nil, now)
	mock.ExpectQuery(`FROM submissions WHERE course_id = \$1`).
		WithArgs("course-1").
		WillReturnRows(rows)

	submissions, err := repo.ListByCourse(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, submissions, 2)
}
