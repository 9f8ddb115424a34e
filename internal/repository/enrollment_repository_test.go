package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/lumen-ed/lumen-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryUpsertUsesConflictClause(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(`INSERT INTO enrollments .*ON CONFLICT \(student_id, course_id\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.Enrollment{StudentID: "stu-1", CourseID: "course-1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = $3 LIMIT 1")).
		WithArgs("stu-1", "course-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsActive(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActiveNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(`SELECT 1 FROM enrollments`).
		WithArgs("stu-1", "course-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsActive(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestEnrollmentRepositoryListActiveByCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "progress", "last_activity_at", "joined_at", "left_at", "status"}).
		AddRow("enr-1", "stu-1", "course-1", 40.0, nil, time.Now(), nil, models.EnrollmentStatusActive).
		AddRow("enr-2", "stu-2", "course-1", 10.0, nil, time.Now(), nil, models.EnrollmentStatusActive)
	mock.ExpectQuery(`SELECT id, student_id, course_id, progress, last_activity_at, joined_at, left_at, status\s+FROM enrollments WHERE course_id = \$1 AND status = \$2`).
		WithArgs("course-1", models.EnrollmentStatusActive).
		WillReturnRows(rows)

	enrollments, err := repo.ListActiveByCourse(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}
