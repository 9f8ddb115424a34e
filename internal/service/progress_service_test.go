package service

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-ed/lumen-api/internal/models"
)

func TestFoldObjectiveBuckets(t *testing.T) {
	records := []models.ObjectiveMastery{
		{Objective: "fractions", MasteryLevel: 80}, // lower edge inclusive: Mastered
		{Objective: "fractions", MasteryLevel: 79}, // In-Progress
		{Objective: "fractions", MasteryLevel: 59}, // Struggling
		{Objective: "fractions", MasteryLevel: 60},
	}

	summaries := FoldObjectiveBuckets([]string{"fractions", "decimals"}, records)
	require.Len(t, summaries, 2)

	fractions := summaries[0]
	assert.Equal(t, "fractions", fractions.Objective)
	assert.Equal(t, 4, fractions.AssessedStudents)
	assert.Equal(t, 1, fractions.Mastered)
	assert.Equal(t, 2, fractions.InProgress)
	assert.Equal(t, 1, fractions.Struggling)
	assert.InDelta(t, 69.5, fractions.AverageMastery, 0.01)

	// An objective with zero records still appears with zeros.
	decimals := summaries[1]
	assert.Equal(t, "decimals", decimals.Objective)
	assert.Equal(t, 0, decimals.AssessedStudents)
	assert.Equal(t, 0.0, decimals.AverageMastery)
}

func TestFoldObjectiveBuckets_ExtraObjectivesAppended(t *testing.T) {
	records := []models.ObjectiveMastery{
		{Objective: "zeta", MasteryLevel: 50},
		{Objective: "alpha", MasteryLevel: 90},
	}
	summaries := FoldObjectiveBuckets([]string{"fractions"}, records)
	require.Len(t, summaries, 3)
	assert.Equal(t, "fractions", summaries[0].Objective)
	assert.Equal(t, "alpha", summaries[1].Objective)
	assert.Equal(t, "zeta", summaries[2].Objective)
}

func TestFoldStudentProgress(t *testing.T) {
	roster := []models.Enrollment{
		{StudentID: "student-1"},
		{StudentID: "student-2"},
	}
	activities := []models.Activity{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}, {ID: "a4"}}
	submissions := []models.Submission{
		{StudentID: "student-1", ActivityID: "a1", Status: models.SubmissionStatusSubmitted, PointsEarned: 25},
		{StudentID: "student-1", ActivityID: "a2", Status: models.SubmissionStatusGraded, PointsEarned: 30},
		{StudentID: "student-1", ActivityID: "a3", Status: models.SubmissionStatusInProgress},
		{StudentID: "student-2", ActivityID: "a1", Status: models.SubmissionStatusAbandoned},
	}

	summaries := FoldStudentProgress(roster, activities, submissions)
	require.Len(t, summaries, 2)

	assert.InDelta(t, 50.0, summaries[0].ProgressPercent, 0.01)
	assert.Equal(t, 2, summaries[0].CompletedActivities)
	assert.Equal(t, 55, summaries[0].PointsEarned)

	// In-progress and abandoned attempts do not count as completed.
	assert.Equal(t, 0.0, summaries[1].ProgressPercent)
	assert.Equal(t, 0, summaries[1].CompletedActivities)
}

func TestFoldStudentProgress_NoActivities(t *testing.T) {
	summaries := FoldStudentProgress([]models.Enrollment{{StudentID: "student-1"}}, nil, nil)
	require.Len(t, summaries, 1)
	// Zero activities must yield zero percent, not NaN.
	assert.Equal(t, 0.0, summaries[0].ProgressPercent)
}

func TestFoldLessonMastery(t *testing.T) {
	lessonID := "lesson-1"
	lessons := []models.Lesson{
		{ID: "lesson-1", Title: "Fractions Intro", Objectives: pq.StringArray{"fractions", "decimals"}},
		{ID: "lesson-2", Title: "Untouched", Objectives: pq.StringArray{"geometry"}},
	}
	activities := []models.Activity{
		{ID: "a1", LessonID: &lessonID},
		{ID: "a2", LessonID: &lessonID},
		{ID: "a3"},
	}
	records := []models.ObjectiveMastery{
		{Objective: "fractions", MasteryLevel: 80},
		{Objective: "fractions", MasteryLevel: 60},
		{Objective: "decimals", MasteryLevel: 90},
	}

	summaries := FoldLessonMastery(lessons, activities, records)
	require.Len(t, summaries, 2)

	// mean(mean(80,60), 90) = mean(70, 90) = 80
	assert.InDelta(t, 80.0, summaries[0].AverageMastery, 0.01)
	assert.Equal(t, 2, summaries[0].ActivityCount)

	assert.Equal(t, 0.0, summaries[1].AverageMastery)
	assert.Equal(t, 0, summaries[1].ActivityCount)
}

func TestFoldEngagement(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	activities := []models.Activity{
		{ID: "chat-1", Type: models.ActivityTypeAIChat},
		{ID: "quiz-1", Type: models.ActivityTypeQuiz},
	}
	submissions := []models.Submission{
		{StudentID: "student-1", ActivityID: "chat-1", Status: models.SubmissionStatusSubmitted, PointsEarned: 140, SubmittedAt: &earlier},
		{StudentID: "student-2", ActivityID: "quiz-1", Status: models.SubmissionStatusSubmitted, PointsEarned: 25, SubmittedAt: &now},
		{StudentID: "student-3", ActivityID: "chat-1", Status: models.SubmissionStatusNotStarted},
	}

	engagement := FoldEngagement(activities, submissions)
	assert.Equal(t, 1, engagement.AISessionCount)
	assert.Equal(t, 165, engagement.TotalPointsAwarded)
	require.Len(t, engagement.PointsFeed, 2)
	// Newest first.
	assert.Equal(t, "student-2", engagement.PointsFeed[0].StudentID)
}

type stubProgressCourses struct {
	course  *models.Course
	lessons []models.Lesson
}

func (s *stubProgressCourses) FindByID(context.Context, string) (*models.Course, error) {
	return s.course, nil
}

func (s *stubProgressCourses) ListLessons(context.Context, string) ([]models.Lesson, error) {
	return s.lessons, nil
}

type stubProgressActivities struct{ activities []models.Activity }

func (s *stubProgressActivities) List(context.Context, models.ActivityFilter) ([]models.Activity, int, error) {
	return s.activities, len(s.activities), nil
}

type stubProgressEnrollments struct{ roster []models.Enrollment }

func (s *stubProgressEnrollments) ListActiveByCourse(context.Context, string) ([]models.Enrollment, error) {
	return s.roster, nil
}

type stubProgressSubmissions struct{ submissions []models.Submission }

func (s *stubProgressSubmissions) ListByCourse(context.Context, string) ([]models.Submission, error) {
	return s.submissions, nil
}

type stubProgressMastery struct{ records []models.ObjectiveMastery }

func (s *stubProgressMastery) ListByCourse(context.Context, string) ([]models.ObjectiveMastery, error) {
	return s.records, nil
}

func TestProgressService_CourseAnalytics(t *testing.T) {
	// Teacher creates a course with one objective, enrolls one student, and
	// the student scores half marks on a two-question quiz worth 50.
	svc := NewProgressService(
		&stubProgressCourses{course: &models.Course{ID: "course-1", Objectives: pq.StringArray{"Fractions"}}},
		&stubProgressActivities{activities: []models.Activity{{ID: "quiz-1", CourseID: "course-1", Type: models.ActivityTypeQuiz, Points: 50}}},
		&stubProgressEnrollments{roster: []models.Enrollment{{StudentID: "student-1", CourseID: "course-1"}}},
		&stubProgressSubmissions{submissions: []models.Submission{{
			StudentID: "student-1", ActivityID: "quiz-1", CourseID: "course-1",
			Status: models.SubmissionStatusSubmitted, PointsEarned: 25,
		}}},
		&stubProgressMastery{records: []models.ObjectiveMastery{{StudentID: "student-1", CourseID: "course-1", Objective: "Fractions", MasteryLevel: 50}}},
		nil, 0, nil, nil,
	)

	analytics, cached, err := svc.CourseAnalytics(context.Background(), "course-1")
	require.NoError(t, err)
	assert.False(t, cached)

	require.Len(t, analytics.Objectives, 1)
	assert.Equal(t, "Fractions", analytics.Objectives[0].Objective)
	assert.Equal(t, 1, analytics.Objectives[0].AssessedStudents)
	assert.InDelta(t, 50.0, analytics.Objectives[0].AverageMastery, 0.01)

	require.Len(t, analytics.Students, 1)
	assert.Equal(t, 25, analytics.Students[0].PointsEarned)
	assert.InDelta(t, 100.0, analytics.Students[0].ProgressPercent, 0.01)
}
