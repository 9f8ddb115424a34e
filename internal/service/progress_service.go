package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-ed/lumen-api/internal/models"
	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

const pointsFeedLimit = 20

type progressCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error)
}

type progressActivityReader interface {
	List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error)
}

type progressEnrollmentReader interface {
	ListActiveByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error)
}

type progressSubmissionReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Submission, error)
}

type progressMasteryReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.ObjectiveMastery, error)
}

type analyticsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type progressMetrics interface {
	ObserveDBQuery(label string, duration time.Duration)
	RecordCacheOperation(hit bool, duration time.Duration)
}

// ProgressService computes derived, read-only statistics over submissions
// and mastery records. Aggregation is a deterministic fold: the same inputs
// always give the same output, and missing data yields zeros, never NaN.
// Results feed dashboards only and are never consulted by access control.
type ProgressService struct {
	courses     progressCourseReader
	activities  progressActivityReader
	enrollments progressEnrollmentReader
	submissions progressSubmissionReader
	mastery     progressMasteryReader
	cache       analyticsCache
	cacheTTL    time.Duration
	metrics     progressMetrics
	logger      *zap.Logger
}

// NewProgressService constructs ProgressService. cache and metrics may be
// nil to disable caching and observation.
func NewProgressService(
	courses progressCourseReader,
	activities progressActivityReader,
	enrollments progressEnrollmentReader,
	submissions progressSubmissionReader,
	mastery progressMasteryReader,
	cache analyticsCache,
	cacheTTL time.Duration,
	metrics progressMetrics,
	logger *zap.Logger,
) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		courses:     courses,
		activities:  activities,
		enrollments: enrollments,
		submissions: submissions,
		mastery:     mastery,
		cache:       cache,
		cacheTTL:    cacheTTL,
		metrics:     metrics,
		logger:      logger,
	}
}

// CourseAnalytics assembles the full dashboard read model for one course.
// The second return value reports whether the result came from cache.
func (s *ProgressService) CourseAnalytics(ctx context.Context, courseID string) (*models.CourseAnalytics, bool, error) {
	cacheKey := analyticsCacheKey(courseID)
	if s.cache != nil {
		lookupStart := time.Now()
		var cached models.CourseAnalytics
		err := s.cache.Get(ctx, cacheKey, &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(err == nil, time.Since(lookupStart))
		}
		if err == nil {
			return &cached, true, nil
		}
	}

	loadStart := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveDBQuery("analytics_course", time.Since(loadStart))
		}
	}()

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	lessons, err := s.courses.ListLessons(ctx, courseID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lessons")
	}

	activities, _, err := s.activities.List(ctx, models.ActivityFilter{CourseID: courseID, PageSize: -1})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activities")
	}

	roster, err := s.enrollments.ListActiveByCourse(ctx, courseID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	submissions, err := s.submissions.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}

	masteryRecords, err := s.mastery.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mastery records")
	}

	analytics := &models.CourseAnalytics{
		CourseID:   courseID,
		Lessons:    FoldLessonMastery(lessons, activities, masteryRecords),
		Objectives: FoldObjectiveBuckets(course.Objectives, masteryRecords),
		Students:   FoldStudentProgress(roster, activities, submissions),
		Engagement: FoldEngagement(activities, submissions),
		ComputedAt: time.Now(),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, analytics, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache course analytics", zap.String("course_id", courseID), zap.Error(err))
		}
	}
	return analytics, false, nil
}

// StudentProgress computes one student's standing in a course.
func (s *ProgressService) StudentProgress(ctx context.Context, studentID, courseID string) (*models.StudentProgressSummary, error) {
	activities, _, err := s.activities.List(ctx, models.ActivityFilter{CourseID: courseID, PageSize: -1})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activities")
	}

	submissions, err := s.submissions.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}

	roster := []models.Enrollment{{StudentID: studentID, CourseID: courseID}}
	summaries := FoldStudentProgress(roster, activities, submissions)
	return &summaries[0], nil
}

// Invalidate drops any cached analytics for the course. Called after
// completions and roster changes.
func (s *ProgressService) Invalidate(ctx context.Context, courseID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, analyticsCacheKey(courseID)); err != nil {
		s.logger.Warn("failed to invalidate analytics cache", zap.String("course_id", courseID), zap.Error(err))
	}
}

func analyticsCacheKey(courseID string) string {
	return fmt.Sprintf("analytics:course:%s", courseID)
}

// FoldObjectiveBuckets buckets mastery records per objective. Every course
// objective appears in the output even with zero records; objectives found
// only in records are appended in sorted order.
func FoldObjectiveBuckets(courseObjectives []string, records []models.ObjectiveMastery) []models.ObjectiveSummary {
	byObjective := make(map[string][]float64)
	for _, record := range records {
		byObjective[record.Objective] = append(byObjective[record.Objective], record.MasteryLevel)
	}

	known := make(map[string]struct{}, len(courseObjectives))
	ordered := make([]string, 0, len(byObjective)+len(courseObjectives))
	for _, objective := range courseObjectives {
		known[objective] = struct{}{}
		ordered = append(ordered, objective)
	}
	extras := make([]string, 0)
	for objective := range byObjective {
		if _, ok := known[objective]; !ok {
			extras = append(extras, objective)
		}
	}
	sort.Strings(extras)
	ordered = append(ordered, extras...)

	summaries := make([]models.ObjectiveSummary, 0, len(ordered))
	for _, objective := range ordered {
		levels := byObjective[objective]
		summary := models.ObjectiveSummary{Objective: objective, AssessedStudents: len(levels)}
		if len(levels) > 0 {
			total := 0.0
			for _, level := range levels {
				total += level
				switch {
				case level >= models.MasteryBucketMasteredMin:
					summary.Mastered++
				case level >= models.MasteryBucketInProgressMin:
					summary.InProgress++
				default:
					summary.Struggling++
				}
			}
			summary.AverageMastery = roundTo(total/float64(len(levels)), 1)
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// FoldLessonMastery averages objective mastery across each lesson's
// objectives. Lessons without mastery data report zero.
func FoldLessonMastery(lessons []models.Lesson, activities []models.Activity, records []models.ObjectiveMastery) []models.LessonMasterySummary {
	averages := make(map[string]float64)
	counts := make(map[string]int)
	for _, record := range records {
		averages[record.Objective] += record.MasteryLevel
		counts[record.Objective]++
	}

	activityCounts := make(map[string]int)
	for _, activity := range activities {
		if activity.LessonID != nil {
			activityCounts[*activity.LessonID]++
		}
	}

	summaries := make([]models.LessonMasterySummary, 0, len(lessons))
	for _, lesson := range lessons {
		summary := models.LessonMasterySummary{
			LessonID:      lesson.ID,
			LessonTitle:   lesson.Title,
			ActivityCount: activityCounts[lesson.ID],
		}
		total := 0.0
		n := 0
		for _, objective := range lesson.Objectives {
			if counts[objective] > 0 {
				total += averages[objective] / float64(counts[objective])
				n++
			}
		}
		if n > 0 {
			summary.AverageMastery = roundTo(total/float64(n), 1)
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// FoldStudentProgress computes per-student completion over the course's
// activity set. A course with zero activities yields 0%, never NaN.
func FoldStudentProgress(roster []models.Enrollment, activities []models.Activity, submissions []models.Submission) []models.StudentProgressSummary {
	completed := make(map[string]int)
	points := make(map[string]int)
	for _, submission := range submissions {
		if submission.Status == models.SubmissionStatusSubmitted || submission.Status == models.SubmissionStatusGraded {
			completed[submission.StudentID]++
			points[submission.StudentID] += submission.PointsEarned
		}
	}

	total := len(activities)
	summaries := make([]models.StudentProgressSummary, 0, len(roster))
	for _, enrollment := range roster {
		summary := models.StudentProgressSummary{
			StudentID:           enrollment.StudentID,
			CompletedActivities: completed[enrollment.StudentID],
			PointsEarned:        points[enrollment.StudentID],
			TotalActivities:     total,
		}
		if total > 0 {
			summary.ProgressPercent = roundTo(float64(summary.CompletedActivities)/float64(total)*100, 1)
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// FoldEngagement derives engagement counters: tutor session counts and a
// recent points feed ordered newest first.
func FoldEngagement(activities []models.Activity, submissions []models.Submission) models.EngagementSummary {
	typeByActivity := make(map[string]models.ActivityType, len(activities))
	for _, activity := range activities {
		typeByActivity[activity.ID] = activity.Type
	}

	summary := models.EngagementSummary{PointsFeed: []models.PointsFeedEntry{}}
	for _, submission := range submissions {
		if typeByActivity[submission.ActivityID] == models.ActivityTypeAIChat && submission.Status != models.SubmissionStatusNotStarted {
			summary.AISessionCount++
		}
		if submission.PointsEarned > 0 && submission.SubmittedAt != nil {
			summary.TotalPointsAwarded += submission.PointsEarned
			summary.PointsFeed = append(summary.PointsFeed, models.PointsFeedEntry{
				StudentID:  submission.StudentID,
				ActivityID: submission.ActivityID,
				Points:     submission.PointsEarned,
				AwardedAt:  *submission.SubmittedAt,
			})
		}
	}

	sort.Slice(summary.PointsFeed, func(i, j int) bool {
		return summary.PointsFeed[i].AwardedAt.After(summary.PointsFeed[j].AwardedAt)
	})
	if len(summary.PointsFeed) > pointsFeedLimit {
		summary.PointsFeed = summary.PointsFeed[:pointsFeedLimit]
	}
	return summary
}

func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
